package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// lookupCountryName resolves a country reference via the generic
// simple-lookup path.
func lookupCountryName(ctx context.Context, e *Enricher, value any) (string, error) {
	return e.simpleLookup(ctx, "countries", value, "name")
}

// lookupStateName resolves a state reference by scanning the nested
// states array embedded in a country document, since states aren't
// their own top-level collection.
func lookupStateName(ctx context.Context, e *Enricher, value any) (string, error) {
	id, ok := toObjectID(value)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}
	key := e.cacheKey("countries.states", id, "name")
	if cached, ok := e.getCached(key); ok {
		return cached, nil
	}

	var doc bson.M
	err := e.db.Collection("countries").FindOne(ctx,
		bson.M{"states._id": id}).Decode(&doc)
	if err != nil && err != mongo.ErrNoDocuments {
		return "", err
	}

	name := id.Hex()
	if err == nil {
		states, _ := doc["states"].(bson.A)
		for _, s := range states {
			state, ok := s.(bson.M)
			if !ok {
				continue
			}
			if sid, ok := state["_id"].(primitive.ObjectID); ok && sid == id {
				if n, ok := state["name"].(string); ok {
					name = n
				}
				break
			}
		}
	}
	e.setCached(key, name)
	return name, nil
}

// lookupCityName resolves a city reference by scanning the
// doubly-nested states[].cities[] arrays embedded in a country
// document.
func lookupCityName(ctx context.Context, e *Enricher, value any) (string, error) {
	id, ok := toObjectID(value)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}
	key := e.cacheKey("countries.states.cities", id, "name")
	if cached, ok := e.getCached(key); ok {
		return cached, nil
	}

	var doc bson.M
	err := e.db.Collection("countries").FindOne(ctx,
		bson.M{"states.cities._id": id}).Decode(&doc)
	if err != nil && err != mongo.ErrNoDocuments {
		return "", err
	}

	name := id.Hex()
	if err == nil {
		states, _ := doc["states"].(bson.A)
	outer:
		for _, s := range states {
			state, ok := s.(bson.M)
			if !ok {
				continue
			}
			cities, _ := state["cities"].(bson.A)
			for _, c := range cities {
				city, ok := c.(bson.M)
				if !ok {
					continue
				}
				if cid, ok := city["_id"].(primitive.ObjectID); ok && cid == id {
					if n, ok := city["name"].(string); ok {
						name = n
					}
					break outer
				}
			}
		}
	}
	e.setCached(key, name)
	return name, nil
}

// lookupPropertyLabel resolves a property reference to its display
// name, falling back to a composed "type block floor" label when the
// document has no name field.
func lookupPropertyLabel(ctx context.Context, e *Enricher, value any) (string, error) {
	id, ok := toObjectID(value)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}
	key := e.cacheKey("properties", id, "label")
	if cached, ok := e.getCached(key); ok {
		return cached, nil
	}

	var doc bson.M
	err := e.db.Collection("properties").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		e.setCached(key, id.Hex())
		return id.Hex(), nil
	}
	if err != nil {
		return "", err
	}

	label := id.Hex()
	if name, ok := doc["name"].(string); ok && name != "" {
		label = name
	} else {
		var parts []string
		for _, f := range []string{"propertyType", "blockName", "floorName"} {
			if s, ok := doc[f].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			label = strings.Join(parts, " ")
		} else {
			label = "UnknownProperty"
		}
	}
	e.setCached(key, label)
	return label, nil
}

// lookupBookingLabel resolves a booking reference to "<lead name> -
// <bookingType> - <bookingDate>".
func lookupBookingLabel(ctx context.Context, e *Enricher, value any) (string, error) {
	id, ok := toObjectID(value)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}
	key := e.cacheKey("property-bookings", id, "label")
	if cached, ok := e.getCached(key); ok {
		return cached, nil
	}

	var doc bson.M
	err := e.db.Collection("property-bookings").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		e.setCached(key, id.Hex())
		return id.Hex(), nil
	}
	if err != nil {
		return "", err
	}

	bookingType, _ := doc["bookingType"].(string)
	bookingDate := fmt.Sprintf("%v", doc["bookingDate"])

	label := id.Hex()
	if leadID, ok := doc["lead"]; ok {
		leadName, err := e.simpleLookup(ctx, "leads", leadID, "name")
		if err == nil && leadName != "" {
			label = fmt.Sprintf("%s - %s - %s", leadName, bookingType, bookingDate)
		}
	}
	e.setCached(key, label)
	return label, nil
}

// lookupAmenityNames resolves one amenity id, a comma-separated string
// of amenity ids, or a list of amenity ids into a comma-joined list of
// amenity names.
func lookupAmenityNames(ctx context.Context, e *Enricher, value any) (string, error) {
	lookupOne := func(v any) (string, error) {
		return e.simpleLookup(ctx, "amenities", v, "name")
	}

	switch t := value.(type) {
	case []any:
		names := make([]string, 0, len(t))
		for _, item := range t {
			n, err := lookupOne(item)
			if err != nil {
				return "", err
			}
			names = append(names, n)
		}
		return strings.Join(names, ", "), nil
	case string:
		var names []string
		for _, tok := range strings.Split(t, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			n, err := lookupOne(tok)
			if err != nil {
				return "", err
			}
			names = append(names, n)
		}
		return strings.Join(names, ", "), nil
	default:
		return lookupOne(value)
	}
}
