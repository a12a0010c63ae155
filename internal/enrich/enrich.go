// Package enrich replaces ObjectId reference fields in a trimmed
// result document with the human-readable name they point to —
// "company": ObjectId(...) becomes "company": "Homelead Realty" — so
// the planning model doesn't have to resolve IDs itself.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// lookupKind distinguishes a plain (collection, field) lookup from one
// needing bespoke traversal logic (nested state/city arrays, composed
// labels).
type lookupKind int

const (
	kindSimple lookupKind = iota
	kindCustom
)

type customLookup func(ctx context.Context, e *Enricher, value any) (string, error)

type mapping struct {
	kind      lookupKind
	coll      string
	nameField string
	custom    customLookup
}

// fieldLookups is the field-name to lookup-strategy registry: 26
// entries covering every reference field the CRM's documents carry.
var fieldLookups = map[string]mapping{
	"company":             {kind: kindSimple, coll: "companies", nameField: "name"},
	"project":             {kind: kindSimple, coll: "projects", nameField: "name"},
	"property":            {kind: kindCustom, custom: lookupPropertyLabel},
	"tenant":              {kind: kindSimple, coll: "tenants", nameField: "name"},
	"broker":              {kind: kindSimple, coll: "brokers", nameField: "name"},
	"country":             {kind: kindCustom, custom: lookupCountryName},
	"state":               {kind: kindCustom, custom: lookupStateName},
	"city":                {kind: kindCustom, custom: lookupCityName},
	"plan":                {kind: kindSimple, coll: "plans", nameField: "name"},
	"category":            {kind: kindSimple, coll: "project-categories", nameField: "name"},
	"propertyUnitSubType": {kind: kindSimple, coll: "property-unit-sub-types", nameField: "name"},
	"projectUnitSubType":  {kind: kindSimple, coll: "property-unit-sub-types", nameField: "name"},
	"bhk":                 {kind: kindSimple, coll: "bhk", nameField: "name"},
	"bhkType":             {kind: kindSimple, coll: "bhk-types", nameField: "name"},
	"amenities":           {kind: kindCustom, custom: lookupAmenityNames},
	"bank":                {kind: kindSimple, coll: "banks", nameField: "contactPersonDetails.fullName"},
	"bankNameId":          {kind: kindSimple, coll: "bank-names", nameField: "name"},
	"lead":                {kind: kindSimple, coll: "leads", nameField: "name"},
	"booking":             {kind: kindCustom, custom: lookupBookingLabel},
	"user":                {kind: kindSimple, coll: "users", nameField: "firstName"},
	"assignee":            {kind: kindSimple, coll: "users", nameField: "fullName"},
	"defaultPrimary":      {kind: kindSimple, coll: "users", nameField: "fullName"},
	"defaultSecondary":    {kind: kindSimple, coll: "users", nameField: "fullName"},
	"team":                {kind: kindSimple, coll: "teams", nameField: "name"},
	"group":               {kind: kindSimple, coll: "groups", nameField: "name"},
	"designation":         {kind: kindSimple, coll: "designations", nameField: "name"},
}

// fallbackCollection mirrors the original's special-case: "amenities"
// and "countries" lookups fall back to their own collection name when
// the first attempt (via the mapped collection) misses, which in
// practice repeats the identical query against the same collection
// with the same name field.
var fallbackCollection = map[string]string{
	"amenities": "amenities",
	"countries": "countries",
}

// maxConcurrentLookups bounds how many lookups run at once per
// enrichment call, keeping a single large document from opening
// dozens of simultaneous finds against the same database.
const maxConcurrentLookups = 8

// Enricher resolves reference fields against the tenant database,
// memoizing every lookup for the lifetime of the process.
type Enricher struct {
	db  *mongo.Database
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// New builds an Enricher bound to db.
func New(db *mongo.Database, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{db: db, log: log, cache: make(map[string]string)}
}

// Document walks doc depth-first and replaces every field whose name is
// in the lookup registry with its resolved name, recursing into nested
// documents and arrays. Siblings at each level are resolved
// concurrently, bounded by maxConcurrentLookups.
func (e *Enricher) Document(ctx context.Context, doc map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)

	for k, v := range doc {
		k, v := k, v
		g.Go(func() error {
			resolved, err := e.resolveField(ctx, k, v)
			if err != nil {
				return err
			}
			mu.Lock()
			out[k] = resolved
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Enricher) resolveField(ctx context.Context, key string, v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return e.Document(ctx, t)
	case []any:
		out := make([]any, len(t))
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentLookups)
		for i, item := range t {
			i, item := i, item
			g.Go(func() error {
				if nested, ok := item.(map[string]any); ok {
					resolved, err := e.Document(ctx, nested)
					if err != nil {
						return err
					}
					out[i] = resolved
					return nil
				}
				resolved, err := e.replaceField(ctx, key, item)
				if err != nil {
					return err
				}
				out[i] = resolved
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return e.replaceField(ctx, key, v)
	}
}

func (e *Enricher) replaceField(ctx context.Context, key string, value any) (any, error) {
	m, ok := fieldLookups[key]
	if !ok {
		return value, nil
	}
	switch m.kind {
	case kindSimple:
		return e.simpleLookup(ctx, m.coll, value, m.nameField)
	case kindCustom:
		return m.custom(ctx, e, value)
	default:
		return value, nil
	}
}

func (e *Enricher) cacheKey(coll string, id primitive.ObjectID, field string) string {
	return coll + ":" + id.Hex() + ":" + field
}

func (e *Enricher) getCached(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.cache[key]
	return v, ok
}

func (e *Enricher) setCached(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[key] = value
}

// simpleLookup resolves a single (collection, nameField) reference,
// falling back to a same-named collection retry for the handful of
// collections the original special-cased, and memoizing by
// collection:id:field.
func (e *Enricher) simpleLookup(ctx context.Context, collection string, value any, nameField string) (string, error) {
	id, ok := toObjectID(value)
	if !ok {
		return fmt.Sprintf("%v", value), nil
	}

	key := e.cacheKey(collection, id, nameField)
	if cached, ok := e.getCached(key); ok {
		return cached, nil
	}

	name, err := e.tryLookup(ctx, collection, fallbackCollection[collection], id, nameField)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = id.Hex()
	}
	e.setCached(key, name)
	return name, nil
}

func (e *Enricher) tryLookup(ctx context.Context, collection, fallback string, id primitive.ObjectID, nameField string) (string, error) {
	if name, ok, err := e.findNameField(ctx, collection, id, nameField); err != nil {
		return "", err
	} else if ok {
		return name, nil
	}
	if fallback != "" {
		if name, ok, err := e.findNameField(ctx, fallback, id, nameField); err != nil {
			return "", err
		} else if ok {
			return name, nil
		}
	}
	return "", nil
}

func (e *Enricher) findNameField(ctx context.Context, collection string, id primitive.ObjectID, nameField string) (string, bool, error) {
	var doc bson.M
	opts := options.FindOne().SetProjection(bson.M{nameField: 1})
	err := e.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, ok := dottedLookup(doc, nameField)
	if !ok {
		return "", false, nil
	}
	return fmt.Sprintf("%v", v), true, nil
}

func dottedLookup(doc bson.M, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toObjectID(v any) (primitive.ObjectID, bool) {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t, true
	case string:
		id, err := primitive.ObjectIDFromHex(t)
		if err != nil {
			return primitive.NilObjectID, false
		}
		return id, true
	default:
		return primitive.NilObjectID, false
	}
}
