// Package schema loads the static per-collection field/value registry
// used by the collection_schema tool to describe the CRM's shape to the
// planning model without a live introspection round trip.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed data/schemas.json
var dataFS embed.FS

// Collection describes one collection's known fields and a bounded
// sample of distinct values observed per field.
type Collection struct {
	Fields map[string]string `json:"fields"`
	Values map[string][]any  `json:"values"`
}

// Registry is the loaded set of collection schemas, keyed by collection
// name.
type Registry struct {
	collections map[string]Collection
}

// Load reads the bundled schema resource. It panics on malformed
// embedded JSON since that indicates a build-time packaging error, not
// a runtime condition callers can recover from.
func Load() *Registry {
	raw, err := dataFS.ReadFile("data/schemas.json")
	if err != nil {
		panic(fmt.Sprintf("schema: embedded resource missing: %v", err))
	}
	var collections map[string]Collection
	if err := json.Unmarshal(raw, &collections); err != nil {
		panic(fmt.Sprintf("schema: embedded resource malformed: %v", err))
	}
	return &Registry{collections: collections}
}

// Get returns the schema for a collection and whether it is known.
func (r *Registry) Get(collection string) (Collection, bool) {
	c, ok := r.collections[collection]
	return c, ok
}

// Names returns every known collection name, for building enum
// descriptions in tool argument schemas.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.collections))
	for name := range r.collections {
		out = append(out, name)
	}
	return out
}

// FieldsOf returns the field-name set of a collection, used by
// aggregate to map loosely written field names onto the collection's
// schema field names.
func (r *Registry) FieldsOf(collection string) map[string]string {
	if c, ok := r.collections[collection]; ok {
		return c.Fields
	}
	return nil
}

// Describe returns the {fields, values} view truncated to maxValues
// sampled values per field, matching the collection_schema tool's
// response shape.
func (c Collection) Describe(maxValues int) (fields map[string]string, values map[string][]any) {
	fields = c.Fields
	values = make(map[string][]any, len(c.Fields))
	for field := range c.Fields {
		v := c.Values[field]
		if len(v) > maxValues {
			v = v[:maxValues]
		}
		values[field] = v
	}
	return fields, values
}
