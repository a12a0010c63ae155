package tools

import (
	"context"
	"strings"

	"github.com/homelead/mcphost/internal/schema"
)

type collectionSchemaTool struct {
	base
	registry *schema.Registry
}

// NewCollectionSchema returns the collection_schema tool.
func NewCollectionSchema(deps Deps, reg *schema.Registry) Tool {
	desc := "One of: " + strings.Join(reg.Names(), ", ")
	return &collectionSchemaTool{
		base: newBase(deps, "collection_schema",
			"Describe a collection's known fields and a sample of distinct values per field.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"collection": map[string]any{"type": "string", "description": desc},
					"maxValues":  map[string]any{"type": "integer", "default": 10, "minimum": 1},
				},
				"required": []any{"collection"},
			}),
		registry: reg,
	}
}

func (t *collectionSchemaTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	coll, _ := args["collection"].(string)
	c, ok := t.registry.Get(coll)
	if !ok {
		return nil, Errorf("unknown collection %q", coll)
	}

	maxValues := 10
	if mv, ok := args["maxValues"].(float64); ok && mv > 0 {
		maxValues = int(mv)
	}

	fields, values := c.Describe(maxValues)
	return map[string]any{"fields": fields, "values": values}, nil
}
