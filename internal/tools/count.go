package tools

import "context"

type countTool struct{ base }

// NewCount returns the count tool.
func NewCount(deps Deps) Tool {
	return &countTool{newBase(deps, "count",
		"Count documents in a collection matching a filter.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"database":   map[string]any{"type": "string"},
				"collection": map[string]any{"type": "string"},
				"filter":     map[string]any{"type": "object"},
			},
			"required": []any{"collection"},
		})}
}

func (t *countTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	collName, _ := args["collection"].(string)
	coll, err := t.deps.Session.Collection(collName)
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}
	filter, _ := args["filter"].(map[string]any)
	if filter == nil {
		filter = map[string]any{}
	}

	n, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}
	return map[string]any{"result": n}, nil
}
