package tools

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/mcphost/internal/bsonx"
)

// explain is a read-only diagnostics tool present in the system this
// host replaces but never registered there; it violates no write
// restriction, so it is carried here as a seventh, supplemental tool.
type explainTool struct{ base }

// NewExplain returns the explain tool.
func NewExplain(deps Deps) Tool {
	return &explainTool{newBase(deps, "explain",
		"Return MongoDB's explain output (query plan) for a find, aggregate, or count operation. count is explained at queryPlanner verbosity; find and aggregate use the server default (allPlansExecution), which executes the candidate plans.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"database":   map[string]any{"type": "string"},
				"collection": map[string]any{"type": "string"},
				"method": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":      map[string]any{"type": "string", "enum": []any{"find", "aggregate", "count"}},
						"arguments": map[string]any{"type": "object"},
					},
					"required": []any{"name", "arguments"},
				},
			},
			"required": []any{"collection", "method"},
		})}
}

func (t *explainTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	collName, _ := args["collection"].(string)
	dbName, _ := args["database"].(string)
	db, err := t.deps.Session.DB(dbName)
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}

	method, _ := args["method"].(map[string]any)
	if method == nil {
		return nil, Errorf("method is required")
	}
	name, _ := method["name"].(string)
	arguments, _ := method["arguments"].(map[string]any)

	var explainTarget bson.D
	// find/aggregate mirror cursor.explain() in the system this replaces,
	// which lets the server pick its own default verbosity
	// (allPlansExecution); only count's db.command-based explain pins
	// verbosity to queryPlanner explicitly.
	verbosity := ""
	switch name {
	case "find":
		filter, _ := arguments["filter"].(map[string]any)
		projection, _ := arguments["projection"].(map[string]any)
		sort, _ := arguments["sort"].(map[string]any)
		limit := intArg(arguments, "limit", 10)
		explainTarget = bson.D{
			{Key: "find", Value: collName},
			{Key: "filter", Value: orEmpty(filter)},
			{Key: "projection", Value: orEmpty(projection)},
			{Key: "sort", Value: orEmpty(sort)},
			{Key: "limit", Value: limit},
		}

	case "aggregate":
		pipeline := asSlice(arguments["pipeline"])
		if len(pipeline) == 0 {
			return nil, Errorf("pipeline must contain at least one stage")
		}
		explainTarget = bson.D{
			{Key: "aggregate", Value: collName},
			{Key: "pipeline", Value: pipeline},
			{Key: "cursor", Value: bson.M{}},
		}

	case "count":
		query, _ := arguments["query"].(map[string]any)
		explainTarget = bson.D{
			{Key: "count", Value: collName},
			{Key: "query", Value: orEmpty(query)},
		}
		verbosity = "queryPlanner"

	default:
		return nil, Errorf("unsupported explain method %q", name)
	}

	cmd := bson.D{{Key: "explain", Value: explainTarget}}
	if verbosity != "" {
		cmd = append(cmd, bson.E{Key: "verbosity", Value: verbosity})
	}

	var plan bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&plan); err != nil {
		return nil, Errorf("explain failed: %v", err)
	}

	safe, err := bsonx.ToExtJSON(plan)
	if err != nil {
		return nil, Errorf("explain failed: %v", err)
	}
	return map[string]any{"result": safe}, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
