package tools

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/mcphost/internal/bsonx"
	"github.com/homelead/mcphost/internal/schema"
)

type aggregateTool struct {
	base
	registry *schema.Registry
}

var statOps = map[string]bool{"avg": true, "sum": true, "min": true, "max": true}

// NewAggregate returns the aggregate tool.
func NewAggregate(deps Deps, reg *schema.Registry) Tool {
	return &aggregateTool{
		base: newBase(deps, "aggregate",
			"Run a grouped statistic, a facet count, or a custom aggregation pipeline against one collection.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"database":     map[string]any{"type": "string"},
					"collection":   map[string]any{"type": "string"},
					"pipeline":     map[string]any{"type": "array"},
					"groupBy":      map[string]any{},
					"statField":    map[string]any{"type": "string"},
					"statOp":       map[string]any{"type": "string"},
					"filter":       map[string]any{"type": "object"},
					"sortBy":       map[string]any{"type": "string"},
					"sortDir":      map[string]any{"type": "string", "default": "desc"},
					"limit":        map[string]any{"type": "integer", "minimum": 1, "default": 100},
					"allowDiskUse": map[string]any{"type": "boolean", "default": false},
				},
				"required": []any{"collection"},
			}),
		registry: reg,
	}
}

func (t *aggregateTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	collName, _ := args["collection"].(string)

	hasPipeline := len(asSlice(args["pipeline"])) > 0
	groupBy := args["groupBy"]
	statField, _ := args["statField"].(string)
	statOp, _ := args["statOp"].(string)
	if !hasPipeline && groupBy == nil && statField == "" {
		return nil, Errorf("must provide at least one of 'pipeline', 'groupBy' or 'statField'")
	}

	dbName, _ := args["database"].(string)
	db, err := t.deps.Session.DB(dbName)
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}
	coll := db.Collection(collName)

	var pipeline []any

	baseFilter, _ := args["filter"].(map[string]any)
	if baseFilter == nil {
		baseFilter = map[string]any{}
	} else {
		baseFilter = cloneArgs(baseFilter)
	}
	if t.deps.Session.HasTenant() && !t.deps.Config.IsNonTenant(collName) {
		baseFilter["company"] = t.deps.Session.TenantID()
	}
	matchFilter := injectCaseInsensitive(convertISODates(baseFilter))
	pipeline = append(pipeline, map[string]any{"$match": matchFilter})

	isFacet := false

	switch {
	case hasPipeline:
		pipeline = append(pipeline, sanitizePipelineKeys(asSlice(args["pipeline"]))...)

	case groupBy != nil && statField != "" && statOp != "":
		op := strings.ToLower(statOp)
		if !statOps[op] {
			return nil, Errorf("unsupported statOp %q", statOp)
		}
		gf := normalizeGroupFields(groupBy, collName, t.registry)
		sf := normalizeFieldName(statField, collName, t.registry)

		groupKey, proj := groupKeyAndProjection(gf)
		pipeline = append(pipeline,
			map[string]any{"$group": map[string]any{"_id": groupKey, "stat": map[string]any{"$" + op: "$" + sf}}},
		)
		pipeline = append(pipeline, map[string]any{"$project": proj})

	case statField != "" && statOp != "":
		op := strings.ToLower(statOp)
		if !statOps[op] {
			return nil, Errorf("unsupported statOp %q", statOp)
		}
		sf := normalizeFieldName(statField, collName, t.registry)
		pipeline = append(pipeline,
			map[string]any{"$group": map[string]any{"_id": nil, "result": map[string]any{"$" + op: "$" + sf}}},
			map[string]any{"$project": map[string]any{"_id": 0, "result": 1}},
		)

	case groupBy != nil:
		nf := normalizeGroupFields(groupBy, collName, t.registry)
		gid, proj := facetGroupKeyAndProjection(nf)
		isFacet = true
		pipeline = append(pipeline, map[string]any{
			"$facet": map[string]any{
				"total": []any{map[string]any{"$count": "total"}},
				"byGroup": []any{
					map[string]any{"$group": map[string]any{"_id": gid, "count": map[string]any{"$sum": 1}}},
					map[string]any{"$project": proj},
				},
			},
		})

	default:
		pipeline = append(pipeline, map[string]any{"$count": "count"})
	}

	if !isFacet {
		for _, stage := range pipeline {
			if m, ok := stage.(map[string]any); ok {
				if _, has := m["$facet"]; has {
					isFacet = true
					break
				}
			}
		}
	}

	if sortBy, _ := args["sortBy"].(string); sortBy != "" && !isFacet {
		sf := normalizeFieldName(sortBy, collName, t.registry)
		dir := -1
		if sortDir, _ := args["sortDir"].(string); strings.EqualFold(sortDir, "asc") {
			dir = 1
		}
		pipeline = append(pipeline, map[string]any{"$sort": map[string]any{sf: dir}})
	}
	if limit := intArg(args, "limit", 100); limit > 0 && !isFacet {
		pipeline = append(pipeline, map[string]any{"$limit": limit})
	}

	pipeline = sanitizePipelineKeys(pipeline)

	allowDiskUse, _ := args["allowDiskUse"].(bool)
	opts := options.Aggregate()
	if allowDiskUse {
		opts.SetAllowDiskUse(true)
	}

	bsonPipeline := make(bson.A, len(pipeline))
	for i, s := range pipeline {
		bsonPipeline[i] = s
	}

	cur, err := coll.Aggregate(ctx, bsonPipeline, opts)
	if err != nil {
		return nil, Errorf("aggregation failed: %v", err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, Errorf("aggregation failed: %v", err)
	}

	out := make([]any, 0, len(docs))
	for _, d := range docs {
		safe, err := bsonx.ToExtJSON(d)
		if err != nil {
			return nil, Errorf("aggregation failed: %v", err)
		}
		out = append(out, safe)
	}
	return map[string]any{"result": out}, nil
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func normalizeGroupFields(groupBy any, collection string, reg *schema.Registry) []string {
	switch t := groupBy.(type) {
	case string:
		return []string{normalizeFieldName(t, collection, reg)}
	case []any:
		out := make([]string, 0, len(t))
		for _, f := range t {
			if s, ok := f.(string); ok {
				out = append(out, normalizeFieldName(s, collection, reg))
			}
		}
		return out
	default:
		return nil
	}
}

func groupKeyAndProjection(fields []string) (groupKey any, proj map[string]any) {
	if len(fields) == 1 {
		groupKey = "$" + fields[0]
		proj = map[string]any{"_id": 0, "stat": 1, "group": "$_id"}
		return
	}
	gk := make(map[string]any, len(fields))
	proj = map[string]any{"_id": 0, "stat": 1}
	for _, f := range fields {
		gk[f] = "$" + f
		proj[f] = "$_id." + f
	}
	return gk, proj
}

// facetGroupKeyAndProjection builds the $group id and $project for the
// facet-only (groupBy with no statField/statOp) branch, whose preceding
// $group emits only {_id, count} — a single grouped field projects to
// "field", not "stat"/"group", matching the original's elif-groupBy mode.
func facetGroupKeyAndProjection(fields []string) (groupKey any, proj map[string]any) {
	if len(fields) == 1 {
		groupKey = "$" + fields[0]
		proj = map[string]any{"_id": 0, "count": 1, "field": "$_id"}
		return
	}
	gk := make(map[string]any, len(fields))
	proj = map[string]any{"_id": 0, "count": 1}
	for _, f := range fields {
		gk[f] = "$" + f
		proj[f] = "$_id." + f
	}
	return gk, proj
}

// normalizeFieldName maps a loosely-cased/underscored field name onto
// the collection's actual schema field name, falling back to the raw
// input when no schema entry matches.
func normalizeFieldName(input, collection string, reg *schema.Registry) string {
	fields := reg.FieldsOf(collection)
	key := strings.ToLower(strings.ReplaceAll(input, "_", ""))
	for field := range fields {
		if strings.ToLower(field) == key {
			return field
		}
	}
	return input
}

// convertISODates recursively parses RFC3339 strings into time.Time so
// date comparisons in a user-supplied filter work against BSON dates
// rather than strings.
func convertISODates(obj any) any {
	switch t := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = convertISODates(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = convertISODates(v)
		}
		return out
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
		return t
	default:
		return obj
	}
}

// sanitizePipelineKeys strips whitespace from every stage's top-level
// keys, defensive against planner-model artifacts like " $group".
func sanitizePipelineKeys(pipeline []any) []any {
	out := make([]any, len(pipeline))
	for i, stage := range pipeline {
		out[i] = cleanKeys(stage)
	}
	return out
}

func cleanKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.TrimSpace(k)] = cleanKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cleanKeys(val)
		}
		return out
	default:
		return v
	}
}
