package tools

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/mcphost/internal/bsonx"
)

const (
	defaultQueryTimeout  = 30 * time.Second
	maxCollectionsToScan = 100
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

type findTool struct{ base }

// NewFind returns the find tool.
func NewFind(deps Deps) Tool {
	return &findTool{newBase(deps, "find",
		"Query one collection, or scan every allowed collection when none is given, for documents matching a filter.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"database":       map[string]any{"type": "string"},
				"collection":     map[string]any{"type": "string", "pattern": nameRe.String()},
				"filter":         map[string]any{"type": "object"},
				"projection":     map[string]any{"type": "object"},
				"sort":           map[string]any{"type": "object"},
				"skip":           map[string]any{"type": "integer", "minimum": 0, "maximum": 10000, "default": 0},
				"limit":          map[string]any{"type": "integer", "minimum": 1, "maximum": 1000, "default": 10},
				"stopAfterFirst": map[string]any{"type": "boolean", "default": true},
			},
		})}
}

func (t *findTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	start := time.Now()

	dbNameArg, _ := args["database"].(string)
	db, err := t.deps.Session.DB(dbNameArg)
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}
	dbName := db.Name()

	filter, _ := args["filter"].(map[string]any)
	if filter == nil {
		filter = map[string]any{}
	}
	filter = unwrapCIRegex(filter).(map[string]any)

	var collList []string
	if coll, ok := args["collection"].(string); ok && coll != "" {
		collList = []string{coll}
	} else {
		collList, err = t.collectionWhitelist(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(collList) > maxCollectionsToScan {
			collList = collList[:maxCollectionsToScan]
		}
	}

	projection, _ := args["projection"].(map[string]any)
	sort, _ := args["sort"].(map[string]any)
	skip := intArg(args, "skip", 0)
	limit := intArg(args, "limit", 10)
	stopAfterFirst := true
	if v, ok := args["stopAfterFirst"].(bool); ok {
		stopAfterFirst = v
	}

	var results []any
	totalDocs := 0
	for _, collName := range collList {
		coll := db.Collection(collName)
		docs, err := queryCollection(ctx, coll, filter, projection, sort, skip, limit)
		if err != nil {
			return nil, Errorf("database error: %v", err)
		}
		if len(docs) > 0 {
			results = append(results, map[string]any{
				"collection": collName,
				"documents":  docs,
				"count":      len(docs),
			})
			totalDocs += len(docs)
			if stopAfterFirst {
				break
			}
		}
	}

	return map[string]any{
		"results":             results,
		"total_documents":     totalDocs,
		"collections_scanned": collList,
		"database":            dbName,
		"duration_ms":         time.Since(start).Milliseconds(),
	}, nil
}

func (t *findTool) collectionWhitelist(ctx context.Context, db *mongo.Database) ([]string, error) {
	if len(t.deps.Config.AllowedCollections) > 0 {
		return append([]string(nil), t.deps.Config.AllowedCollections...), nil
	}
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, Errorf("cannot list collections")
	}
	return names, nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

var anchoredLiteral = regexp.MustCompile(`^\^(.*)\$$`)

// unwrapCIRegex is the exact inverse of injectCaseInsensitive: it
// unwraps only the {"$regex": "^literal$", "$options": "i"} shape back
// into its original literal string, leaving every other regex
// (wildcards, partial anchors, case-sensitive) untouched. This is load
// bearing for round-tripping a filter the model wrote using a plain
// string through tenant scoping and back into the query the user
// intended.
func unwrapCIRegex(obj any) any {
	switch t := obj.(type) {
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = unwrapCIRegex(v)
		}
		return out
	case map[string]any:
		if len(t) == 2 {
			regexRaw, hasRegex := t["$regex"]
			opts, hasOpts := t["$options"]
			if hasRegex && hasOpts && opts == "i" {
				if regexStr, ok := regexRaw.(string); ok {
					if m := anchoredLiteral.FindStringSubmatch(regexStr); m != nil {
						return m[1]
					}
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = unwrapCIRegex(v)
		}
		return out
	default:
		return obj
	}
}

func queryCollection(ctx context.Context, coll *mongo.Collection, filter, projection, sort map[string]any, skip, limit int) ([]any, error) {
	opts := options.Find().SetLimit(int64(limit)).SetMaxTime(defaultQueryTimeout)
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if projection != nil {
		opts.SetProjection(bson.M(projection))
	}
	if sort != nil {
		opts.SetSort(bson.M(sort))
	}

	cur, err := coll.Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(docs))
	for _, d := range docs {
		safe, err := bsonx.ToExtJSON(d)
		if err != nil {
			return nil, err
		}
		out = append(out, safe)
	}
	return out, nil
}
