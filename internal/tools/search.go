package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/mcphost/internal/bsonx"
	"github.com/homelead/mcphost/internal/fuzzy"
)

// ScannedCollections is search's own curated collection list, distinct
// from ListedCollections: it bounds how many collections a full-tenant
// scan touches rather than pinning an enum for the planning model.
var ScannedCollections = []string{
	"companies", "brokers", "broker-payments",
	"contractors", "contractor-payments", "general-expenses",
	"lands", "projects", "properties",
	"property-bookings", "property-payments", "rent-payments",
	"tenants", "leads", "lead-assignments", "lead-rotations",
	"lead-visited-properties", "lead-notes",
	"amenities", "cold-leads",
}

type searchTool struct{ base }

// NewSearch returns the search tool.
func NewSearch(deps Deps) Tool {
	return &searchTool{newBase(deps, "search",
		"Search multiple collections with full-text, regex, and fuzzy matching. Returns hits grouped by collection.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"term":            map[string]any{"type": "string"},
				"fuzzy_threshold": map[string]any{"type": "integer", "default": 80, "minimum": 0, "maximum": 100},
			},
			"required": []any{"term"},
		})}
}

type match struct {
	Path    string `bson:"path" json:"path"`
	Snippet string `bson:"snippet" json:"snippet"`
}

func (t *searchTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	term := strings.TrimSpace(stringArg(args, "term"))
	if term == "" {
		return nil, Errorf("term must not be empty")
	}
	threshold := intArg(args, "fuzzy_threshold", 80)

	tenantID := t.deps.Session.TenantID()
	if tenantID == primitive.NilObjectID {
		return nil, Errorf("no tenant bound to session")
	}

	fullRegex := regexp.MustCompile("(?i)" + regexp.QuoteMeta(term))
	tokens := strings.Fields(term)
	tokenRegexes := make([]*regexp.Regexp, len(tokens))
	for i, tok := range tokens {
		tokenRegexes[i] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(tok))
	}

	db, err := t.deps.Session.DB("")
	if err != nil {
		return nil, Errorf("database error: %v", err)
	}

	var results []any
	for _, collName := range ScannedCollections {
		coll := db.Collection(collName)
		ensureTextIndex(ctx, coll)

		baseFilter := bson.M{"company": tenantID}
		hits, hitIDs := t.exactPhraseHits(ctx, coll, baseFilter, term)

		if len(hits) == 0 {
			hits, hitIDs = t.freeTextHits(ctx, coll, baseFilter, term, hitIDs)
		}
		if len(hits) == 0 && len(tokens) > 0 {
			hits, hitIDs = t.perTokenHits(ctx, coll, baseFilter, tokens, hitIDs)
		}
		truncated := false
		if len(hits) == 0 {
			hits, truncated = t.scanHits(ctx, coll, baseFilter, term, tokens, fullRegex, tokenRegexes, threshold, hitIDs)
		}

		if len(hits) > 0 {
			entry := map[string]any{"collection": collName, "hits": hits}
			if truncated {
				entry["truncated"] = true
			}
			results = append(results, entry)
		}
	}

	return map[string]any{"results": results}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func ensureTextIndex(ctx context.Context, coll *mongo.Collection) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return
	}
	defer cur.Close(ctx)

	hasText := false
	var idxs []bson.M
	if err := cur.All(ctx, &idxs); err == nil {
		for _, idx := range idxs {
			key, _ := idx["key"].(bson.M)
			for _, v := range key {
				if v == "text" {
					hasText = true
				}
			}
		}
	}
	if !hasText {
		_, _ = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "$**", Value: "text"}},
		})
	}
}

func (t *searchTool) exactPhraseHits(ctx context.Context, coll *mongo.Collection, base bson.M, term string) ([]any, map[primitive.ObjectID]bool) {
	filter := bson.M{}
	for k, v := range base {
		filter[k] = v
	}
	filter["$text"] = bson.M{"$search": fmt.Sprintf("%q", term)}
	return t.runTextQuery(ctx, coll, filter, "<full-text>", term)
}

func (t *searchTool) freeTextHits(ctx context.Context, coll *mongo.Collection, base bson.M, term string, seen map[primitive.ObjectID]bool) ([]any, map[primitive.ObjectID]bool) {
	filter := bson.M{}
	for k, v := range base {
		filter[k] = v
	}
	filter["$text"] = bson.M{"$search": term}
	hits, newSeen := t.runTextQuery(ctx, coll, filter, "<text-token>", term)
	return mergeSeen(hits, newSeen, seen)
}

func (t *searchTool) perTokenHits(ctx context.Context, coll *mongo.Collection, base bson.M, tokens []string, seen map[primitive.ObjectID]bool) ([]any, map[primitive.ObjectID]bool) {
	for _, tok := range tokens {
		filter := bson.M{}
		for k, v := range base {
			filter[k] = v
		}
		filter["$text"] = bson.M{"$search": tok}
		hits, newSeen := t.runTextQuery(ctx, coll, filter, "<token-text>", tok)
		if len(hits) > 0 {
			return mergeSeen(hits, newSeen, seen)
		}
	}
	return nil, seen
}

func mergeSeen(hits []any, newSeen, seen map[primitive.ObjectID]bool) ([]any, map[primitive.ObjectID]bool) {
	merged := map[primitive.ObjectID]bool{}
	for id := range seen {
		merged[id] = true
	}
	for id := range newSeen {
		merged[id] = true
	}
	return hits, merged
}

func (t *searchTool) runTextQuery(ctx context.Context, coll *mongo.Collection, filter bson.M, path, snippet string) ([]any, map[primitive.ObjectID]bool) {
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}})

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, nil
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, nil
	}

	seen := make(map[primitive.ObjectID]bool, len(docs))
	hits := make([]any, 0, len(docs))
	for _, d := range docs {
		id, _ := d["_id"].(primitive.ObjectID)
		if seen[id] {
			continue
		}
		seen[id] = true
		hits = append(hits, map[string]any{
			"_id":     id,
			"matches": []match{{Path: path, Snippet: snippet}},
		})
	}
	return hits, seen
}

// scanHits is the final fallback: scan every tenant document in the
// collection and match field-by-field with exact regex, token regex,
// then fuzzy token-set matching.
func (t *searchTool) scanHits(
	ctx context.Context, coll *mongo.Collection, base bson.M, term string, tokens []string,
	fullRegex *regexp.Regexp, tokenRegexes []*regexp.Regexp, threshold int, seen map[primitive.ObjectID]bool,
) ([]any, bool) {
	scanLimit := t.deps.Config.SearchScanLimit
	if scanLimit <= 0 {
		scanLimit = 5000
	}
	cur, err := coll.Find(ctx, base, options.Find().SetLimit(scanLimit))
	if err != nil {
		return nil, false
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, false
	}
	truncated := int64(len(docs)) == scanLimit

	var hits []any
	for _, d := range docs {
		id, _ := d["_id"].(primitive.ObjectID)
		if seen != nil && seen[id] {
			continue
		}
		safe, err := bsonx.ToExtJSON(d)
		if err != nil {
			continue
		}
		m, ok := safe.(map[string]any)
		if !ok {
			continue
		}

		var matches []match
		for path, val := range flattenWithPaths(m, "") {
			if len(val) > 500 {
				continue
			}
			switch {
			case fullRegex.MatchString(val):
				matches = append(matches, match{Path: path, Snippet: val})
			case anyMatches(tokenRegexes, val):
				matches = append(matches, match{Path: path, Snippet: val})
			case fuzzy.TokenSetRatio(term, val) >= threshold:
				matches = append(matches, match{Path: path, Snippet: val})
			case anyFuzzy(tokens, val, threshold):
				matches = append(matches, match{Path: path, Snippet: val})
			}
		}
		if len(matches) > 0 {
			hits = append(hits, map[string]any{"_id": id, "matches": matches})
		}
	}
	return hits, truncated
}

func anyMatches(res []*regexp.Regexp, val string) bool {
	for _, re := range res {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

func anyFuzzy(tokens []string, val string, threshold int) bool {
	for _, tok := range tokens {
		if fuzzy.TokenSetRatio(tok, val) >= threshold {
			return true
		}
	}
	return false
}

// flattenWithPaths walks a decoded document and returns every string
// leaf keyed by its dotted/bracketed path, the way the original's
// recursive flattener builds match snippets; scanHits skips values
// longer than 500 characters.
func flattenWithPaths(v any, parent string) map[string]string {
	out := map[string]string{}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			nk := k
			if parent != "" {
				nk = parent + "." + k
			}
			for p, s := range flattenWithPaths(val, nk) {
				out[p] = s
			}
		}
	case []any:
		for i, val := range t {
			nk := fmt.Sprintf("%s[%d]", parent, i)
			for p, s := range flattenWithPaths(val, nk) {
				out[p] = s
			}
		}
	case string:
		out[parent] = t
	}
	return out
}
