package trim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDocumentStripsOpaqueFields(t *testing.T) {
	doc := map[string]any{
		"name":   "Plot A1",
		"__v":    1,
		"images": []any{"a.png", "b.png"},
	}
	out := Document(doc)
	assert.Equal(t, "Plot A1", out["name"])
	assert.NotContains(t, out, "__v")
	assert.NotContains(t, out, "images")
}

func TestDocumentRecursesAndCapsLists(t *testing.T) {
	items := make([]any, 20)
	for i := range items {
		items[i] = map[string]any{"n": i, "__v": 1}
	}
	doc := map[string]any{"children": items}
	out := Document(doc)
	children := out["children"].([]any)
	assert.Len(t, children, 10)
	first := children[0].(map[string]any)
	assert.NotContains(t, first, "__v")
}

func TestDocumentConvertsObjectID(t *testing.T) {
	id := primitive.NewObjectID()
	out := Document(map[string]any{"_id": id})
	assert.Equal(t, id.Hex(), out["_id"])
}

func TestResultFindCapsDocumentsPerBucket(t *testing.T) {
	docs := make([]any, 20)
	for i := range docs {
		docs[i] = map[string]any{"n": i}
	}
	raw := map[string]any{
		"results": []any{
			map[string]any{"collection": "plots", "documents": docs},
		},
	}
	out := Result("find", raw)
	results := out["results"].([]any)
	bucket := results[0].(map[string]any)
	assert.Len(t, bucket["documents"], MaxDocs)
}

func TestResultAggregateCapsDocs(t *testing.T) {
	docs := make([]any, 20)
	for i := range docs {
		docs[i] = map[string]any{"n": i}
	}
	out := Result("aggregate", map[string]any{"result": docs})
	assert.Len(t, out["result"], MaxDocs)
}

func TestResultSearchHexEncodesID(t *testing.T) {
	id := primitive.NewObjectID()
	raw := map[string]any{
		"results": []any{
			map[string]any{
				"collection": "plots",
				"hits": []any{
					map[string]any{"_id": id, "matches": []any{"plot a"}},
				},
			},
		},
	}
	out := Result("search", raw)
	results := out["results"].([]any)
	bucket := results[0].(map[string]any)
	hits := bucket["hits"].([]any)
	hit := hits[0].(map[string]any)
	assert.Equal(t, id.Hex(), hit["_id"])
}

func TestResultUnknownToolPassesThrough(t *testing.T) {
	raw := map[string]any{"result": 42}
	out := Result("list_collections", raw)
	assert.Equal(t, raw, out)
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		result map[string]any
		want   bool
	}{
		{"count zero", "count", map[string]any{"result": int64(0)}, true},
		{"count nonzero", "count", map[string]any{"result": int64(5)}, false},
		{"find zero total", "find", map[string]any{"total_documents": 0}, true},
		{"find nonzero total", "find", map[string]any{"total_documents": 3}, false},
		{"find missing total", "find", map[string]any{}, true},
		{"aggregate empty", "aggregate", map[string]any{"result": []any{}}, true},
		{"aggregate nonempty", "aggregate", map[string]any{"result": []any{1}}, false},
		{"search empty", "search", map[string]any{"results": []any{}}, true},
		{"unknown tool never empty", "list_collections", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.tool, tt.result))
		})
	}
}
