// Package trim shrinks tool results before they're handed back to the
// planning model: opaque binary-ish fields are dropped, list fields and
// document counts are capped, and each tool has its own notion of "this
// came back empty".
package trim

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bigFields are opaque or binary-leaning fields stripped from every
// trimmed document regardless of tool.
var bigFields = map[string]bool{
	"images": true, "videos": true, "documents": true, "brochure": true,
	"qrCode": true, "govtApprovedDocuments": true, "layoutPlanImages": true,
}

// MaxDocs bounds how many documents survive trimming per result bucket.
const MaxDocs = 15

// maxListItems bounds how many items survive inside a trimmed list
// sub-field.
const maxListItems = 10

// ToJSONSafe converts BSON-native scalars (ObjectId, time values,
// binary) into JSON-friendly representations.
func ToJSONSafe(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time()
	case primitive.Binary:
		return "<binary>"
	default:
		return v
	}
}

// Document strips "__v" and the big opaque fields, recurses into nested
// documents, and caps list sub-fields at maxListItems.
func Document(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "__v" || bigFields[k] {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			out[k] = Document(t)
		case []any:
			limit := len(t)
			if limit > maxListItems {
				limit = maxListItems
			}
			items := make([]any, 0, limit)
			for _, x := range t[:limit] {
				if m, ok := x.(map[string]any); ok {
					items = append(items, Document(m))
				} else {
					items = append(items, ToJSONSafe(x))
				}
			}
			out[k] = items
		default:
			out[k] = ToJSONSafe(v)
		}
	}
	return out
}

func capDocs(docs []any) []any {
	if len(docs) > MaxDocs {
		docs = docs[:MaxDocs]
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		if m, ok := d.(map[string]any); ok {
			out[i] = Document(m)
		} else {
			out[i] = d
		}
	}
	return out
}

// Result trims a raw tool result according to which tool produced it.
// Unknown tool names pass through unchanged.
func Result(tool string, raw map[string]any) map[string]any {
	switch tool {
	case "find":
		results, _ := raw["results"].([]any)
		trimmed := make([]any, len(results))
		for i, b := range results {
			bucket, ok := b.(map[string]any)
			if !ok {
				trimmed[i] = b
				continue
			}
			docs, _ := bucket["documents"].([]any)
			newBucket := make(map[string]any, len(bucket))
			for k, v := range bucket {
				newBucket[k] = v
			}
			newBucket["documents"] = capDocs(docs)
			trimmed[i] = newBucket
		}
		out := make(map[string]any, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		out["results"] = trimmed
		return out

	case "aggregate":
		result, _ := raw["result"].([]any)
		out := make(map[string]any, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		out["result"] = capDocs(result)
		return out

	case "search":
		entries, _ := raw["results"].([]any)
		trimmed := make([]any, 0, len(entries))
		for _, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				continue
			}
			hits, _ := entry["hits"].([]any)
			limit := len(hits)
			if limit > MaxDocs {
				limit = MaxDocs
			}
			newHits := make([]any, 0, limit)
			for _, h := range hits[:limit] {
				hit, ok := h.(map[string]any)
				if !ok {
					continue
				}
				id := hit["_id"]
				if oid, ok := id.(primitive.ObjectID); ok {
					id = oid.Hex()
				}
				newHits = append(newHits, map[string]any{
					"_id":     id,
					"matches": hit["matches"],
				})
			}
			trimmed = append(trimmed, map[string]any{
				"collection": entry["collection"],
				"hits":       newHits,
			})
		}
		return map[string]any{"results": trimmed}

	default:
		return raw
	}
}

// IsEmpty reports whether a (already trimmed) result is empty according
// to the tool-specific definition the orchestrator uses to decide
// whether to nudge the model for a broader query.
func IsEmpty(tool string, result map[string]any) bool {
	switch tool {
	case "count":
		n, _ := result["result"].(int64)
		return n == 0
	case "find":
		switch n := result["total_documents"].(type) {
		case int:
			return n == 0
		case int64:
			return n == 0
		default:
			return true
		}
	case "aggregate":
		rs, _ := result["result"].([]any)
		return len(rs) == 0
	case "search":
		rs, _ := result["results"].([]any)
		return len(rs) == 0
	default:
		return false
	}
}
