package tools

import "context"

// ListedCollections is the static collection enum pinned into the
// list_collections tool's result and, by extension, into the
// collection argument enums the planning model sees. Kept separate
// from ScannedCollections (see search.go): the two curated lists in the
// system this host replaces never matched exactly, and each serves a
// different purpose here too.
var ListedCollections = []string{
	"companies", "plans", "brokers", "broker-payments", "contracts",
	"contractors", "contractor-payments", "general-expenses", "lands",
	"projects", "properties", "property-bookings", "property-payments",
	"rent-payments", "tenants", "leads", "lead-assignments",
	"lead-rotations", "lead-visited-properties", "lead-notes",
	"amenities", "cold-leads",
}

type listCollectionsTool struct{ base }

// NewListCollections returns the list_collections tool.
func NewListCollections(deps Deps) Tool {
	return &listCollectionsTool{newBase(deps, "list_collections",
		"Return the static list of collections available in this CRM.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"database": map[string]any{"type": "string"},
			},
		})}
}

func (t *listCollectionsTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"result": append([]string(nil), ListedCollections...)}, nil
}
