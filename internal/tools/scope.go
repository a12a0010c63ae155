package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (r *Runner) validate(t Tool, args map[string]any) error {
	if _, ok := args["database"]; !ok {
		if props, isMap := t.RawSchema()["properties"].(map[string]any); isMap {
			if _, wants := props["database"]; wants {
				args["database"] = r.deps.Session.DBName()
			}
		}
	}

	sch := t.Schema()
	if sch == nil {
		return nil
	}
	if err := sch.Validate(args); err != nil {
		return Errorf("invalid arguments: %s", err.Error())
	}
	return nil
}

// applyTenantScope mirrors ToolBase.run's filter/pipeline tenant
// injection: a "filter"+"collection" pair gets company-scoped and
// case-insensitive-regex-injected; a "pipeline"+"collection" pair gets
// a leading $match stage inserted unless one already references the
// tenant key.
//
// aggregate builds its own tenant $match directly from the session's
// tenant id (see aggregate.go) since it is the one tool whose filter
// and pipeline arguments interact — running the generic scoping here
// too would double-wrap the match stage.
func (r *Runner) applyTenantScope(name string, args map[string]any) error {
	if name == "aggregate" {
		return nil
	}

	coll, hasColl := args["collection"].(string)

	if filterRaw, ok := args["filter"]; ok && hasColl {
		filter, _ := filterRaw.(map[string]any)
		if filter == nil {
			filter = map[string]any{}
		}

		var scoped map[string]any
		if r.deps.Config.IsNonTenant(coll) {
			scoped = injectCaseInsensitive(filter).(map[string]any)
		} else {
			var err error
			scoped, err = MakeCompanyFilter(coll, r.deps.Session.TenantID(), filter)
			if err != nil {
				return err
			}
			scoped = injectCaseInsensitive(scoped).(map[string]any)
		}
		args["filter"] = scoped
	}

	if pipelineRaw, ok := args["pipeline"]; ok && hasColl {
		pipeline, _ := pipelineRaw.([]any)
		if !r.deps.Config.IsNonTenant(coll) {
			tenantMatch, err := MakeCompanyFilter(coll, r.deps.Session.TenantID(), nil)
			if err != nil {
				return err
			}
			if !pipelineHasTenantMatch(pipeline, tenantMatch) {
				stage := map[string]any{"$match": tenantMatch}
				pipeline = append([]any{stage}, pipeline...)
			}
		}
		args["pipeline"] = pipeline
	}

	return nil
}

func pipelineHasTenantMatch(pipeline []any, tenantMatch map[string]any) bool {
	if len(pipeline) == 0 {
		return false
	}
	first, ok := pipeline[0].(map[string]any)
	if !ok {
		return false
	}
	match, ok := first["$match"].(map[string]any)
	if !ok {
		return false
	}
	for k := range tenantMatch {
		if _, found := match[k]; found {
			return true
		}
	}
	return false
}

func (r *Runner) checkAllowed(ctx context.Context, args map[string]any) error {
	coll, ok := args["collection"].(string)
	if !ok || coll == "" {
		return nil
	}
	if r.deps.Config.IsAllowed(coll) {
		return nil
	}
	var whitelist []string
	if r.listCollections != nil {
		whitelist, _ = r.listCollections(ctx)
	} else {
		whitelist = r.deps.Config.AllowedCollections
	}
	if len(whitelist) == 0 {
		return Errorf("no collections are currently allowed; check your allowed_collections configuration")
	}
	return Errorf("collection %q not in allowed list. Allowed collections: %s", coll, strings.Join(whitelist, ", "))
}

// MakeCompanyFilter builds the tenant-scoping filter for a collection:
// {"_id": tenantID} for the companies collection itself, {"company":
// tenantID} for everything else, merged with any caller-supplied extra
// filter.
func MakeCompanyFilter(collection string, tenantID primitive.ObjectID, extra map[string]any) (map[string]any, error) {
	if tenantID == primitive.NilObjectID {
		return nil, fmt.Errorf("tools: no tenant bound to session")
	}
	base := map[string]any{}
	if collection == "companies" {
		base["_id"] = tenantID
	} else {
		base["company"] = tenantID
	}
	for k, v := range extra {
		base[k] = v
	}
	return base, nil
}

// injectCaseInsensitive replaces every string leaf in a filter document
// with a case-insensitive exact-match regex, the way the original's
// _inject_case_insensitive leaves operator documents (keys starting
// with "$" whose value is itself a dict or list) untouched so operators
// like $in, $gte, $exists keep their literal semantics.
func injectCaseInsensitive(obj any) any {
	switch t := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			if strings.HasPrefix(k, "$") {
				switch v.(type) {
				case map[string]any, []any:
					out[k] = v
					continue
				}
			}
			out[k] = injectCaseInsensitive(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = injectCaseInsensitive(v)
		}
		return out
	case string:
		return map[string]any{"$regex": regexp.QuoteMeta(t), "$options": "i"}
	default:
		return obj
	}
}
