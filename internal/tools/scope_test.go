package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMakeCompanyFilterCompaniesCollection(t *testing.T) {
	tenant := primitive.NewObjectID()
	f, err := MakeCompanyFilter("companies", tenant, map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, tenant, f["_id"])
	assert.Equal(t, "active", f["status"])
	assert.NotContains(t, f, "company")
}

func TestMakeCompanyFilterOtherCollection(t *testing.T) {
	tenant := primitive.NewObjectID()
	f, err := MakeCompanyFilter("plots", tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, tenant, f["company"])
}

func TestMakeCompanyFilterRequiresTenant(t *testing.T) {
	_, err := MakeCompanyFilter("plots", primitive.NilObjectID, nil)
	assert.Error(t, err)
}

func TestInjectCaseInsensitiveReplacesStringLeaves(t *testing.T) {
	out := injectCaseInsensitive(map[string]any{"name": "Sonu Sharma"}).(map[string]any)
	regex, ok := out["name"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Sonu Sharma", regex["$regex"])
	assert.Equal(t, "i", regex["$options"])
}

func TestInjectCaseInsensitiveEscapesRegexMetacharacters(t *testing.T) {
	out := injectCaseInsensitive(map[string]any{"name": "a.b*c"}).(map[string]any)
	regex := out["name"].(map[string]any)
	assert.Equal(t, `a\.b\*c`, regex["$regex"])
}

func TestInjectCaseInsensitivePreservesOperatorDocuments(t *testing.T) {
	out := injectCaseInsensitive(map[string]any{
		"status": map[string]any{"$in": []any{"active", "pending"}},
	}).(map[string]any)
	status := out["status"].(map[string]any)
	assert.Equal(t, []any{"active", "pending"}, status["$in"])
}

func TestInjectCaseInsensitiveRecursesIntoLists(t *testing.T) {
	out := injectCaseInsensitive([]any{"a", "b"}).([]any)
	first := out[0].(map[string]any)
	assert.Equal(t, "a", first["$regex"])
}

func TestInjectCaseInsensitiveLeavesNonStringsAlone(t *testing.T) {
	assert.Equal(t, 42, injectCaseInsensitive(42))
	assert.Equal(t, true, injectCaseInsensitive(true))
}

func TestPipelineHasTenantMatch(t *testing.T) {
	tenantMatch := map[string]any{"company": primitive.NewObjectID()}

	assert.False(t, pipelineHasTenantMatch(nil, tenantMatch))
	assert.False(t, pipelineHasTenantMatch([]any{map[string]any{"$project": map[string]any{}}}, tenantMatch))
	assert.True(t, pipelineHasTenantMatch([]any{map[string]any{"$match": map[string]any{"company": "anything"}}}, tenantMatch))
}
