package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCollectionsReturnsStaticList(t *testing.T) {
	deps := Deps{Log: discardLogger()}
	tool := NewListCollections(deps)

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	names, ok := out["result"].([]string)
	require.True(t, ok)
	assert.Equal(t, ListedCollections, names)
}

func TestListCollectionsResultIsACopy(t *testing.T) {
	deps := Deps{Log: discardLogger()}
	tool := NewListCollections(deps)

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	names := out["result"].([]string)
	names[0] = "mutated"
	assert.NotEqual(t, "mutated", ListedCollections[0])
}
