package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCountDocuments(t *testing.T) {
	deps := newTestDeps(t, nil)
	tool := NewCount(deps)

	coll, err := deps.Session.Collection("plots")
	require.NoError(t, err)
	_, err = coll.InsertMany(context.Background(), []any{
		bson.M{"status": "available"},
		bson.M{"status": "available"},
		bson.M{"status": "sold"},
	})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), map[string]any{
		"collection": "plots",
		"filter":     map[string]any{"status": "available"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, out["result"])
}

func TestCountDocumentsDefaultsToEmptyFilter(t *testing.T) {
	deps := newTestDeps(t, nil)
	tool := NewCount(deps)

	coll, err := deps.Session.Collection("plots")
	require.NoError(t, err)
	_, err = coll.InsertOne(context.Background(), bson.M{"status": "available"})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), map[string]any{"collection": "plots"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, out["result"])
}
