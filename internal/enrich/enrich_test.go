package enrich

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testClient    *mongodriver.Client
	testContainer testcontainers.Container
	skipMongoTests bool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		var c *mongodb.MongoDBContainer
		c, containerErr = mongodb.Run(ctx, "mongo:7")
		testContainer = c
	}()

	if containerErr != nil {
		fmt.Printf("Docker not available, enrichment tests will be skipped: %v\n", containerErr)
		skipMongoTests = true
	} else {
		mc, ok := testContainer.(*mongodb.MongoDBContainer)
		if !ok {
			skipMongoTests = true
		} else {
			uri, err := mc.ConnectionString(ctx)
			if err != nil {
				fmt.Printf("failed to get connection string: %v\n", err)
				skipMongoTests = true
			} else {
				testClient, err = mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
				if err != nil || testClient.Ping(ctx, nil) != nil {
					fmt.Printf("failed to connect to mongodb: %v\n", err)
					skipMongoTests = true
				}
			}
		}
	}

	code := m.Run()

	if testClient != nil {
		_ = testClient.Disconnect(ctx)
	}
	if testContainer != nil {
		_ = testContainer.Terminate(ctx)
	}
	os.Exit(code)
}

func newTestEnricher(t *testing.T) *Enricher {
	t.Helper()
	if skipMongoTests {
		t.Skip("docker not available, skipping enrichment test")
	}
	db := testClient.Database("enrich_test_" + t.Name())
	t.Cleanup(func() { _ = db.Drop(context.Background()) })
	return New(db, nil)
}

func TestDocumentPassesThroughUnmappedFields(t *testing.T) {
	e := newTestEnricher(t)
	out, err := e.Document(context.Background(), map[string]any{
		"name":  "Plot A1",
		"price": 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "Plot A1", out["name"])
	assert.Equal(t, 42, out["price"])
}

func TestDocumentResolvesSimpleLookup(t *testing.T) {
	e := newTestEnricher(t)
	ctx := context.Background()

	companyID := primitive.NewObjectID()
	_, err := e.db.Collection("companies").InsertOne(ctx, bson.M{"_id": companyID, "name": "Homelead Realty"})
	require.NoError(t, err)

	out, err := e.Document(ctx, map[string]any{"company": companyID})
	require.NoError(t, err)
	assert.Equal(t, "Homelead Realty", out["company"])
}

func TestDocumentFallsBackToHexWhenReferenceMissing(t *testing.T) {
	e := newTestEnricher(t)
	missing := primitive.NewObjectID()

	out, err := e.Document(context.Background(), map[string]any{"company": missing})
	require.NoError(t, err)
	assert.Equal(t, missing.Hex(), out["company"])
}

func TestDocumentResolvesNestedDocumentsAndLists(t *testing.T) {
	e := newTestEnricher(t)
	ctx := context.Background()

	companyID := primitive.NewObjectID()
	_, err := e.db.Collection("companies").InsertOne(ctx, bson.M{"_id": companyID, "name": "Homelead Realty"})
	require.NoError(t, err)

	out, err := e.Document(ctx, map[string]any{
		"items": []any{
			map[string]any{"company": companyID},
		},
	})
	require.NoError(t, err)

	items := out["items"].([]any)
	item := items[0].(map[string]any)
	assert.Equal(t, "Homelead Realty", item["company"])
}

func TestSimpleLookupMemoizesByCache(t *testing.T) {
	e := newTestEnricher(t)
	ctx := context.Background()

	companyID := primitive.NewObjectID()
	_, err := e.db.Collection("companies").InsertOne(ctx, bson.M{"_id": companyID, "name": "Homelead Realty"})
	require.NoError(t, err)

	first, err := e.simpleLookup(ctx, "companies", companyID, "name")
	require.NoError(t, err)
	assert.Equal(t, "Homelead Realty", first)

	_, err = e.db.Collection("companies").DeleteOne(ctx, bson.M{"_id": companyID})
	require.NoError(t, err)

	second, err := e.simpleLookup(ctx, "companies", companyID, "name")
	require.NoError(t, err)
	assert.Equal(t, "Homelead Realty", second)
}
