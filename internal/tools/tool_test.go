package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTool is a minimal DB-free Tool used to exercise Runner.Run's
// validation/scoping/telemetry plumbing in isolation.
type fakeTool struct {
	base
	executed map[string]any
	result   map[string]any
	err      error
}

func newFakeTool(deps Deps, name string, schema map[string]any) *fakeTool {
	return &fakeTool{base: newBase(deps, name, "fake tool for tests", schema)}
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	f.executed = args
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return map[string]any{"ok": true}, nil
}

func newTestRunner(cfg *config.Config) (*Runner, *session.Session) {
	sess := session.New(cfg)
	deps := Deps{Session: sess, Config: cfg, Log: discardLogger()}
	return NewRunner(deps, nil), sess
}

func TestRunUnknownTool(t *testing.T) {
	r, _ := newTestRunner(&config.Config{})
	_, err := r.Run(context.Background(), "does_not_exist", nil)
	assert.Error(t, err)
}

func TestRunValidatesSchema(t *testing.T) {
	cfg := &config.Config{}
	r, _ := newTestRunner(cfg)
	ft := newFakeTool(r.deps, "fake", map[string]any{
		"type":       "object",
		"properties": map[string]any{"collection": map[string]any{"type": "string"}},
		"required":   []any{"collection"},
	})
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{})
	require.Error(t, err)

	var te *Error
	require.ErrorAs(t, err, &te)
}

func TestRunAppliesTenantScopeToFilter(t *testing.T) {
	cfg := &config.Config{}
	r, sess := newTestRunner(cfg)
	tenant := primitive.NewObjectID()
	require.NoError(t, sess.SetTenantID(tenant.Hex()))

	ft := newFakeTool(r.deps, "fake", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"collection": map[string]any{"type": "string"},
			"filter":     map[string]any{"type": "object"},
		},
	})
	r.Register(ft)

	out, err := r.Run(context.Background(), "fake", map[string]any{
		"collection": "plots",
		"filter":     map[string]any{"name": "Plot A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, out)

	filter := ft.executed["filter"].(map[string]any)
	assert.Equal(t, tenant, filter["company"])
	nameMatch := filter["name"].(map[string]any)
	assert.Equal(t, "Plot A1", nameMatch["$regex"])
}

func TestRunSkipsTenantScopeForNonTenantCollection(t *testing.T) {
	cfg := &config.Config{NonTenantCollections: []string{"plans"}}
	r, sess := newTestRunner(cfg)
	require.NoError(t, sess.SetTenantID(primitive.NewObjectID().Hex()))

	ft := newFakeTool(r.deps, "fake", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"collection": map[string]any{"type": "string"},
			"filter":     map[string]any{"type": "object"},
		},
	})
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{
		"collection": "plans",
		"filter":     map[string]any{"name": "Gold"},
	})
	require.NoError(t, err)

	filter := ft.executed["filter"].(map[string]any)
	assert.NotContains(t, filter, "company")
}

func TestRunEnforcesAllowList(t *testing.T) {
	cfg := &config.Config{AllowedCollections: []string{"plots"}}
	r, sess := newTestRunner(cfg)
	require.NoError(t, sess.SetTenantID(primitive.NewObjectID().Hex()))

	ft := newFakeTool(r.deps, "fake", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"collection": map[string]any{"type": "string"},
		},
	})
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{"collection": "bookings"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestRunWrapsInternalErrors(t *testing.T) {
	cfg := &config.Config{}
	r, _ := newTestRunner(cfg)
	ft := newFakeTool(r.deps, "fake", map[string]any{"type": "object"})
	ft.err = assertUnwrappedError{}
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "an internal error occurred")
}

type assertUnwrappedError struct{}

func (assertUnwrappedError) Error() string { return "boom" }

func TestRunPropagatesToolError(t *testing.T) {
	cfg := &config.Config{}
	r, _ := newTestRunner(cfg)
	ft := newFakeTool(r.deps, "fake", map[string]any{"type": "object"})
	ft.err = Errorf("bad input: %s", "reason")
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "bad input: reason", err.Error())
}

func TestRegisterExposesListCollectionsHook(t *testing.T) {
	cfg := &config.Config{AllowedCollections: []string{"plots"}}
	r, sess := newTestRunner(cfg)
	require.NoError(t, sess.SetTenantID(primitive.NewObjectID().Hex()))

	lc := newFakeTool(r.deps, "list_collections", map[string]any{"type": "object"})
	lc.result = map[string]any{"result": []string{"plots", "bookings"}}
	r.Register(lc)

	ft := newFakeTool(r.deps, "fake", map[string]any{
		"type":       "object",
		"properties": map[string]any{"collection": map[string]any{"type": "string"}},
	})
	r.Register(ft)

	_, err := r.Run(context.Background(), "fake", map[string]any{"collection": "bookings"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plots, bookings")
}
