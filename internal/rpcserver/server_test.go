package rpcserver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/tools"
	"github.com/homelead/mcphost/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCodec is a transport.Codec backed by an in-memory queue of inbound
// messages and a slice capturing every written response.
type fakeCodec struct {
	mu      sync.Mutex
	inbound []transport.Message
	written []transport.Message
	closed  bool
}

func (c *fakeCodec) ReadMessage(ctx context.Context) (transport.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return nil, nil
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return msg, nil
}

func (c *fakeCodec) WriteMessage(ctx context.Context, msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	return nil
}

func (c *fakeCodec) Close() error {
	c.closed = true
	return nil
}

func newTestServer() (*Server, *tools.Runner) {
	cfg := &config.Config{}
	sess := session.New(cfg)
	deps := tools.Deps{Session: sess, Config: cfg, Log: discardLogger()}
	runner := tools.NewRunner(deps, nil)
	runner.Register(tools.NewListCollections(deps))
	srv := New(sess, cfg, nil, runner, discardLogger())
	return srv, runner
}

func TestServeDispatchesToolCall(t *testing.T) {
	srv, _ := newTestServer()
	codec := &fakeCodec{inbound: []transport.Message{
		{"jsonrpc": "1.0", "id": float64(1), "method": "list_collections", "params": map[string]any{}},
	}}

	err := srv.Serve(context.Background(), codec)
	require.NoError(t, err)

	require.Len(t, codec.written, 1)
	resp := codec.written[0]
	assert.Equal(t, float64(1), resp["id"])
	assert.NotContains(t, resp, "error")
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result, "result")
}

func TestServeUnknownToolReturnsRPCError(t *testing.T) {
	srv, _ := newTestServer()
	codec := &fakeCodec{inbound: []transport.Message{
		{"jsonrpc": "1.0", "id": float64(2), "method": "does_not_exist", "params": map[string]any{}},
	}}

	err := srv.Serve(context.Background(), codec)
	require.NoError(t, err)

	resp := codec.written[0]
	errBody, ok := resp["error"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, errBody["message"], "unknown tool")
}

func TestHandleCapabilityTracksSubscribers(t *testing.T) {
	srv, _ := newTestServer()
	codec := &fakeCodec{}

	ok, err := srv.handleCapability(codec, map[string]any{"name": "logging", "enabled": true})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, srv.Subscribers("logging"), 1)

	ok, err = srv.handleCapability(codec, map[string]any{"name": "logging", "enabled": false})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, srv.Subscribers("logging"))
}

func TestHandleCapabilityRejectsUnknown(t *testing.T) {
	srv, _ := newTestServer()
	codec := &fakeCodec{}

	_, err := srv.handleCapability(codec, map[string]any{"name": "teleport"})
	assert.Error(t, err)
}

func TestHandleResourceRunsRegisteredHandler(t *testing.T) {
	srv, _ := newTestServer()
	srv.Resource("config", func() (any, error) {
		return map[string]any{"debug": false}, nil
	})

	out, err := srv.handleResource(map[string]any{"name": "config"})
	require.NoError(t, err)
	asMap := out.(map[string]any)
	assert.Equal(t, false, asMap["debug"])
}

func TestHandleResourceUnknownNameErrors(t *testing.T) {
	srv, _ := newTestServer()
	_, err := srv.handleResource(map[string]any{"name": "does-not-exist"})
	assert.Error(t, err)
}

func TestLogSubscribersAdaptsCodecs(t *testing.T) {
	srv, _ := newTestServer()
	codec := &fakeCodec{}
	_, err := srv.handleCapability(codec, map[string]any{"name": "logging", "enabled": true})
	require.NoError(t, err)

	subs := srv.LogSubscribers("logging")
	require.Len(t, subs, 1)

	require.NoError(t, subs[0].WriteMessage(context.Background(), map[string]any{"level": "info"}))
	require.Len(t, codec.written, 1)
}

func TestOnInitializedAndOnCloseHooksRun(t *testing.T) {
	srv, _ := newTestServer()
	var initialized, closed bool
	srv.OnInitialized(func() { initialized = true })
	srv.OnClose(func(error) { closed = true })

	codec := &fakeCodec{}
	require.NoError(t, srv.Serve(context.Background(), codec))

	assert.True(t, initialized)
	assert.True(t, closed)
}
