package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/orchestrator"
	"github.com/homelead/mcphost/internal/router"
	"github.com/homelead/mcphost/internal/rpcserver"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/tools"
)

func newTestChatOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := &config.Config{}
	sess := session.New(cfg)
	deps := tools.Deps{Session: sess, Config: cfg, Log: discardLogger()}
	runner := tools.NewRunner(deps, nil)
	runner.Register(tools.NewListCollections(deps))

	client := openai.NewClient("unused-test-key")
	o := orchestrator.New(runner, sess, router.New(nil, discardLogger()), nil, client, "", 5*time.Second, discardLogger())
	require.NoError(t, o.Prime(context.Background()))
	return o
}

func TestHandleChatReturnsReplyForGreeting(t *testing.T) {
	orch := newTestChatOrchestrator(t)
	handler := handleChat(orch, discardLogger())

	body, _ := json.Marshal(chatRequest{CompanyID: "company-1", Query: "hello there"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "HomeLead AI")
}

func TestHandleChatRejectsMissingFields(t *testing.T) {
	orch := newTestChatOrchestrator(t)
	handler := handleChat(orch, discardLogger())

	body, _ := json.Marshal(chatRequest{CompanyID: "", Query: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatRejectsMalformedJSON(t *testing.T) {
	orch := newTestChatOrchestrator(t)
	handler := handleChat(orch, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebSocketUpgradesAndServesRPC(t *testing.T) {
	cfg := &config.Config{}
	sess := session.New(cfg)
	deps := tools.Deps{Session: sess, Config: cfg, Log: discardLogger()}
	runner := tools.NewRunner(deps, nil)
	runner.Register(tools.NewListCollections(deps))
	srv := rpcserver.New(sess, cfg, nil, runner, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := httptest.NewServer(handleWebSocket(ctx, srv, discardLogger()))
	defer ts.Close()

	wsURL := "ws" + ts.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := map[string]any{"jsonrpc": "1.0", "id": 1, "method": "list_collections", "params": map[string]any{}}
	require.NoError(t, conn.WriteJSON(req))

	var resp map[string]any
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Contains(t, resp, "result")
}
