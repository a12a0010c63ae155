package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWebSocketCodecRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		codec := NewWebSocket(conn)
		defer codec.Close()

		msg, err := codec.ReadMessage(context.Background())
		require.NoError(t, err)
		require.Equal(t, "find", msg["method"])

		err = codec.WriteMessage(context.Background(), Message{"jsonrpc": "1.0", "id": 1, "result": "ok"})
		require.NoError(t, err)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	clientCodec := NewWebSocket(conn)
	require.NoError(t, clientCodec.WriteMessage(context.Background(), Message{"jsonrpc": "1.0", "id": 1, "method": "find"}))

	resp, err := clientCodec.ReadMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", resp["result"])
}
