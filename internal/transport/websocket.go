package transport

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/homelead/mcphost/internal/bsonx"
)

// WebSocketCodec frames one JSON-RPC object per text message over a
// gorilla/websocket connection, the duplex-byte-stream variant for the
// web-mode surface.
type WebSocketCodec struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// NewWebSocket wraps an already-upgraded connection.
func NewWebSocket(conn *websocket.Conn) *WebSocketCodec {
	return &WebSocketCodec{conn: conn}
}

func (c *WebSocketCodec) ReadMessage(ctx context.Context) (Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, nil
		}
		return nil, err
	}
	return bsonx.DecodeMessage(data)
}

func (c *WebSocketCodec) WriteMessage(ctx context.Context, msg Message) error {
	text, err := bsonx.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, text)
}

func (c *WebSocketCodec) Close() error { return c.conn.Close() }
