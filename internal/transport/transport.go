// Package transport frames JSON-RPC messages over stdio or WebSocket,
// preserving BSON Extended JSON in both directions.
package transport

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Message is one JSON-RPC 1.0-shaped frame, request or response or
// notification.
type Message = bson.M

// Codec reads and writes one JSON-RPC message at a time over a duplex
// byte stream. ReadMessage returns (nil, nil) on a clean end of stream.
type Codec interface {
	ReadMessage(ctx context.Context) (Message, error)
	WriteMessage(ctx context.Context, msg Message) error
	Close() error
}
