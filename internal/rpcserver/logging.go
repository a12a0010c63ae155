package rpcserver

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/homelead/mcphost/internal/obslog"
	"github.com/homelead/mcphost/internal/transport"
)

// codecNotifiable adapts a transport.Codec to obslog.Notifiable: the
// two WriteMessage signatures differ only by the named map type, which
// Go does not consider identical for interface satisfaction.
type codecNotifiable struct{ codec transport.Codec }

func (c codecNotifiable) WriteMessage(ctx context.Context, msg map[string]any) error {
	return c.codec.WriteMessage(ctx, bson.M(msg))
}

// LogSubscribers adapts Subscribers to the shape obslog.New wants,
// letting obslog.New(logPath, debug, srv.LogSubscribers) wire the MCP
// notification sink without obslog importing transport or rpcserver
// at construction time.
func (s *Server) LogSubscribers(capability string) []obslog.Notifiable {
	codecs := s.Subscribers(capability)
	out := make([]obslog.Notifiable, len(codecs))
	for i, c := range codecs {
		out[i] = codecNotifiable{codec: c}
	}
	return out
}
