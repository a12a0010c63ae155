package obslog

import (
	"context"
	"log/slog"
)

// mcpHandler fans each record out as a logging notification to every
// transport currently subscribed to the "logging" capability, mirroring
// McpLogger.emit's loop over server.log_subscribers. A subscriber whose
// write fails is simply skipped for this record; it stays in
// rpcserver's subscriber set until it disables the capability.
type mcpHandler struct {
	level slog.Level
	subs  Subscribers
}

func newMCPHandler(level slog.Level, subs Subscribers) *mcpHandler {
	return &mcpHandler{level: level, subs: subs}
}

func (h *mcpHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *mcpHandler) Handle(ctx context.Context, rec slog.Record) error {
	metadata := make(map[string]any, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		metadata[a.Key] = a.Value.Any()
		return true
	})

	notif := map[string]any{
		"jsonrpc": "1.0",
		"method":  "logging",
		"params": map[string]any{
			"level":    rec.Level.String(),
			"logger":   "mcphost",
			"message":  rec.Message,
			"metadata": metadata,
		},
	}

	for _, s := range h.subs("logging") {
		_ = s.WriteMessage(ctx, notif)
	}
	return nil
}

func (h *mcpHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *mcpHandler) WithGroup(_ string) slog.Handler      { return h }
