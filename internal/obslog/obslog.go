// Package obslog builds the process-wide *slog.Logger: a console sink
// formatted the way goa.design/clue/log formats terminal output, a
// rotating JSON-lines disk sink, and an MCP notification sink that
// fans log records out to every transport subscribed to the "logging"
// capability. All three sinks see redacted messages: a single filter
// shared with internal/redact runs ahead of every handler, mirroring
// the original's single RedactFilter installed on the root logger.
package obslog

import (
	"context"
	"io"
	"log/slog"

	clue "goa.design/clue/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/homelead/mcphost/internal/redact"
)

// Subscribers returns every transport currently subscribed to a named
// capability. rpcserver.Server satisfies this.
type Subscribers func(capability string) []Notifiable

// Notifiable is the minimal surface obslog needs from a transport.Codec
// to deliver a logging notification, kept narrow so this package does
// not need to import internal/transport or internal/rpcserver.
type Notifiable interface {
	WriteMessage(ctx context.Context, msg map[string]any) error
}

const (
	diskMaxSizeMB  = 10
	diskMaxBackups = 5
)

// New builds the fan-out logger. logPath is the JSON-lines log file
// (rotated at 10MB, 5 backups kept, matching the original's
// RotatingFileHandler defaults); debug raises both the console and
// disk sinks to slog.LevelDebug. subs may be nil, in which case the
// MCP sink is simply never called (no subscribers ever present before
// a server exists).
func New(logPath string, debug bool, subs Subscribers) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{newConsoleHandler(level, debug)}
	if logPath != "" {
		handlers = append(handlers, newDiskHandler(logPath, level))
	}
	if subs != nil {
		handlers = append(handlers, newMCPHandler(level, subs))
	}

	return slog.New(&redactingHandler{next: &fanoutHandler{handlers: handlers}})
}

// consoleHandler formats records the way clue/log formats terminal
// output when attached to an interactive session, falling back to
// JSON lines otherwise (ground: example/cmd/assistant/main.go's
// log.FormatTerminal/log.FormatJSON selection via log.IsTerminal()).
type consoleHandler struct {
	ctx   context.Context
	level slog.Level
}

func newConsoleHandler(level slog.Level, debug bool) *consoleHandler {
	format := clue.FormatJSON
	if clue.IsTerminal() {
		format = clue.FormatTerminal
	}
	ctx := clue.Context(context.Background(), clue.WithFormat(format))
	if debug {
		ctx = clue.Context(ctx, clue.WithDebug())
	}
	return &consoleHandler{ctx: ctx, level: level}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *consoleHandler) Handle(_ context.Context, rec slog.Record) error {
	kvs := make([]clue.Fielder, 0, rec.NumAttrs()+1)
	kvs = append(kvs, clue.KV{K: "msg", V: rec.Message})
	rec.Attrs(func(a slog.Attr) bool {
		kvs = append(kvs, clue.KV{K: a.Key, V: a.Value.Any()})
		return true
	})
	switch {
	case rec.Level >= slog.LevelError:
		clue.Error(h.ctx, nil, kvs...)
	case rec.Level >= slog.LevelWarn:
		clue.Warn(h.ctx, kvs...)
	case rec.Level >= slog.LevelInfo:
		clue.Info(h.ctx, kvs...)
	default:
		clue.Debug(h.ctx, kvs...)
	}
	return nil
}

func (h *consoleHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *consoleHandler) WithGroup(_ string) slog.Handler      { return h }

// newDiskHandler writes JSON lines through a lumberjack-rotated file,
// matching the original's DiskLogger/RotatingFileHandler(maxBytes=10MB,
// backupCount=5) (ground: gopkg.in/natefinch/lumberjack.v2, present in
// haasonsaas-nexus's go.mod in the retrieved pack).
func newDiskHandler(path string, level slog.Level) slog.Handler {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    diskMaxSizeMB,
		MaxBackups: diskMaxBackups,
		Compress:   false,
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// fanoutHandler dispatches a single record to every wrapped handler,
// independent of one another: an error from one sink (e.g. a disk
// write failure) never blocks the others.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// redactingHandler rewrites a record's message and every string
// attribute value through internal/redact before it reaches any sink, the same
// filter telemetry.Record applies, so a secret logged accidentally
// never reaches console, disk, or an MCP subscriber.
type redactingHandler struct {
	next slog.Handler
}

func (r *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return r.next.Enabled(ctx, level)
}

func (r *redactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	redacted := slog.NewRecord(rec.Time, rec.Level, redact.String(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return r.next.Handle(ctx, redacted)
}

func redactAttr(a slog.Attr) slog.Attr {
	if s, ok := a.Value.Any().(string); ok {
		return slog.String(a.Key, redact.String(s))
	}
	return a
}

func (r *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactingHandler{next: r.next.WithAttrs(attrs)}
}

func (r *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: r.next.WithGroup(name)}
}

// Discard is a logger that drops every record, used in tests.
func Discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
