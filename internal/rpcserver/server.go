// Package rpcserver implements the JSON-RPC 1.0-shaped tool/resource/
// capability server the planning model and any other MCP client talk
// to over a transport.Codec.
package rpcserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/telemetry"
	"github.com/homelead/mcphost/internal/tools"
	"github.com/homelead/mcphost/internal/transport"
)

var tracer = otel.Tracer("github.com/homelead/mcphost/internal/rpcserver")
var meter = otel.Meter("github.com/homelead/mcphost/internal/rpcserver")

var requestCounter, _ = meter.Int64Counter(
	"mcphost.rpc.requests",
	metric.WithDescription("JSON-RPC requests dispatched, by method and outcome"),
)

// knownCapabilities is the fixed set of capabilities a client may
// negotiate.
var knownCapabilities = map[string]bool{"logging": true, "streaming": true, "interrupt": true}

// ResourceHandler returns a resource's current value on demand.
type ResourceHandler func() (any, error)

// Server dispatches JSON-RPC requests arriving on a transport.Codec to
// registered tools and resource handlers, and tracks which transports
// have subscribed to which capability.
type Server struct {
	session   *session.Session
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	runner    *tools.Runner
	log       *slog.Logger

	mu        sync.Mutex
	resources map[string]ResourceHandler

	capMu        sync.Mutex
	capabilities map[string]bool
	subscribers  map[string]map[transport.Codec]bool

	onInitialized []func()
	onClose       []func(error)
	onError       []func(error)
}

// New builds a Server bound to the given session, config, telemetry
// sink, and tool runner.
func New(sess *session.Session, cfg *config.Config, tel *telemetry.Telemetry, runner *tools.Runner, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		session:      sess,
		cfg:          cfg,
		telemetry:    tel,
		runner:       runner,
		log:          log,
		resources:    make(map[string]ResourceHandler),
		capabilities: make(map[string]bool),
		subscribers: map[string]map[transport.Codec]bool{
			"logging": {}, "streaming": {}, "interrupt": {},
		},
	}
}

// OnInitialized registers a hook run once, before the serve loop starts.
func (s *Server) OnInitialized(fn func()) { s.onInitialized = append(s.onInitialized, fn) }

// OnClose registers a hook run when the serve loop exits.
func (s *Server) OnClose(fn func(error)) { s.onClose = append(s.onClose, fn) }

// OnError registers a hook run on a transport read error.
func (s *Server) OnError(fn func(error)) { s.onError = append(s.onError, fn) }

// SetLogger swaps the server's logger, used once at startup after
// internal/obslog builds the real fan-out logger from this very
// server's LogSubscribers method.
func (s *Server) SetLogger(log *slog.Logger) { s.log = log }

// SetRunner and SetTelemetry complete construction once the real
// logger exists: cmd/mcphost builds the Server early (with a nil
// runner/telemetry) purely to obtain LogSubscribers for obslog.New,
// then fills in the pieces that needed the finished logger.
func (s *Server) SetRunner(r *tools.Runner)         { s.runner = r }
func (s *Server) SetTelemetry(t *telemetry.Telemetry) { s.telemetry = t }

// Resource registers a named resource handler, e.g. "config" for the
// running configuration.
func (s *Server) Resource(name string, handler ResourceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[name] = handler
}

// Subscribers returns every transport currently subscribed to a
// capability, for notification fan-out (see internal/obslog's MCP log
// sink).
func (s *Server) Subscribers(capability string) []transport.Codec {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	set := s.subscribers[capability]
	out := make([]transport.Codec, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Serve reads and dispatches requests from codec until a clean EOF, a
// transport error, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, codec transport.Codec) error {
	connID := uuid.NewString()
	log := s.log.With("conn_id", connID)
	log.Info("connection opened")

	for _, fn := range s.onInitialized {
		fn()
	}

	var serveErr error
loop:
	for {
		select {
		case <-ctx.Done():
			serveErr = ctx.Err()
			break loop
		default:
		}

		req, err := codec.ReadMessage(ctx)
		if err != nil {
			log.Error("error reading message from transport", "error", err)
			for _, fn := range s.onError {
				fn(err)
			}
			serveErr = err
			break loop
		}
		if req == nil {
			break loop
		}

		s.handle(ctx, codec, req, connID)
	}

	log.Info("connection closed")
	for _, fn := range s.onClose {
		fn(serveErr)
	}
	return serveErr
}

func (s *Server) handle(ctx context.Context, codec transport.Codec, req transport.Message, connID string) {
	method, _ := req["method"].(string)
	id := req["id"]

	ctx, span := tracer.Start(ctx, "rpc."+method, trace.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.conn_id", connID),
	))
	defer span.End()

	var result any
	var rpcErr error

	switch method {
	case "capability":
		params, _ := req["params"].(map[string]any)
		result, rpcErr = s.handleCapability(codec, params)
	case "resource":
		params, _ := req["params"].(map[string]any)
		result, rpcErr = s.handleResource(params)
	default:
		params, _ := req["params"].(map[string]any)
		args, ok := params["arguments"].(map[string]any)
		if !ok {
			args = params
		}
		result, rpcErr = s.runner.Run(ctx, method, args)
	}

	outcome := "ok"
	if rpcErr != nil {
		outcome = "error"
	}
	requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.outcome", outcome),
	))

	var resp transport.Message
	if rpcErr != nil {
		span.RecordError(rpcErr)
		resp = transport.Message{
			"jsonrpc": "1.0",
			"id":      id,
			"error":   map[string]any{"code": -32000, "message": rpcErr.Error()},
		}
	} else {
		resp = transport.Message{"jsonrpc": "1.0", "id": id, "result": result}
	}

	if err := codec.WriteMessage(ctx, resp); err != nil {
		s.log.Error("error writing response to transport", "error", err)
	}
}

// handleCapability implements the clearly-intended add/discard
// subscriber-set toggle: enabled adds the requesting transport to the
// capability's subscriber set, disabled removes it.
func (s *Server) handleCapability(codec transport.Codec, params map[string]any) (bool, error) {
	name, ok := params["name"].(string)
	if !ok {
		return false, fmt.Errorf("missing 'name' in capability params")
	}
	enabled := true
	if v, ok := params["enabled"].(bool); ok {
		enabled = v
	}
	if !knownCapabilities[name] {
		return false, fmt.Errorf("unknown capability %q", name)
	}

	s.capMu.Lock()
	defer s.capMu.Unlock()
	s.capabilities[name] = enabled
	if enabled {
		s.subscribers[name][codec] = true
	} else {
		delete(s.subscribers[name], codec)
	}
	return true, nil
}

func (s *Server) handleResource(params map[string]any) (any, error) {
	name, ok := params["name"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'name' in resource params")
	}
	s.mu.Lock()
	handler, ok := s.resources[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown resource %q", name)
	}
	return handler()
}

// Close runs shutdown hooks, flushes telemetry, and closes the
// database session.
func (s *Server) Close(ctx context.Context) {
	s.log.Info("shutting down rpc server")
	for _, fn := range s.onClose {
		fn(nil)
	}
	if s.telemetry != nil {
		s.telemetry.Shutdown(ctx)
	}
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.session.Close(closeCtx); err != nil {
		s.log.Error("error closing session", "error", err)
	}
}
