package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/orchestrator"
	"github.com/homelead/mcphost/internal/rpcserver"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/transport"
)

type chatRequest struct {
	CompanyID string `json:"company_id"`
	Query     string `json:"query"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// newHTTPServer builds the thin REST surface in front of the
// orchestrator (POST /chat, mirroring the original's single FastAPI
// endpoint) plus a /ws upgrade route onto the same JSON-RPC tool
// server the stdio transport serves, the "WebSocket for web mode"
// surface spec.md names alongside stdio.
func newHTTPServer(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, srv *rpcserver.Server, log *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("mcphost is running"))
	})

	r.Post("/chat", handleChat(orch, log))
	r.Get("/ws", handleWebSocket(ctx, srv, log))

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func handleWebSocket(ctx context.Context, srv *rpcserver.Server, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}
		codec := transport.NewWebSocket(conn)
		go func() {
			defer codec.Close()
			if err := srv.Serve(ctx, codec); err != nil {
				log.Debug("websocket rpc connection closed", "error", err)
			}
		}()
	}
}

func handleChat(orch *orchestrator.Orchestrator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.CompanyID == "" || req.Query == "" {
			writeError(w, http.StatusBadRequest, "company_id and query are required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		reply, err := orch.Reply(ctx, req.CompanyID, req.Query)
		if err != nil {
			log.Error("chat turn failed", "tenant", req.CompanyID, "error", err)
			var apiErr *openai.APIError
			var reqErr *openai.RequestError
			switch {
			case errors.Is(err, session.ErrInvalidTenant):
				writeError(w, http.StatusBadRequest, "invalid company_id")
			case errors.As(err, &apiErr), errors.As(err, &reqErr):
				writeError(w, http.StatusBadGateway, "language model request failed")
			default:
				writeError(w, http.StatusInternalServerError, "internal server error, please try again later")
			}
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}
