// Package telemetry implements a bounded, best-effort usage event
// buffer with periodic asynchronous flush to an HTTP collector.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/redact"
)

// Event is one recorded telemetry occurrence.
type Event struct {
	Command    string         `json:"command"`
	DurationMs int64          `json:"durationMs"`
	Success    bool           `json:"success"`
	Timestamp  int64          `json:"timestamp"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Telemetry buffers events in memory and flushes them periodically. Zero
// value is not usable; construct with New.
type Telemetry struct {
	cfg *config.Config
	log *slog.Logger

	mu      sync.Mutex
	buf     map[int64]Event
	nextIdx int64
	cap     int

	stop    chan struct{}
	done    chan struct{}
	client  *http.Client
	backoff *rate.Limiter
}

// New constructs a Telemetry instance and, when telemetry is enabled and
// API credentials are configured, starts the background flush loop —
// mirroring the conditional thread start of the system this replaces.
func New(cfg *config.Config, log *slog.Logger) *Telemetry {
	if log == nil {
		log = slog.Default()
	}
	t := &Telemetry{
		cfg:    cfg,
		log:    log,
		buf:    make(map[int64]Event),
		cap:     cfg.TelemetryCacheSize,
		client:  &http.Client{Timeout: time.Duration(cfg.TelemetryTimeoutSecs) * time.Second},
		backoff: rate.NewLimiter(rate.Every(time.Second), 3),
	}
	if t.cap <= 0 {
		t.cap = 1000
	}

	if cfg.TelemetryEnabled && cfg.APIBaseURL != "" && cfg.APIClientID != "" && cfg.APIClientSecret != "" {
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
		go t.periodicFlush()
		log.Info("telemetry enabled", "flush_interval_s", cfg.TelemetryFlushSeconds, "cache_size", t.cap)
	} else if cfg.TelemetryEnabled {
		log.Warn("telemetry enabled but missing API config; background flush disabled")
	} else {
		log.Info("telemetry disabled")
	}
	return t
}

// Record appends an event to the buffer, dropping the oldest (smallest
// index) entry when the buffer is full. A no-op when telemetry is
// disabled.
func (t *Telemetry) Record(command string, duration time.Duration, success bool, arguments map[string]any) {
	if !t.cfg.TelemetryEnabled {
		return
	}

	event := Event{
		Command:    command,
		DurationMs: duration.Milliseconds(),
		Success:    success,
		Timestamp:  time.Now().UnixMilli(),
	}
	if arguments != nil {
		if redacted, ok := redact.Doc(arguments).(map[string]any); ok {
			event.Arguments = redacted
		}
	}
	if command == "server_start" {
		event.Metadata = map[string]any{
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
			"go":      runtime.Version(),
			"appName": "mcp-go-host",
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) >= t.cap {
		oldest := t.oldestIndexLocked()
		delete(t.buf, oldest)
		t.log.Debug("dropped oldest telemetry event", "index", oldest)
	}
	idx := t.nextIdx
	t.buf[idx] = event
	t.nextIdx++
}

func (t *Telemetry) oldestIndexLocked() int64 {
	first := true
	var min int64
	for k := range t.buf {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}

// Flush snapshots and clears the buffer, then POSTs it with basic auth,
// retrying with linear backoff. 4xx responses drop the batch
// permanently; network/5xx errors count against the retry budget.
func (t *Telemetry) Flush(ctx context.Context) {
	if !t.cfg.TelemetryEnabled || t.cfg.APIBaseURL == "" {
		return
	}

	t.mu.Lock()
	events := make([]Event, 0, len(t.buf))
	for _, idx := range t.sortedIndicesLocked() {
		events = append(events, t.buf[idx])
	}
	t.buf = make(map[int64]Event)
	t.mu.Unlock()

	if len(events) == 0 {
		return
	}

	payload, err := json.Marshal(events)
	if err != nil {
		t.log.Error("failed to serialize telemetry events", "error", err)
		return
	}

	url := t.cfg.APIBaseURL
	if len(url) > 0 && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	url += "/v2/telemetry"

	maxRetries := t.cfg.TelemetryMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			t.log.Error("failed to build telemetry request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(t.cfg.APIClientID, t.cfg.APIClientSecret)

		resp, err := t.client.Do(req)
		if err != nil {
			t.log.Warn("telemetry flush network error", "attempt", attempt, "error", err)
			_ = t.backoff.WaitN(ctx, attempt)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			t.log.Info("flushed telemetry events", "count", len(events))
			return
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			t.log.Error("telemetry flush aborted", "status", resp.StatusCode)
			return
		default:
			t.log.Warn("telemetry flush attempt failed, retrying", "attempt", attempt, "status", resp.StatusCode)
			_ = t.backoff.WaitN(ctx, attempt)
		}
	}
	t.log.Error("max telemetry retries reached; dropping batch", "count", len(events))
}

func (t *Telemetry) sortedIndicesLocked() []int64 {
	idxs := make([]int64, 0, len(t.buf))
	for k := range t.buf {
		idxs = append(idxs, k)
	}
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && idxs[j-1] > idxs[j]; j-- {
			idxs[j-1], idxs[j] = idxs[j], idxs[j-1]
		}
	}
	return idxs
}

func (t *Telemetry) periodicFlush() {
	defer close(t.done)
	interval := time.Duration(t.cfg.TelemetryFlushSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.Flush(context.Background())
		}
	}
}

// Shutdown stops the background flusher and performs a final,
// best-effort flush with a short deadline.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t.stop != nil {
		close(t.stop)
		select {
		case <-t.done:
		case <-time.After(2 * time.Second):
		}
	}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	t.Flush(flushCtx)
}

// Snapshot returns a copy of the currently buffered events, ordered by
// insertion index. Intended for tests exercising the overflow property.
func (t *Telemetry) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, 0, len(t.buf))
	for _, idx := range t.sortedIndicesLocked() {
		out = append(out, t.buf[idx])
	}
	return out
}
