package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/mcphost/internal/config"
)

func TestRecordNoopWhenDisabled(t *testing.T) {
	tel := New(&config.Config{TelemetryEnabled: false}, nil)
	tel.Record("find", time.Millisecond, true, nil)
	assert.Empty(t, tel.Snapshot())
}

func TestRecordBuffersEvent(t *testing.T) {
	tel := New(&config.Config{TelemetryEnabled: true, TelemetryCacheSize: 10}, nil)
	tel.Record("find", 5*time.Millisecond, true, map[string]any{"collection": "plots"})

	snap := tel.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "find", snap[0].Command)
	assert.True(t, snap[0].Success)
	assert.Equal(t, "plots", snap[0].Arguments["collection"])
}

func TestRecordRedactsSensitiveArguments(t *testing.T) {
	tel := New(&config.Config{TelemetryEnabled: true, TelemetryCacheSize: 10}, nil)
	tel.Record("search", time.Millisecond, true, map[string]any{"apiKey": "sk-secret"})

	snap := tel.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "<REDACTED>", snap[0].Arguments["apiKey"])
}

func TestRecordDropsOldestWhenFull(t *testing.T) {
	tel := New(&config.Config{TelemetryEnabled: true, TelemetryCacheSize: 2}, nil)
	tel.Record("a", 0, true, nil)
	tel.Record("b", 0, true, nil)
	tel.Record("c", 0, true, nil)

	snap := tel.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Command)
	assert.Equal(t, "c", snap[1].Command)
}

func TestFlushPostsAndClearsBuffer(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var events []Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&events))
		received.Store(int32(len(events)))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{
		TelemetryEnabled: true,
		APIBaseURL:       srv.URL,
		APIClientID:      "id",
		APIClientSecret:  "secret",
		TelemetryMaxRetries: 1,
	}
	tel := New(cfg, nil)
	tel.Record("find", 0, true, nil)
	tel.Record("count", 0, true, nil)

	tel.Flush(context.Background())

	assert.Equal(t, int32(2), received.Load())
	assert.Empty(t, tel.Snapshot())
}

func TestFlushDropsBatchOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := &config.Config{
		TelemetryEnabled:    true,
		APIBaseURL:          srv.URL,
		APIClientID:         "id",
		APIClientSecret:     "secret",
		TelemetryMaxRetries: 2,
	}
	tel := New(cfg, nil)
	tel.Record("find", 0, true, nil)

	tel.Flush(context.Background())

	assert.Empty(t, tel.Snapshot())
}
