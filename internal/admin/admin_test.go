package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/server"
)

type emptyStore struct{}

func (emptyStore) Exists(string) bool        { return false }
func (emptyStore) Match(string, string) bool { return false }
func (emptyStore) RecordLogin(string) error  { return nil }
func (emptyStore) NamesLoggedInSince(time.Duration) ([]string, error) {
	return nil, nil
}

func newAdmin(t *testing.T) http.Handler {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zerolog.Nop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	d := server.NewDispatcher(emptyStore{}, emptyStore{}, &logger, m)
	hub := server.NewHub(d, 50*time.Millisecond, &logger, m)
	go hub.Run(ctx)

	return NewServer("127.0.0.1:0", hub, registry, &logger).Handler
}

func TestHealthz(t *testing.T) {
	handler := newAdmin(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusReturnsSnapshot(t *testing.T) {
	handler := newAdmin(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}

	var snap server.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Connections != 0 {
		t.Fatalf("connections = %d, want 0", snap.Connections)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newAdmin(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chatline_connections_active") {
		t.Fatalf("metrics body missing chatline gauges:\n%s", rec.Body.String())
	}
}
