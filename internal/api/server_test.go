package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/health"
	"github.com/ansilo-run/ansilo/internal/metrics"
)

type noopPools struct{}

func (noopPools) Pool(string) (connector.Pool, bool) { return nil, false }

func newTestServer(t *testing.T, addr string) (*Server, *health.Checker) {
	t.Helper()
	cat := catalog.New()
	if err := cat.Load([]catalog.DataSource{{ID: "ds1", Type: "memory"}}, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := metrics.New()
	h := health.NewChecker(cat, noopPools{}, m, time.Hour, time.Second)

	s := NewServer(addr, h, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	return s, h
}

func TestHealthzReportsUnhealthyWhenNoPoolBound(t *testing.T) {
	s, h := newTestServer(t, "127.0.0.1:0")
	h.Probe()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealthz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with no healthy probe yet, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["healthy"] != false {
		t.Fatalf("expected healthy=false, got %v", body["healthy"])
	}
}

func TestStatsReturnsDataSources(t *testing.T) {
	s, _ := newTestServer(t, "127.0.0.1:0")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.handleStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, err := io.ReadAll(rr.Body); err != nil {
		t.Fatalf("reading body: %v", err)
	}
}
