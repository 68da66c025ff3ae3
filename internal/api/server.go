// Package api exposes the thin ops surface SPEC_FULL.md calls for:
// healthz, Prometheus /metrics, and a small JSON stats endpoint. The
// REST catalog API proper (entity CRUD, data source management) is an
// external collaborator, not implemented here. Adapted from the
// teacher's internal/api server (gorilla/mux routing, graceful
// net/http.Server shutdown) with the dashboard/tenant-stats handlers
// replaced by data-source health and pool stats.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ansilo-run/ansilo/internal/health"
)

// Server is the ops HTTP surface: healthz, metrics, stats.
type Server struct {
	health *health.Checker
	http   *http.Server
	ln     net.Listener
}

// NewServer wires the ops router. metricsHandler is promhttp.HandlerFor
// bound to the node's metrics.Metrics registry — kept as a plain
// http.Handler parameter so this package doesn't import
// internal/metrics directly.
func NewServer(bindAddr string, h *health.Checker, metricsHandler http.Handler) *Server {
	s := &Server{health: h}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              bindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener synchronously (surfacing bind errors to the
// caller) and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			_ = err
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// handleHealthz reports 200 if every data source's last probe was
// healthy, 503 otherwise, mirroring the teacher's aggregate healthz
// semantics (one unhealthy tenant degrades the whole response).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	statuses := s.health.AllStatuses()
	allHealthy := true
	for _, st := range statuses {
		if !st.Healthy {
			allHealthy = false
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy":      allHealthy,
		"data_sources": statuses,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data_sources": s.health.AllStatuses(),
	})
}
