package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/runpurge/internal/resilience"
)

// Status represents the health of the purge run.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// StateSource exposes the live state of a deletion engine.
type StateSource interface {
	BreakerState() resilience.State
	SnapshotMetrics() resilience.MetricsSnapshot
}

// Report is the detailed health payload.
type Report struct {
	Status  Status                     `json:"status"`
	Circuit string                     `json:"circuit"`
	Metrics resilience.MetricsSnapshot `json:"metrics"`
}

// Check derives the run status from the breaker state.
func Check(src StateSource) Report {
	state := src.BreakerState()
	status := StatusHealthy
	switch state {
	case resilience.StateOpen:
		status = StatusCritical
	case resilience.StateHalfOpen:
		status = StatusDegraded
	}
	return Report{
		Status:  status,
		Circuit: state.String(),
		Metrics: src.SnapshotMetrics(),
	}
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	src    StateSource
	server *http.Server
}

// NewServer creates a new health server.
func NewServer(src StateSource, port int) *Server {
	s := &Server{
		src: src,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.server.Handler = s.Handler()
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := Check(s.src)

	response := map[string]string{"status": string(report.Status), "circuit": report.Circuit}
	w.Header().Set("Content-Type", "application/json")

	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Check(s.src))
}
