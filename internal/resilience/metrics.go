package resilience

import (
	"log/slog"
	"sync"

	"github.com/vietddude/runpurge/internal/metrics"
)

// MetricsSnapshot is a read-only copy of the counters.
type MetricsSnapshot struct {
	TotalAttempts            int64 `json:"total_attempts"`
	Successes                int64 `json:"successes"`
	Failures                 int64 `json:"failures"`
	Retries                  int64 `json:"retries"`
	RateLimitHits            int64 `json:"rate_limit_hits"`
	CircuitBreakerRejections int64 `json:"circuit_breaker_rejections"`
}

// LogValue renders the snapshot as a slog group.
func (s MetricsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("total_attempts", s.TotalAttempts),
		slog.Int64("successes", s.Successes),
		slog.Int64("failures", s.Failures),
		slog.Int64("retries", s.Retries),
		slog.Int64("rate_limit_hits", s.RateLimitHits),
		slog.Int64("circuit_breaker_rejections", s.CircuitBreakerRejections),
	)
}

// Metrics holds monotonic counters for one engine instance. Each increment
// is mirrored to the process-wide Prometheus collectors.
type Metrics struct {
	mu sync.Mutex
	s  MetricsSnapshot
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incAttempt() {
	m.mu.Lock()
	m.s.TotalAttempts++
	m.mu.Unlock()
	metrics.RemoteAttemptsTotal.Inc()
}

func (m *Metrics) incSuccess() {
	m.mu.Lock()
	m.s.Successes++
	m.mu.Unlock()
	metrics.RemoteOutcomesTotal.WithLabelValues("success").Inc()
}

func (m *Metrics) incFailure() {
	m.mu.Lock()
	m.s.Failures++
	m.mu.Unlock()
	metrics.RemoteOutcomesTotal.WithLabelValues("failure").Inc()
}

func (m *Metrics) incRetry() {
	m.mu.Lock()
	m.s.Retries++
	m.mu.Unlock()
	metrics.RetriesTotal.Inc()
}

func (m *Metrics) incRateLimitHit() {
	m.mu.Lock()
	m.s.RateLimitHits++
	m.mu.Unlock()
	metrics.RateLimitHitsTotal.Inc()
}

func (m *Metrics) incRejection() {
	m.mu.Lock()
	m.s.CircuitBreakerRejections++
	m.mu.Unlock()
	metrics.CircuitRejectionsTotal.Inc()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}
