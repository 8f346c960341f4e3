package github

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/runpurge/internal/metrics"
	"github.com/vietddude/runpurge/internal/resilience"
)

// ThrottleStats holds throttling counters for the API client.
type ThrottleStats struct {
	ThrottleCount429 int
	ThrottleCount403 int
	LastThrottleAt   time.Time
	// Remaining is the last X-RateLimit-Remaining seen, -1 if never seen.
	Remaining int
	ResetAt   time.Time
}

// ThrottleMonitor tracks rate limiting signals from GitHub responses.
type ThrottleMonitor struct {
	mu sync.RWMutex

	status429Count   int
	status403Count   int
	lastThrottleTime time.Time
	remaining        int
	resetAt          time.Time

	now func() time.Time
}

// NewThrottleMonitor creates a new throttle monitor.
func NewThrottleMonitor() *ThrottleMonitor {
	return &ThrottleMonitor{
		remaining: -1,
		now:       time.Now,
	}
}

// Observe records the rate limit headers of any response.
func (m *ThrottleMonitor) Observe(h http.Header) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = remaining
	if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		m.resetAt = time.Unix(reset, 0)
	}
}

// RecordThrottle records a 429 or 403 throttle response.
func (m *ThrottleMonitor) RecordThrottle(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastThrottleTime = m.now()
	switch statusCode {
	case http.StatusTooManyRequests:
		m.status429Count++
	case http.StatusForbidden:
		m.status403Count++
	}
	metrics.ThrottleResponsesTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (m *ThrottleMonitor) DetectThrottlePattern(message string) bool {
	return resilience.IsRateLimitMessage(message)
}

// Stats returns current throttling statistics.
func (m *ThrottleMonitor) Stats() ThrottleStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ThrottleStats{
		ThrottleCount429: m.status429Count,
		ThrottleCount403: m.status403Count,
		LastThrottleAt:   m.lastThrottleTime,
		Remaining:        m.remaining,
		ResetAt:          m.resetAt,
	}
}

// retryAfter derives the wait GitHub asked for. Retry-After (seconds) wins;
// an exhausted primary quota falls back to X-RateLimit-Reset.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return max(t.Sub(now), 0)
		}
	}
	if quotaExhausted(h) {
		if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return max(time.Unix(reset, 0).Sub(now), 0)
		}
	}
	return 0
}

func quotaExhausted(h http.Header) bool {
	return strings.TrimSpace(h.Get("X-RateLimit-Remaining")) == "0"
}
