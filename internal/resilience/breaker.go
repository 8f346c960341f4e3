package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmhodges/clock"

	"github.com/vietddude/runpurge/internal/metrics"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // trial calls test recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig provides sensible defaults.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	OpenTimeout:      60 * time.Second,
}

// Breaker stops calls to a failing remote and periodically lets one through.
type Breaker struct {
	mu sync.Mutex

	cfg BreakerConfig
	clk clock.Clock
	log *slog.Logger

	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailure         time.Time
	hasFailure          bool
}

// NewBreaker creates a closed breaker. A nil clock uses the wall clock.
func NewBreaker(cfg BreakerConfig, clk clock.Clock, log *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig.SuccessThreshold
	}
	if cfg.OpenTimeout < 0 {
		cfg.OpenTimeout = DefaultBreakerConfig.OpenTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	metrics.CircuitState.Set(float64(StateClosed))
	return &Breaker{cfg: cfg, clk: clk, log: log}
}

// CanExecute reports whether a call may proceed. While open it moves the
// breaker to half-open once OpenTimeout has passed since the last failure;
// this is the only path out of the open state.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.clk.Now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
			b.setState(StateHalfOpen)
			b.log.Info("Circuit breaker half-open, testing recovery")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != StateHalfOpen {
		return
	}

	b.halfOpenSuccesses++
	if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
		b.setState(StateClosed)
		b.log.Info("Circuit breaker closed, remote recovered")
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Now()
	b.lastFailure = now
	b.hasFailure = true

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.setState(StateOpen)
			b.log.Warn("Circuit breaker open, too many failures",
				"failures", b.consecutiveFailures,
				"timeout", b.cfg.OpenTimeout)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.log.Warn("Circuit breaker open, recovery trial failed")
	case StateOpen:
		// late result from a call admitted before the trip
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the failure streak counted while closed.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// LastFailure returns the time of the last recorded failure, if any.
func (b *Breaker) LastFailure() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure, b.hasFailure
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == StateHalfOpen && s != StateHalfOpen {
		b.halfOpenSuccesses = 0
	}
	switch s {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses = 0
	}
	b.state = s
	metrics.CircuitState.Set(float64(s))
}
