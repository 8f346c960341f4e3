package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmhodges/clock"

	"github.com/vietddude/runpurge/internal/metrics"
)

// ErrCircuitOpen is returned when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RateLimitWait is used when a rate-limited response carries no wait hint.
	RateLimitWait time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  1 * time.Second,
	MaxDelay:      32 * time.Second,
	RateLimitWait: 60 * time.Second,
}

// Executor runs remote operations through the breaker with retries.
// It is safe for concurrent use.
type Executor struct {
	cfg        RetryConfig
	classifier ClassifierConfig
	breaker    *Breaker
	metrics    *Metrics
	clk        clock.Clock
	log        *slog.Logger
}

// NewExecutor creates an executor sharing the given breaker and metrics.
func NewExecutor(
	cfg RetryConfig,
	classifier ClassifierConfig,
	breaker *Breaker,
	m *Metrics,
	clk clock.Clock,
	log *slog.Logger,
) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		cfg:        cfg,
		classifier: classifier,
		breaker:    breaker,
		metrics:    m,
		clk:        clk,
		log:        log,
	}
}

// Breaker returns the executor's circuit breaker.
func (e *Executor) Breaker() *Breaker { return e.breaker }

// Metrics returns the executor's counters.
func (e *Executor) Metrics() *Metrics { return e.metrics }

// Execute runs op with retries. name is used for logging only.
func (e *Executor) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Run(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Run executes op through ex and returns its result.
//
// Rate-limited failures wait for the remote's hint and do not consume a
// retry. Client errors fail immediately. Server and network errors back off
// exponentially until MaxRetries is exhausted.
func Run[T any](ctx context.Context, ex *Executor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= ex.cfg.MaxRetries; {
		if !ex.breaker.CanExecute() {
			ex.metrics.incRejection()
			return zero, fmt.Errorf("%s: %w (state %s)", name, ErrCircuitOpen, ex.breaker.State())
		}

		ex.metrics.incAttempt()
		result, err := op(ctx)
		if err == nil {
			ex.metrics.incSuccess()
			ex.breaker.RecordSuccess()
			return result, nil
		}
		lastErr = err

		c := ex.classifier.Classify(err)
		metrics.RemoteErrorsTotal.WithLabelValues(c.Kind.String()).Inc()

		if c.Kind == KindRateLimited {
			ex.metrics.incRateLimitHit()
			wait := c.RetryAfter
			if wait <= 0 {
				wait = ex.cfg.RateLimitWait
			}
			ex.log.Warn("Rate limit hit, waiting", "op", name, "wait", wait)
			if err := ex.sleep(ctx, wait); err != nil {
				ex.metrics.incFailure()
				return zero, fmt.Errorf("%s: %w", name, err)
			}
			ex.metrics.incRetry()
			continue
		}

		if !c.Kind.Retryable() {
			ex.metrics.incFailure()
			ex.breaker.RecordFailure()
			return zero, err
		}

		if attempt >= ex.cfg.MaxRetries {
			break
		}

		delay := ex.backoff(attempt)
		ex.log.Warn("Remote call failed, retrying",
			"op", name,
			"attempt", attempt+1,
			"max_attempts", ex.cfg.MaxRetries+1,
			"kind", c.Kind,
			"delay", delay,
			"error", err)
		if err := ex.sleep(ctx, delay); err != nil {
			ex.metrics.incFailure()
			return zero, fmt.Errorf("%s: %w", name, err)
		}
		ex.metrics.incRetry()
		attempt++
	}

	ex.metrics.incFailure()
	ex.breaker.RecordFailure()
	return zero, fmt.Errorf("%s failed after %d attempts: %w", name, ex.cfg.MaxRetries+1, lastErr)
}

// backoff returns min(InitialDelay * 2^attempt, MaxDelay).
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if e.cfg.MaxDelay > 0 && delay >= e.cfg.MaxDelay {
			return e.cfg.MaxDelay
		}
	}
	if e.cfg.MaxDelay > 0 && delay > e.cfg.MaxDelay {
		return e.cfg.MaxDelay
	}
	return delay
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, e.clk, d)
}

// Sleep waits for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}
