// Package purge plans and executes bulk deletion of workflow runs.
package purge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmhodges/clock"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/runpurge/internal/core/domain"
	"github.com/vietddude/runpurge/internal/metrics"
	"github.com/vietddude/runpurge/internal/resilience"
	"github.com/vietddude/runpurge/internal/retention"
)

// RecordSource lists workflow runs from the remote.
type RecordSource interface {
	ListRecords(ctx context.Context, filter domain.ListFilter) iter.Seq2[domain.Record, error]
}

// RecordDeleter deletes one workflow run on the remote.
type RecordDeleter interface {
	DeleteRecord(ctx context.Context, id int64) error
}

// Remote is the full remote surface the engine needs.
type Remote interface {
	RecordSource
	RecordDeleter
}

// Config holds engine settings.
type Config struct {
	// BatchSize is the number of concurrent deletions per batch.
	BatchSize int
	// RequestDelay is waited after every real deletion attempt.
	RequestDelay time.Duration
	DryRun       bool
	// DryRunDelay simulates a remote call in dry-run mode.
	DryRunDelay time.Duration

	Retry      resilience.RetryConfig
	Breaker    resilience.BreakerConfig
	Classifier resilience.ClassifierConfig
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	BatchSize:    20,
	RequestDelay: 350 * time.Millisecond,
	DryRunDelay:  100 * time.Millisecond,
	Retry:        resilience.DefaultRetryConfig,
	Breaker:      resilience.DefaultBreakerConfig,
	Classifier:   resilience.DefaultClassifierConfig,
}

// Engine owns one circuit breaker and one metrics counter for its lifetime.
type Engine struct {
	cfg    Config
	remote Remote
	exec   *resilience.Executor
	clk    clock.Clock
	log    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clk = clk }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine with a fresh breaker and metrics.
func NewEngine(cfg Config, remote Remote, opts ...Option) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig.BatchSize
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = 0
	}

	e := &Engine{
		cfg:    cfg,
		remote: remote,
		clk:    clock.New(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	breaker := resilience.NewBreaker(cfg.Breaker, e.clk, e.log)
	e.exec = resilience.NewExecutor(cfg.Retry, cfg.Classifier, breaker, resilience.NewMetrics(), e.clk, e.log)
	return e
}

// PlanDeletion lists runs older than olderThanDays (0 disables the age
// filter), optionally restricted to groupNames, and selects the ones beyond
// keepPerGroup per workflow. Listing errors are returned as-is.
func (e *Engine) PlanDeletion(
	ctx context.Context,
	olderThanDays int,
	keepPerGroup int,
	groupNames []string,
) (domain.RetentionPlan, error) {
	filter := domain.ListFilter{GroupNames: groupNames}
	if olderThanDays > 0 {
		filter.CreatedBefore = Cutoff(e.clk.Now(), olderThanDays)
	}

	var records []domain.Record
	for r, err := range e.remote.ListRecords(ctx, filter) {
		if err != nil {
			return domain.RetentionPlan{}, fmt.Errorf("list workflow runs: %w", err)
		}
		records = append(records, r)
	}
	metrics.RecordsListed.Add(float64(len(records)))

	plan := retention.Select(records, keepPerGroup)
	for groupID, s := range plan.GroupStats {
		metrics.PlannedDeletions.WithLabelValues(strconv.FormatInt(groupID, 10)).Set(float64(s.ToDelete))
	}
	return plan, nil
}

// Cutoff returns the UTC start of the day olderThanDays before now.
func Cutoff(now time.Time, olderThanDays int) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -olderThanDays).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExecuteDeletion deletes ids in sequential batches of concurrent calls.
// It never fails: every id ends up in either Succeeded or Failed. Once the
// circuit is open after a batch, or ctx is done, the remaining ids are
// counted as failed without being attempted.
func (e *Engine) ExecuteDeletion(ctx context.Context, ids []int64) domain.DeletionResult {
	var res domain.DeletionResult

	for start := 0; start < len(ids); start += e.cfg.BatchSize {
		if ctx.Err() != nil {
			e.log.Warn("Deletion cancelled, skipping remaining runs", "remaining", len(ids)-start)
			res.Failed += len(ids) - start
			break
		}

		end := min(start+e.cfg.BatchSize, len(ids))
		batch := ids[start:end]

		ok := e.runBatch(ctx, batch)
		for _, succeeded := range ok {
			if succeeded {
				res.Succeeded++
			} else {
				res.Failed++
			}
		}

		if e.exec.Breaker().State() == resilience.StateOpen && end < len(ids) {
			remaining := len(ids) - end
			e.log.Warn("Circuit breaker open, stopping further deletions", "skipped", remaining)
			metrics.DeletionsTotal.WithLabelValues("skipped").Add(float64(remaining))
			res.Failed += remaining
			break
		}
	}

	return res
}

func (e *Engine) runBatch(ctx context.Context, batch []int64) []bool {
	start := e.clk.Now()
	ok := make([]bool, len(batch))

	var g errgroup.Group
	for i, id := range batch {
		g.Go(func() error {
			ok[i] = e.deleteOne(ctx, id) == nil
			return nil
		})
	}
	_ = g.Wait()

	metrics.BatchDuration.Observe(e.clk.Now().Sub(start).Seconds())
	return ok
}

func (e *Engine) deleteOne(ctx context.Context, id int64) error {
	if e.cfg.DryRun {
		e.log.Info("DRY RUN: would delete run", "run_id", id)
		err := resilience.Sleep(ctx, e.clk, e.cfg.DryRunDelay)
		e.count(err)
		return err
	}

	e.log.Debug("Deleting run", "run_id", id)
	err := e.exec.Execute(ctx, "delete run #"+strconv.FormatInt(id, 10), func(ctx context.Context) error {
		return e.remote.DeleteRecord(ctx, id)
	})
	e.count(err)

	switch {
	case err == nil:
		e.log.Info("Run deleted", "run_id", id)
	case errors.Is(err, resilience.ErrCircuitOpen):
		e.log.Warn("Skipping run, circuit breaker open", "run_id", id)
		return err
	default:
		e.log.Error("Failed to delete run", "run_id", id, "error", err)
	}

	// throughput ceiling applies to every attempted call
	_ = resilience.Sleep(ctx, e.clk, e.cfg.RequestDelay)
	return err
}

func (e *Engine) count(err error) {
	if err == nil {
		metrics.DeletionsTotal.WithLabelValues("succeeded").Inc()
		return
	}
	metrics.DeletionsTotal.WithLabelValues("failed").Inc()
}

// SnapshotMetrics returns a copy of the engine's counters.
func (e *Engine) SnapshotMetrics() resilience.MetricsSnapshot {
	return e.exec.Metrics().Snapshot()
}

// BreakerState returns the engine's current circuit state.
func (e *Engine) BreakerState() resilience.State {
	return e.exec.Breaker().State()
}

// DryRun reports whether the engine skips remote deletions.
func (e *Engine) DryRun() bool {
	return e.cfg.DryRun
}
