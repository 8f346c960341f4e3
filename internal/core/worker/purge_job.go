package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"github.com/vietddude/runpurge/internal/core/domain"
	"github.com/vietddude/runpurge/internal/infra/storage"
	"github.com/vietddude/runpurge/internal/purge"
)

// ErrDeletionsFailed is returned when a real (non dry-run) purge left runs behind.
var ErrDeletionsFailed = errors.New("failed to delete workflow runs")

// LockFunc acquires the repository run lock and returns its release func.
type LockFunc func(ctx context.Context) (release func(context.Context) error, err error)

// PushFunc publishes process metrics at the end of a run.
type PushFunc func(ctx context.Context) error

// JobConfig selects what a purge job removes.
type JobConfig struct {
	Owner         string
	Repo          string
	OlderThanDays int
	RunsToKeep    int
	WorkflowNames []string
}

// PurgeJob runs one plan-then-delete pass against a repository.
type PurgeJob struct {
	cfg     JobConfig
	engine  *purge.Engine
	reports storage.ReportRepository
	lock    LockFunc
	push    PushFunc
	clk     clock.Clock
	log     *slog.Logger
}

// JobOption configures a PurgeJob.
type JobOption func(*PurgeJob)

// WithReports persists a RunReport after every run.
func WithReports(repo storage.ReportRepository) JobOption {
	return func(j *PurgeJob) { j.reports = repo }
}

// WithLock guards the run with an exclusive lock.
func WithLock(fn LockFunc) JobOption {
	return func(j *PurgeJob) { j.lock = fn }
}

// WithPush publishes metrics when the run finishes.
func WithPush(fn PushFunc) JobOption {
	return func(j *PurgeJob) { j.push = fn }
}

// WithJobClock overrides the wall clock used for report timings.
func WithJobClock(clk clock.Clock) JobOption {
	return func(j *PurgeJob) { j.clk = clk }
}

// WithJobLogger overrides the default logger.
func WithJobLogger(log *slog.Logger) JobOption {
	return func(j *PurgeJob) { j.log = log }
}

// NewPurgeJob creates a new purge job.
func NewPurgeJob(cfg JobConfig, engine *purge.Engine, opts ...JobOption) *PurgeJob {
	j := &PurgeJob{
		cfg:    cfg,
		engine: engine,
		clk:    clock.New(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Plan lists runs and computes the retention plan without deleting anything.
func (j *PurgeJob) Plan(ctx context.Context) (domain.RetentionPlan, error) {
	j.log.Info("Fetching workflow runs", "owner", j.cfg.Owner, "repo", j.cfg.Repo)
	plan, err := j.engine.PlanDeletion(ctx, j.cfg.OlderThanDays, j.cfg.RunsToKeep, j.cfg.WorkflowNames)
	if err != nil {
		return domain.RetentionPlan{}, err
	}
	j.log.Info("Found workflow runs",
		"total", plan.TotalRecords,
		"older_than_days", j.cfg.OlderThanDays,
	)
	return plan, nil
}

// Run executes the purge. The returned report is filled in even when the
// error is ErrDeletionsFailed.
func (j *PurgeJob) Run(ctx context.Context) (domain.RunReport, error) {
	report := domain.RunReport{
		ID:        uuid.New().String(),
		Owner:     j.cfg.Owner,
		Repo:      j.cfg.Repo,
		DryRun:    j.engine.DryRun(),
		StartedAt: j.clk.Now(),
	}

	if j.lock != nil {
		release, err := j.lock(ctx)
		if err != nil {
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			// ctx may already be done; release must still run
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.log.Warn("Failed to release run lock", "error", err)
			}
		}()
	}

	if report.DryRun {
		j.log.Info("DRY RUN MODE - no runs will be deleted")
	}

	plan, err := j.Plan(ctx)
	if err != nil {
		return report, err
	}
	report.TotalRecords = plan.TotalRecords
	report.Planned = len(plan.IDsToDelete)

	var res domain.DeletionResult
	if len(plan.IDsToDelete) == 0 {
		j.log.Info("No runs to delete")
	} else {
		j.logPlan(plan, report.DryRun)
		res = j.engine.ExecuteDeletion(ctx, plan.IDsToDelete)
	}

	j.finish(ctx, &report, res)

	if res.Failed > 0 && !report.DryRun {
		return report, fmt.Errorf("%w: %d out of %d", ErrDeletionsFailed, res.Failed, report.Planned)
	}
	return report, nil
}

func (j *PurgeJob) logPlan(plan domain.RetentionPlan, dryRun bool) {
	action := "deleting"
	if dryRun {
		action = "would delete"
	}

	if j.cfg.RunsToKeep > 0 {
		for _, id := range plan.GroupIDs() {
			s := plan.GroupStats[id]
			if s.ToDelete == 0 {
				continue
			}
			j.log.Info(fmt.Sprintf("Workflow %d: keeping %d runs, %s %d runs", id, s.Kept(), action, s.ToDelete))
		}
	}
	j.log.Info("Deleting runs across all workflows", "count", len(plan.IDsToDelete), "dry_run", dryRun)
}

func (j *PurgeJob) finish(ctx context.Context, report *domain.RunReport, res domain.DeletionResult) {
	snap := j.engine.SnapshotMetrics()

	report.FinishedAt = j.clk.Now()
	report.Succeeded = res.Succeeded
	report.Failed = res.Failed
	report.TotalAttempts = snap.TotalAttempts
	report.Successes = snap.Successes
	report.Failures = snap.Failures
	report.Retries = snap.Retries
	report.RateLimitHits = snap.RateLimitHits
	report.CircuitBreakerRejections = snap.CircuitBreakerRejections
	report.BreakerState = j.engine.BreakerState().String()

	if report.DryRun {
		j.log.Info("DRY RUN: would have deleted runs", "count", res.Succeeded)
	} else {
		j.log.Info("Deleted runs", "count", res.Succeeded)
	}
	if res.Failed > 0 {
		j.log.Warn("Failed to delete runs", "count", res.Failed, "of", res.Total())
	}
	j.log.Info("Run metrics",
		"metrics", snap,
		"circuit", report.BreakerState,
		"duration", report.Duration(),
	)

	// Reporting is best effort and never changes the run outcome.
	outCtx := context.WithoutCancel(ctx)
	if j.reports != nil {
		if err := j.reports.Save(outCtx, report); err != nil {
			j.log.Warn("Failed to save run report", "run_id", report.ID, "error", err)
		}
	}
	if j.push != nil {
		if err := j.push(outCtx); err != nil {
			j.log.Warn("Failed to push metrics", "error", err)
		}
	}
}
