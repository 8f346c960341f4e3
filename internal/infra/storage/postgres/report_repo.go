package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/runpurge/internal/core/domain"
)

// reportRow maps the run_reports table.
type reportRow struct {
	ID                       string    `db:"id"`
	Owner                    string    `db:"owner"`
	Repo                     string    `db:"repo"`
	DryRun                   bool      `db:"dry_run"`
	StartedAt                time.Time `db:"started_at"`
	FinishedAt               time.Time `db:"finished_at"`
	TotalRecords             int       `db:"total_records"`
	Planned                  int       `db:"planned"`
	Succeeded                int       `db:"succeeded"`
	Failed                   int       `db:"failed"`
	TotalAttempts            int64     `db:"total_attempts"`
	Successes                int64     `db:"successes"`
	Failures                 int64     `db:"failures"`
	Retries                  int64     `db:"retries"`
	RateLimitHits            int64     `db:"rate_limit_hits"`
	CircuitBreakerRejections int64     `db:"circuit_breaker_rejections"`
	BreakerState             string    `db:"breaker_state"`
}

func toRow(r *domain.RunReport) reportRow {
	return reportRow{
		ID:                       r.ID,
		Owner:                    r.Owner,
		Repo:                     r.Repo,
		DryRun:                   r.DryRun,
		StartedAt:                r.StartedAt,
		FinishedAt:               r.FinishedAt,
		TotalRecords:             r.TotalRecords,
		Planned:                  r.Planned,
		Succeeded:                r.Succeeded,
		Failed:                   r.Failed,
		TotalAttempts:            r.TotalAttempts,
		Successes:                r.Successes,
		Failures:                 r.Failures,
		Retries:                  r.Retries,
		RateLimitHits:            r.RateLimitHits,
		CircuitBreakerRejections: r.CircuitBreakerRejections,
		BreakerState:             r.BreakerState,
	}
}

func (row reportRow) toDomain() *domain.RunReport {
	return &domain.RunReport{
		ID:                       row.ID,
		Owner:                    row.Owner,
		Repo:                     row.Repo,
		DryRun:                   row.DryRun,
		StartedAt:                row.StartedAt,
		FinishedAt:               row.FinishedAt,
		TotalRecords:             row.TotalRecords,
		Planned:                  row.Planned,
		Succeeded:                row.Succeeded,
		Failed:                   row.Failed,
		TotalAttempts:            row.TotalAttempts,
		Successes:                row.Successes,
		Failures:                 row.Failures,
		Retries:                  row.Retries,
		RateLimitHits:            row.RateLimitHits,
		CircuitBreakerRejections: row.CircuitBreakerRejections,
		BreakerState:             row.BreakerState,
	}
}

// ReportRepo implements storage.ReportRepository using PostgreSQL.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new PostgreSQL report repository.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save inserts a run report.
func (r *ReportRepo) Save(ctx context.Context, report *domain.RunReport) error {
	query := `
		INSERT INTO run_reports (
			id, owner, repo, dry_run, started_at, finished_at,
			total_records, planned, succeeded, failed,
			total_attempts, successes, failures, retries,
			rate_limit_hits, circuit_breaker_rejections, breaker_state
		) VALUES (
			:id, :owner, :repo, :dry_run, :started_at, :finished_at,
			:total_records, :planned, :succeeded, :failed,
			:total_attempts, :successes, :failures, :retries,
			:rate_limit_hits, :circuit_breaker_rejections, :breaker_state
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, toRow(report)); err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

// ListRecent returns the latest reports for a repository.
func (r *ReportRepo) ListRecent(
	ctx context.Context,
	owner, repo string,
	limit int,
) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT * FROM run_reports
		WHERE owner = $1 AND repo = $2
		ORDER BY started_at DESC
		LIMIT $3
	`
	var rows []reportRow
	if err := r.db.SelectContext(ctx, &rows, query, owner, repo, limit); err != nil {
		return nil, fmt.Errorf("failed to list run reports: %w", err)
	}

	out := make([]*domain.RunReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
