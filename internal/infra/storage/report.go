package storage

import (
	"context"

	"github.com/vietddude/runpurge/internal/core/domain"
)

// ReportRepository stores run reports. Reports are write-mostly audit
// records; the engine never reads them back.
type ReportRepository interface {
	// Save stores a finished run report
	Save(ctx context.Context, report *domain.RunReport) error

	// ListRecent returns the latest reports for a repository, newest first
	ListRecent(ctx context.Context, owner, repo string, limit int) ([]*domain.RunReport, error)
}
