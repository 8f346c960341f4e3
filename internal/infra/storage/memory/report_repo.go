package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/vietddude/runpurge/internal/core/domain"
)

// ReportRepo keeps run reports in process memory.
type ReportRepo struct {
	mu      sync.RWMutex
	reports []*domain.RunReport
}

func NewReportRepo() *ReportRepo {
	return &ReportRepo{}
}

func (r *ReportRepo) Save(ctx context.Context, report *domain.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *report
	r.reports = append(r.reports, &cp)
	return nil
}

func (r *ReportRepo) ListRecent(ctx context.Context, owner, repo string, limit int) ([]*domain.RunReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.RunReport
	for _, rep := range slices.Backward(r.reports) {
		if rep.Owner != owner || rep.Repo != repo {
			continue
		}
		cp := *rep
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
