// Package retention decides which workflow runs survive a purge.
package retention

import (
	"cmp"
	"slices"

	"github.com/vietddude/runpurge/internal/core/domain"
)

// Select keeps the keepPerGroup most recent records of every group and
// marks the rest for deletion. Records are ordered by CreatedAt descending,
// ties broken by ID descending. A negative keepPerGroup is treated as 0.
//
// IDsToDelete lists groups in ascending GroupID order, and within a group
// from newest to oldest, so the same input always yields the same plan.
func Select(records []domain.Record, keepPerGroup int) domain.RetentionPlan {
	plan := domain.RetentionPlan{
		IDsToDelete:  []int64{},
		TotalRecords: len(records),
		GroupStats:   make(map[int64]domain.GroupStats),
	}
	if len(records) == 0 {
		return plan
	}

	keep := max(keepPerGroup, 0)

	groups := make(map[int64][]domain.Record)
	for _, r := range records {
		groups[r.GroupID] = append(groups[r.GroupID], r)
	}

	for _, groupID := range sortedKeys(groups) {
		runs := groups[groupID]
		slices.SortFunc(runs, newestFirst)

		var doomed []domain.Record
		if keep < len(runs) {
			doomed = runs[keep:]
		}

		plan.GroupStats[groupID] = domain.GroupStats{
			Total:    len(runs),
			ToDelete: len(doomed),
		}
		for _, r := range doomed {
			plan.IDsToDelete = append(plan.IDsToDelete, r.ID)
		}
	}

	return plan
}

func newestFirst(a, b domain.Record) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func sortedKeys(groups map[int64][]domain.Record) []int64 {
	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
