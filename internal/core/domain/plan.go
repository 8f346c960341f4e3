package domain

import (
	"slices"
)

// GroupStats holds per-workflow retention bookkeeping.
type GroupStats struct {
	Total    int `json:"total"`
	ToDelete int `json:"to_delete"`
}

// Kept returns how many runs survive in the group.
func (s GroupStats) Kept() int {
	return s.Total - s.ToDelete
}

// RetentionPlan is the outcome of retention selection for one run of the job.
type RetentionPlan struct {
	IDsToDelete  []int64
	TotalRecords int
	GroupStats   map[int64]GroupStats
}

// GroupIDs returns the plan's group ids in ascending order.
func (p RetentionPlan) GroupIDs() []int64 {
	ids := make([]int64, 0, len(p.GroupStats))
	for id := range p.GroupStats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DeletionResult aggregates the outcome of a deletion pass.
type DeletionResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Total returns the number of ids accounted for.
func (r DeletionResult) Total() int {
	return r.Succeeded + r.Failed
}
