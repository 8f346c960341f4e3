package domain

import "time"

// Record is a single workflow run as returned by the remote listing.
type Record struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"workflow_id"`
	GroupName string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows the remote listing.
type ListFilter struct {
	// CreatedBefore excludes runs created on or after this date. Zero means no cutoff.
	CreatedBefore time.Time
	// GroupNames limits the listing to these workflow names. Empty means all workflows.
	GroupNames []string
}

// Matches reports whether the workflow name passes the group filter.
func (f ListFilter) Matches(groupName string) bool {
	if len(f.GroupNames) == 0 {
		return true
	}
	for _, n := range f.GroupNames {
		if n == groupName {
			return true
		}
	}
	return false
}
