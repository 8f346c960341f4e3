package domain

import "time"

// RunReport summarizes one invocation of the purge job.
type RunReport struct {
	ID           string
	Owner        string
	Repo         string
	DryRun       bool
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalRecords int
	Planned      int
	Succeeded    int
	Failed       int

	TotalAttempts            int64
	Successes                int64
	Failures                 int64
	Retries                  int64
	RateLimitHits            int64
	CircuitBreakerRejections int64
	BreakerState             string
}

// Duration returns the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
