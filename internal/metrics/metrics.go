package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteAttemptsTotal tracks delete calls actually sent to the remote
	RemoteAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runpurge_remote_attempts_total",
			Help: "Total number of remote delete attempts",
		},
	)

	// RemoteOutcomesTotal tracks final per-item outcomes of the retry executor
	RemoteOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpurge_remote_outcomes_total",
			Help: "Final outcome of retried remote operations",
		},
		[]string{"outcome"},
	)

	// RemoteErrorsTotal tracks classified remote failures
	RemoteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpurge_remote_errors_total",
			Help: "Total number of remote failures by class",
		},
		[]string{"error_type"},
	)

	// RetriesTotal tracks retry attempts (backoff and rate-limit waits)
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runpurge_retries_total",
			Help: "Total number of retries",
		},
	)

	// RateLimitHitsTotal tracks responses classified as rate limited
	RateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runpurge_rate_limit_hits_total",
			Help: "Total number of rate limit responses",
		},
	)

	// CircuitRejectionsTotal tracks calls refused by an open circuit
	CircuitRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runpurge_circuit_rejections_total",
			Help: "Total number of calls rejected by the circuit breaker",
		},
	)

	// CircuitState is 0 closed, 1 open, 2 half-open
	CircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runpurge_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	// DeletionsTotal tracks engine-level results per item
	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpurge_deletions_total",
			Help: "Total number of run deletions by result",
		},
		[]string{"result"},
	)

	// BatchDuration tracks how long one deletion batch takes
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runpurge_batch_duration_seconds",
			Help:    "Deletion batch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// PlannedDeletions tracks the size of the last retention plan per workflow
	PlannedDeletions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runpurge_planned_deletions",
			Help: "Runs selected for deletion in the last plan",
		},
		[]string{"workflow_id"},
	)

	// RecordsListed tracks runs returned by the remote listing
	RecordsListed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runpurge_records_listed_total",
			Help: "Total number of workflow runs fetched from the remote",
		},
	)

	// ThrottleResponsesTotal tracks 429/403 throttling seen by the API client
	ThrottleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpurge_throttle_responses_total",
			Help: "Throttling responses observed by the API client",
		},
		[]string{"status"},
	)

	// APILatency tracks remote call latency
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runpurge_api_latency_seconds",
			Help:    "GitHub API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
