package config

import (
	"time"

	"github.com/vietddude/runpurge/internal/infra/github"
	redisclient "github.com/vietddude/runpurge/internal/infra/redis"
	"github.com/vietddude/runpurge/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Token      string `yaml:"token"`
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Repository string `yaml:"repository"` // owner/repo shorthand

	Retention      RetentionConfig      `yaml:"retention"`
	Engine         EngineConfig         `yaml:"engine"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Classifier     ClassifierConfig     `yaml:"classifier"`
	API            github.Config        `yaml:"api"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Redis          redisclient.Config   `yaml:"redis"`
	Logging        LoggingConfig        `yaml:"logging"`
	Database       postgres.Config      `yaml:"database"`
}

// RetentionConfig selects which runs are purged.
type RetentionConfig struct {
	RunsToKeep    int      `yaml:"runs_to_keep"`    // per workflow
	RunsOlderThan *int     `yaml:"runs_older_than"` // days, nil = default
	DryRun        Bool     `yaml:"dry_run"`
	WorkflowNames []string `yaml:"workflow_names"`
}

// EngineConfig holds deletion batching settings.
type EngineConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	RequestDelay time.Duration `yaml:"request_delay"`
	DryRunDelay  time.Duration `yaml:"dry_run_delay"`
}

// RetryConfig holds retry executor settings.
type RetryConfig struct {
	MaxRetries    *int          `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	RateLimitWait time.Duration `yaml:"rate_limit_wait"`
}

// CircuitBreakerConfig holds breaker thresholds.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// ClassifierConfig holds error classification policy.
type ClassifierConfig struct {
	UnknownAs string `yaml:"unknown_as"` // server_error, network_error, client_error
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Port    int    `yaml:"port"`     // 0 = no HTTP server
	PushURL string `yaml:"push_url"` // pushgateway, empty = disabled
	Job     string `yaml:"job"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
