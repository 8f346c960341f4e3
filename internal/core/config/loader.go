package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/runpurge/internal/infra/github"
	"github.com/vietddude/runpurge/internal/purge"
	"github.com/vietddude/runpurge/internal/resilience"
)

const (
	DefaultRunsToKeep    = 0
	DefaultRunsOlderThan = 7
)

// Load reads configuration from a YAML file. An empty path yields the
// defaults, with owner and repo taken from the environment.
func Load(path string) (*AppConfig, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Parse(data)
}

// LoadOptional behaves like Load but treats a missing file as empty.
func LoadOptional(path string) (*AppConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Load("")
	}
	return Load(path)
}

// Parse decodes YAML content after environment expansion and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}

	if cfg.Repository == "" {
		cfg.Repository = os.Getenv("GITHUB_REPOSITORY")
	}
	if owner, repo, ok := strings.Cut(cfg.Repository, "/"); ok {
		if cfg.Owner == "" {
			cfg.Owner = owner
		}
		if cfg.Repo == "" {
			cfg.Repo = repo
		}
	}
	if cfg.Owner == "" {
		cfg.Owner = os.Getenv("GITHUB_REPOSITORY_OWNER")
	}

	if cfg.Retention.RunsOlderThan == nil {
		days := DefaultRunsOlderThan
		cfg.Retention.RunsOlderThan = &days
	}

	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = purge.DefaultConfig.BatchSize
	}
	if cfg.Engine.RequestDelay == 0 {
		cfg.Engine.RequestDelay = purge.DefaultConfig.RequestDelay
	}
	if cfg.Engine.DryRunDelay == 0 {
		cfg.Engine.DryRunDelay = purge.DefaultConfig.DryRunDelay
	}

	if cfg.Retry.MaxRetries == nil {
		n := resilience.DefaultRetryConfig.MaxRetries
		cfg.Retry.MaxRetries = &n
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = resilience.DefaultRetryConfig.InitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = resilience.DefaultRetryConfig.MaxDelay
	}
	if cfg.Retry.RateLimitWait == 0 {
		cfg.Retry.RateLimitWait = resilience.DefaultRetryConfig.RateLimitWait
	}

	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = resilience.DefaultBreakerConfig.FailureThreshold
	}
	if cfg.CircuitBreaker.SuccessThreshold == 0 {
		cfg.CircuitBreaker.SuccessThreshold = resilience.DefaultBreakerConfig.SuccessThreshold
	}
	if cfg.CircuitBreaker.OpenTimeout == 0 {
		cfg.CircuitBreaker.OpenTimeout = resilience.DefaultBreakerConfig.OpenTimeout
	}

	if cfg.Classifier.UnknownAs == "" {
		cfg.Classifier.UnknownAs = resilience.DefaultClassifierConfig.Unknown.String()
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = github.DefaultBaseURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}

	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "runpurge"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// EngineConfig converts the file settings into the deletion engine config.
func (c *AppConfig) EngineConfig() (purge.Config, error) {
	unknown, err := resilience.ParseErrorKind(c.Classifier.UnknownAs)
	if err != nil {
		return purge.Config{}, fmt.Errorf("classifier.unknown_as: %w", err)
	}
	if unknown == resilience.KindRateLimited {
		return purge.Config{}, errors.New("classifier.unknown_as: rate_limited is not allowed")
	}

	return purge.Config{
		BatchSize:    c.Engine.BatchSize,
		RequestDelay: c.Engine.RequestDelay,
		DryRun:       bool(c.Retention.DryRun),
		DryRunDelay:  c.Engine.DryRunDelay,
		Retry: resilience.RetryConfig{
			MaxRetries:    *c.Retry.MaxRetries,
			InitialDelay:  c.Retry.InitialDelay,
			MaxDelay:      c.Retry.MaxDelay,
			RateLimitWait: c.Retry.RateLimitWait,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: c.CircuitBreaker.FailureThreshold,
			SuccessThreshold: c.CircuitBreaker.SuccessThreshold,
			OpenTimeout:      c.CircuitBreaker.OpenTimeout,
		},
		Classifier: resilience.ClassifierConfig{Unknown: unknown},
	}, nil
}

// OlderThanDays returns the age threshold in days.
func (c *AppConfig) OlderThanDays() int {
	if c.Retention.RunsOlderThan == nil {
		return DefaultRunsOlderThan
	}
	return *c.Retention.RunsOlderThan
}
