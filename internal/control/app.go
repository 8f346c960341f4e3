// Package control wires configuration into a runnable purge application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/runpurge/internal/core/config"
	"github.com/vietddude/runpurge/internal/core/domain"
	"github.com/vietddude/runpurge/internal/core/worker"
	"github.com/vietddude/runpurge/internal/health"
	"github.com/vietddude/runpurge/internal/infra/github"
	redisclient "github.com/vietddude/runpurge/internal/infra/redis"
	"github.com/vietddude/runpurge/internal/infra/storage"
	"github.com/vietddude/runpurge/internal/infra/storage/memory"
	"github.com/vietddude/runpurge/internal/infra/storage/postgres"
	"github.com/vietddude/runpurge/internal/purge"
)

const defaultLockTTL = 30 * time.Minute

// App holds every component of one purge invocation.
type App struct {
	cfg          *config.AppConfig
	client       *github.Client
	engine       *purge.Engine
	job          *worker.PurgeJob
	reports      storage.ReportRepository
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewApp creates the application with all dependencies initialized.
// cfg must already be validated.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default().With("repo", cfg.Owner+"/"+cfg.Repo)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}

	// 1. Remote and engine
	a.client = github.NewClient(cfg.API, cfg.Token, cfg.Owner, cfg.Repo)
	a.engine = purge.NewEngine(engineCfg, a.client, purge.WithLogger(log))

	// 2. Report storage
	if cfg.Database.URL != "" {
		a.db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := a.db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.reports = postgres.NewReportRepo(a.db)
		log.Info("Using PostgreSQL report storage")
	} else {
		a.reports = memory.NewReportRepo()
		log.Debug("Using memory report storage")
	}

	opts := []worker.JobOption{
		worker.WithReports(a.reports),
		worker.WithJobLogger(log),
	}

	// 3. Run lock
	if cfg.Redis.URL != "" {
		a.redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		opts = append(opts, worker.WithLock(a.lock))
	}

	// 4. Metrics
	if cfg.Metrics.PushURL != "" {
		opts = append(opts, worker.WithPush(func(ctx context.Context) error {
			return health.Push(ctx, cfg.Metrics.PushURL, cfg.Metrics.Job, map[string]string{
				"owner": cfg.Owner,
				"repo":  cfg.Repo,
			})
		}))
	}
	if cfg.Metrics.Port > 0 {
		a.healthServer = health.NewServer(a.engine, cfg.Metrics.Port)
	}

	a.job = worker.NewPurgeJob(worker.JobConfig{
		Owner:         cfg.Owner,
		Repo:          cfg.Repo,
		OlderThanDays: cfg.OlderThanDays(),
		RunsToKeep:    cfg.Retention.RunsToKeep,
		WorkflowNames: cfg.Retention.WorkflowNames,
	}, a.engine, opts...)

	return a, nil
}

func (a *App) lock(ctx context.Context) (func(context.Context) error, error) {
	ttl := a.cfg.Redis.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	l, err := a.redisClient.AcquireLock(ctx, a.cfg.Owner, a.cfg.Repo, ttl)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

// Start starts the optional health server.
func (a *App) Start() {
	if a.healthServer == nil {
		return
	}
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	a.log.Info("Health server started", "port", a.cfg.Metrics.Port)
}

// Run performs the purge.
func (a *App) Run(ctx context.Context) (domain.RunReport, error) {
	report, err := a.job.Run(ctx)
	stats := a.client.Monitor.Stats()
	if throttled := stats.ThrottleCount429 + stats.ThrottleCount403; throttled > 0 {
		a.log.Warn("API throttling observed",
			"status_429", stats.ThrottleCount429,
			"status_403", stats.ThrottleCount403,
			"remaining", stats.Remaining,
		)
	}
	return report, err
}

// Plan computes the retention plan without deleting anything.
func (a *App) Plan(ctx context.Context) (domain.RetentionPlan, error) {
	return a.job.Plan(ctx)
}

// Reports returns the configured report repository.
func (a *App) Reports() storage.ReportRepository {
	return a.reports
}

// Stop shuts down the health server and closes connections.
func (a *App) Stop(ctx context.Context) error {
	var err error
	if a.healthServer != nil {
		err = a.healthServer.Stop(ctx)
	}
	a.Close()
	return err
}

// Close releases connections without touching the health server.
func (a *App) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
