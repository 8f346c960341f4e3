package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/runpurge/internal/control"
	"github.com/vietddude/runpurge/internal/core/config"
)

var (
	cfgPath string
	isDebug bool

	owner     string
	repo      string
	keep      int
	olderThan int
	dryRun    string
	workflows string
)

var rootCmd = &cobra.Command{
	Use:   "runpurge",
	Short: "Purge old GitHub Actions workflow runs",
	Long: `runpurge deletes completed workflow runs older than a number of days,
keeping the newest runs of every workflow. Deletions are batched, retried
with backoff, and stopped by a circuit breaker when the API keeps failing.`,
	SilenceUsage: true,
	RunE:         runPurge,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")

	rootCmd.PersistentFlags().StringVar(&owner, "owner", "", "repository owner (default $GITHUB_REPOSITORY_OWNER)")
	rootCmd.PersistentFlags().StringVar(&repo, "repo", "", "repository name (default from $GITHUB_REPOSITORY)")
	rootCmd.PersistentFlags().IntVar(&keep, "keep", 0, "runs to keep per workflow")
	rootCmd.PersistentFlags().IntVar(&olderThan, "older-than", 0, "only purge runs older than this many days")
	rootCmd.PersistentFlags().StringVar(&dryRun, "dry-run", "", "log what would be deleted (true/false, yes/no, 1/0)")
	rootCmd.PersistentFlags().StringVar(&workflows, "workflows", "", "comma-separated workflow names to purge")
}

// loadConfig reads the config file, applies flag overrides, validates, and
// initializes logging.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		return nil, err
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) error {
	flags := cmd.Flags()
	if flags.Changed("owner") {
		cfg.Owner = owner
	}
	if flags.Changed("repo") {
		cfg.Repo = repo
	}
	if flags.Changed("keep") {
		cfg.Retention.RunsToKeep = keep
	}
	if flags.Changed("older-than") {
		days := olderThan
		cfg.Retention.RunsOlderThan = &days
	}
	if flags.Changed("dry-run") {
		v, err := config.ParseBool(dryRun)
		if err != nil {
			return err
		}
		cfg.Retention.DryRun = config.Bool(v)
	}
	if flags.Changed("workflows") {
		cfg.Retention.WorkflowNames = config.ParseWorkflowNames(workflows)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize runpurge", "error", err)
		return err
	}
	app.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := app.Stop(shutdownCtx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	report, err := app.Run(ctx)
	if err != nil {
		slog.Error("Purge failed", "error", err, "run_id", report.ID)
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return errors.New("interrupted")
	}
	slog.Info("Purge finished", "run_id", report.ID, "succeeded", report.Succeeded, "duration", report.Duration())
	return nil
}
