package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vietddude/runpurge/internal/control"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent purge runs recorded in the database",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required to read run history")
	}

	ctx, cancel := signalContext()
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return err
	}
	defer app.Close()

	reports, err := app.Reports().ListRecent(ctx, cfg.Owner, cfg.Repo, historyLimit)
	if err != nil {
		slog.Error("Failed to query run reports", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STARTED\tDRY RUN\tPLANNED\tDELETED\tFAILED\tRATE LIMITS\tCIRCUIT\tDURATION")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%d\t%s\t%s\n",
			humanize.Time(r.StartedAt), r.DryRun,
			humanize.Comma(int64(r.Planned)), humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Failed)),
			r.RateLimitHits, r.BreakerState, r.Duration().Round(time.Millisecond))
	}
	return w.Flush()
}
