package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/runpurge/internal/control"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which workflow runs would be purged, per workflow",
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	defer app.Close()

	plan, err := app.Plan(ctx)
	if err != nil {
		slog.Error("Failed to plan deletion", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "WORKFLOW\tTOTAL\tKEEP\tDELETE")
	for _, id := range plan.GroupIDs() {
		s := plan.GroupStats[id]
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", id, s.Total, s.Kept(), s.ToDelete)
	}
	_, _ = fmt.Fprintf(w, "ALL\t%d\t%d\t%d\n",
		plan.TotalRecords, plan.TotalRecords-len(plan.IDsToDelete), len(plan.IDsToDelete))
	return w.Flush()
}
