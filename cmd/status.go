package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/monitoring"
	"github.com/sells-group/moviesync/internal/store"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog counts and recent collection runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		policy, err := loadPolicy(cfg)
		if err != nil {
			return err
		}
		g, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer g.Close() //nolint:errcheck

		runLog := store.NewRunLog(g)
		snap, err := monitoring.NewCollector(g, runLog, policy).Collect(ctx, cfg.Monitoring.LookbackWindowHours)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := runLog.List(ctx, statusRuns)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatSnapshot(os.Stdout, snap)
		_, _ = fmt.Fprintln(os.Stdout)
		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes catalog counts and cycle health to out.
func formatSnapshot(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Movies:\t%d\n", s.Movies.Total)
	_, _ = fmt.Fprintf(w, "Frozen:\t%d\n", s.Movies.Frozen)
	_, _ = fmt.Fprintf(w, "With IMDb id:\t%d\n", s.Movies.WithIMDbID)
	_, _ = fmt.Fprintf(w, "Never refreshed:\t%d\n", s.Movies.NeverRefreshed)
	_, _ = fmt.Fprintf(w, "Due for refresh:\t%d\n", s.Due)
	last := "never"
	if s.LastSuccess != nil {
		last = s.LastSuccess.Format(time.RFC3339)
	}
	_, _ = fmt.Fprintf(w, "Last success:\t%s\n", last)
	_, _ = fmt.Fprintf(w, "Cycles (%dh):\t%d complete, %d failed, %d running\n",
		s.LookbackHours, s.CyclesComplete, s.CyclesFailed, s.CyclesRunning)
	_ = w.Flush()
}

// formatRuns writes a tabular representation of runs to out.
func formatRuns(out io.Writer, runs []model.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No collection runs yet, run 'moviesync collect' to start.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tDISCOVERED\tTMDB\tOMDB\tFROZEN\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t----------\t----\t----\t------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.Duration().Round(time.Second).String()
		}
		errMsg := r.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			dur,
			r.Stats.Discovered,
			r.Stats.SourceAUpdated,
			r.Stats.SourceBUpdated,
			r.Stats.Frozen,
			errMsg,
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
