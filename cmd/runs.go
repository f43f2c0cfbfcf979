package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospector/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run index",
	Long:  "Commands for listing and viewing indexed runs. The JSON run record in each run directory stays authoritative; the index is a queryable mirror.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initIndex(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metro, _ := cmd.Flags().GetString("metro")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Metro:  metro,
			Status: status,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the indexed summary of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initIndex(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initIndex(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			cutoff := time.Now().Add(-since)
			kept := runs[:0]
			for _, r := range runs {
				if r.CreatedAt.After(cutoff) {
					kept = append(kept, r)
				}
			}
			runs = kept
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("metro", "", "filter by metro")
	runsListCmd.Flags().String("status", "", "filter by run status (STARTED, GENERATED, SENT, COMMITTED)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 0, "only count runs created within this window (e.g. 24h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total     int
	Committed int
	Sent      int
	Generated int
	Started   int
	Selected  int
	Appended  int
}

// computeRunStats computes aggregate statistics from indexed runs.
func computeRunStats(runs []store.RunSummary) runStats {
	var s runStats
	s.Total = len(runs)

	for _, r := range runs {
		switch r.Status {
		case "COMMITTED":
			s.Committed++
		case "SENT":
			s.Sent++
		case "GENERATED":
			s.Generated++
		case "STARTED":
			s.Started++
		}
		s.Selected += r.SelectedCount
		s.Appended += r.SentHistoryAppended
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.RunSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN_ID\tMETRO\tSTATUS\tSELECTED\tAPPENDED\tCREATED")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t--------\t--------\t-------")

	for _, r := range runs {
		metro := r.Metro
		if len(metro) > 30 {
			metro = metro[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(r.RunID),
			metro,
			r.Status,
			r.SelectedCount,
			r.SentHistoryAppended,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Committed:\t%d\n", s.Committed)
	_, _ = fmt.Fprintf(w, "Sent (uncommitted):\t%d\n", s.Sent)
	_, _ = fmt.Fprintf(w, "Generated:\t%d\n", s.Generated)
	_, _ = fmt.Fprintf(w, "Started:\t%d\n", s.Started)
	_, _ = fmt.Fprintf(w, "Leads selected:\t%d\n", s.Selected)
	_, _ = fmt.Fprintf(w, "History appended:\t%d\n", s.Appended)
	_ = w.Flush()
}

// truncateID returns the first 12 characters of a run id for compact
// display.
func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
