package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/runstate"
	"github.com/sells-group/prospector/internal/store"
)

var commitCmd = &cobra.Command{
	Use:   "commit RUNDIR",
	Short: "Finish the commit phase of a sent run",
	Long:  "Appends the run's staged history to the sent-ledger, but only when the run carries proof of a confirmed send (SENT status or a persisted receipt). Safe to re-run; committed runs are a no-op.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		index, err := store.Open(ctx, cfg.Index)
		if err != nil {
			zap.L().Warn("run index unavailable, continuing without it", zap.Error(err))
			index = nil
		}
		if index != nil {
			defer index.Close() //nolint:errcheck
		}

		// Commit never talks to the network, so the search, enrichment,
		// and mail clients stay nil.
		p := pipeline.New(cfg, nil, nil, nil, index)

		rec, err := p.ConfirmAndCommit(ctx, runstate.RunDir(args[0]))
		if err != nil {
			return err
		}

		zap.L().Info("commit complete",
			zap.String("run_id", rec.RunID),
			zap.String("status", string(rec.Status)),
			zap.Int("appended", rec.SentHistoryAppended),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
}
