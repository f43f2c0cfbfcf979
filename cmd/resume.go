package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/alert"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/runstate"
)

var (
	resumeSkipEnrich bool
	resumeSend       bool
	resumeTo         []string
)

var resumeCmd = &cobra.Command{
	Use:   "resume RUNDIR",
	Short: "Resume an interrupted run from its last persisted status",
	Long:  "Reloads the run record and drives it forward: STARTED re-runs generation, GENERATED goes straight to send (with --send), SENT finishes the commit.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, resumeSend)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Resume(ctx, runstate.RunDir(args[0]), pipeline.Options{
			SkipEnrich: resumeSkipEnrich,
			Send:       resumeSend,
			To:         resumeTo,
		})
		if err != nil {
			env.Notifier.Send(ctx, alert.RunFailure(rec, err))
			return err
		}

		zap.L().Info("resume complete",
			zap.String("run_id", rec.RunID),
			zap.String("status", string(rec.Status)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeSkipEnrich, "skip-enrich", false, "skip the enrichment phase if generation re-runs")
	resumeCmd.Flags().BoolVar(&resumeSend, "send", false, "send the digest email and commit the sent history")
	resumeCmd.Flags().StringSliceVar(&resumeTo, "to", nil, "recipient override (default from config)")
	rootCmd.AddCommand(resumeCmd)
}
