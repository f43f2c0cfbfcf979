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
)

var (
	dailyMetro       string
	dailySkipEnrich  bool
	dailySend        bool
	dailyTo          []string
	dailyFreshTarget int
	dailyPerQuery    int
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run the daily lead discovery pipeline",
	Long:  "Consumes the next metro from the rotation, discovers and scores fresh leads, enriches them, and (with --send) emails the digest and commits the sent history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if dailyFreshTarget > 0 {
			cfg.Discovery.FreshTarget = dailyFreshTarget
		}
		if dailyPerQuery > 0 {
			cfg.Discovery.PerQueryLimit = dailyPerQuery
		}

		env, err := initPipeline(ctx, dailySend)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Pipeline.Daily(ctx, pipeline.Options{
			Metro:      dailyMetro,
			SkipEnrich: dailySkipEnrich,
			Send:       dailySend,
			To:         dailyTo,
		})
		if err != nil {
			env.Notifier.Send(ctx, alert.RunFailure(rec, err))
			return err
		}

		zap.L().Info("daily run complete",
			zap.String("run_id", rec.RunID),
			zap.String("metro", rec.Metro),
			zap.String("status", string(rec.Status)),
			zap.Int("selected", rec.SelectedCount),
			zap.Int("appended", rec.SentHistoryAppended),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	dailyCmd.Flags().StringVar(&dailyMetro, "metro", "", "run against this metro instead of consuming the rotation")
	dailyCmd.Flags().BoolVar(&dailySkipEnrich, "skip-enrich", false, "skip the enrichment phase")
	dailyCmd.Flags().BoolVar(&dailySend, "send", false, "send the digest email and commit the sent history")
	dailyCmd.Flags().StringSliceVar(&dailyTo, "to", nil, "recipient override (default from config)")
	dailyCmd.Flags().IntVar(&dailyFreshTarget, "fresh-target", 0, "fresh leads to aim for (default from config)")
	dailyCmd.Flags().IntVar(&dailyPerQuery, "per-query", 0, "max results per search query (default from config)")
	rootCmd.AddCommand(dailyCmd)
}
