package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/alert"
	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/runstate"
)

var (
	auditStaleAfter time.Duration
	auditNotify     bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Cross-check run directories against the sent-ledger",
	Long:  "Read-only consistency checks: ledger entries pointing at missing run directories, runs stuck at SENT without a commit, and generated runs whose staged leads were never sent. Exit 1 when findings exist.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		ldg, err := ledger.Load(cfg.Data.LedgerPath())
		if err != nil {
			return err
		}
		dirs, err := runstate.ListRunDirs(cfg.Data.RunsDir())
		if err != nil {
			return err
		}

		findings, err := auditFindings(ctx, ldg, dirs, time.Now().Add(-auditStaleAfter))
		if err != nil {
			return err
		}

		if len(findings) == 0 {
			fmt.Printf("audit clean: %d run dirs, %d ledger entries\n", len(dirs), ldg.Len())
			return nil
		}

		for _, f := range findings {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", f.Kind, f.Message)
		}
		if auditNotify {
			sent := alert.NewNotifier(cfg.Alert).Send(ctx, findings...)
			zap.L().Info("audit findings notified", zap.Int("sent", sent))
		}
		return eris.Errorf("audit: %d finding(s)", len(findings))
	},
}

// auditFindings fans the read-only checks out over the run directories
// and returns everything inconsistent between them and the ledger.
func auditFindings(ctx context.Context, ldg *ledger.Ledger, dirs []runstate.RunDir, staleBefore time.Time) ([]alert.Event, error) {
	var mu sync.Mutex
	var findings []alert.Event
	add := func(ev alert.Event) {
		mu.Lock()
		findings = append(findings, ev)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	// Every run directory a ledger entry references must still exist.
	g.Go(func() error {
		seen := make(map[runstate.RunDir]struct{})
		for _, e := range ldg.Entries() {
			if e.RunDir == "" {
				continue
			}
			if _, done := seen[e.RunDir]; done {
				continue
			}
			seen[e.RunDir] = struct{}{}
			if _, err := os.Stat(string(e.RunDir)); os.IsNotExist(err) {
				add(alert.LedgerDrift("ledger references a missing run directory", map[string]any{
					"run_dir":     string(e.RunDir),
					"run_id":      e.RunID,
					"fingerprint": e.Fingerprint,
				}))
			}
		}
		return nil
	})

	// Every run record must have finished its lifecycle or be young
	// enough to still be in flight.
	for _, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := runstate.Load(dir)
			if err != nil {
				add(alert.LedgerDrift("run record unreadable", map[string]any{
					"run_dir": string(dir),
					"error":   err.Error(),
				}))
				return nil
			}

			switch rec.Status {
			case runstate.StatusSent:
				add(alert.CommitStuck(rec))
			case runstate.StatusGenerated:
				if rec.PendingCommit != nil && rec.PendingCommit.StagedCount > 0 && rec.UpdatedAt.Before(staleBefore) {
					add(alert.LedgerDrift("staged leads were never sent", map[string]any{
						"run_dir": string(dir),
						"run_id":  rec.RunID,
						"staged":  rec.PendingCommit.StagedCount,
					}))
				}
			case runstate.StatusCommitted:
				if rec.SentHistoryAppended > 0 && !ldg.HasRunDir(rec.Dir) {
					add(alert.LedgerDrift("committed run is absent from the ledger", map[string]any{
						"run_dir":  string(dir),
						"run_id":   rec.RunID,
						"appended": rec.SentHistoryAppended,
					}))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

func init() {
	auditCmd.Flags().DurationVar(&auditStaleAfter, "stale-after", 48*time.Hour, "age before an unsent GENERATED run counts as a finding")
	auditCmd.Flags().BoolVar(&auditNotify, "notify", false, "send findings to the alert webhook")
	rootCmd.AddCommand(auditCmd)
}
