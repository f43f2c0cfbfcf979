package pipeline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/runstate"
)

// Commit durably folds a run's staged history into the sent-ledger and
// flips the run to COMMITTED. Callers invoke it only after the run's
// send is confirmed. It is safe to call any number of times:
//
//  1. A COMMITTED status returns immediately.
//  2. If the ledger already holds an entry for this run directory, the
//     append happened on a previous attempt that died before the status
//     flip; the run is marked COMMITTED with zero entries appended.
//  3. Otherwise the staged entries are appended and the run is marked
//     COMMITTED with the count.
//
// The run directory, not the run id, is the double-append guard: a
// re-invoked pipeline can share a run id with an earlier directory it
// must not be confused with.
func Commit(rec *runstate.Record, ldg *ledger.Ledger) error {
	log := zap.L().With(
		zap.String("run_id", rec.RunID),
		zap.String("dir", string(rec.Dir)),
	)

	if rec.Status == runstate.StatusCommitted || rec.CommittedAt != nil {
		log.Info("commit: already committed, nothing to do")
		return nil
	}

	if ldg.HasRunDir(rec.Dir) {
		log.Info("commit: ledger already holds this run directory, healing status")
		rec.SentHistoryAppended = 0
		return rec.Advance(runstate.StatusCommitted)
	}

	var staged []ledger.Entry
	if err := runstate.ReadArtifact(rec.Dir, runstate.StagedFile, &staged); err != nil {
		return eris.Wrap(err, "commit: staged history missing, run never reached GENERATED")
	}
	if len(staged) == 0 {
		// A run that legitimately selected nothing records staged_count 0
		// before advancing to GENERATED. An empty file without that
		// attestation means generation never finished.
		if rec.PendingCommit != nil && rec.PendingCommit.StagedCount == 0 {
			log.Info("commit: nothing staged, committing empty run")
			rec.SentHistoryAppended = 0
			return rec.Advance(runstate.StatusCommitted)
		}
		return eris.Errorf("commit: staged history for run %s is empty", rec.RunID)
	}

	appended, err := ldg.Append(staged)
	if err != nil {
		return err
	}

	rec.SentHistoryAppended = appended
	if err := rec.Advance(runstate.StatusCommitted); err != nil {
		return err
	}

	log.Info("commit: staged history committed", zap.Int("appended", appended))
	return nil
}
