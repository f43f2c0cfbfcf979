package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/runstate"
	"github.com/sells-group/prospector/pkg/gmail"
)

var errNoRecipients = eris.New("pipeline: send requested with no recipients configured")

// Receipt is the persisted proof of a confirmed send. Its presence on
// disk short-circuits any later send attempt for the same run.
type Receipt struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	To        []string  `json:"to,omitempty"`
	SentAt    time.Time `json:"sent_at"`

	// LegacyID carries the id field older runs wrote to receipt.json.
	LegacyID string `json:"id,omitempty"`
}

// normalize folds the legacy id field into MessageID.
func (r *Receipt) normalize() {
	if r.MessageID == "" && r.LegacyID != "" {
		r.MessageID = r.LegacyID
	}
	r.LegacyID = ""
}

// loadReceipt returns the run's send receipt, checking the current
// filename and then the legacy one. A nil receipt means no confirmed
// send exists on disk.
func loadReceipt(dir runstate.RunDir) (*Receipt, error) {
	for _, name := range []string{runstate.ReceiptFile, runstate.LegacyReceiptFile} {
		if !runstate.ArtifactExists(dir, name) {
			continue
		}
		var r Receipt
		if err := runstate.ReadArtifact(dir, name, &r); err != nil {
			return nil, err
		}
		r.normalize()
		return &r, nil
	}
	return nil, nil
}

// sendAndCommit drives a run through the send and commit phases. The
// send happens at most once per run: a SENT-or-later status or an
// existing receipt artifact short-circuits straight to the commit
// protocol.
func (p *Pipeline) sendAndCommit(ctx context.Context, rec *runstate.Record, ldg *ledger.Ledger, to []string, log *zap.Logger) error {
	switch rec.Status {
	case runstate.StatusSent, runstate.StatusCommitted:
		log.Info("pipeline: send already confirmed", zap.String("status", string(rec.Status)))

	default:
		receipt, err := loadReceipt(rec.Dir)
		if err != nil {
			return err
		}
		if receipt != nil {
			// A receipt without SENT status means the process died
			// between the send and the status flip. Adopt it.
			log.Info("pipeline: adopting existing send receipt",
				zap.String("message_id", receipt.MessageID))
			rec.MessageID = receipt.MessageID
			if err := rec.Advance(runstate.StatusSent); err != nil {
				return err
			}
			break
		}

		if len(to) == 0 {
			return errNoRecipients
		}
		if err := p.send(ctx, rec, to, log); err != nil {
			return err
		}
	}

	return Commit(rec, ldg)
}

// send performs the actual network delivery and persists its proof:
// receipt first, then the SENT status.
func (p *Pipeline) send(ctx context.Context, rec *runstate.Record, to []string, log *zap.Logger) error {
	var email Email
	if err := runstate.ReadArtifact(rec.Dir, runstate.EmailFile, &email); err != nil {
		return eris.Wrap(err, "pipeline: email payload missing, run never reached GENERATED")
	}

	result, err := p.mailer.Send(ctx, gmail.Message{
		From:    p.cfg.Gmail.From,
		To:      to,
		Subject: email.Subject,
		Body:    email.Body,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: send")
	}

	receipt := Receipt{
		MessageID: result.MessageID,
		ThreadID:  result.ThreadID,
		To:        to,
		SentAt:    time.Now().UTC(),
	}
	if err := runstate.WriteArtifact(rec.Dir, runstate.ReceiptFile, receipt); err != nil {
		return err
	}

	rec.MessageID = result.MessageID
	if err := rec.Advance(runstate.StatusSent); err != nil {
		return err
	}

	log.Info("pipeline: email sent",
		zap.String("message_id", result.MessageID),
		zap.Int("recipients", len(to)),
	)
	return nil
}

// ConfirmAndCommit finishes an existing run's send and commit phases
// without ever performing a network send: it requires proof of a prior
// confirmed send (status or receipt artifact) and otherwise refuses.
// This is the `commit` command's entry point.
func (p *Pipeline) ConfirmAndCommit(ctx context.Context, dir runstate.RunDir) (*runstate.Record, error) {
	rec, err := runstate.Load(dir)
	if err != nil {
		return nil, err
	}

	ldg, err := ledger.Load(p.cfg.Data.LedgerPath())
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("run_id", rec.RunID), zap.String("dir", string(dir)))

	switch rec.Status {
	case runstate.StatusSent, runstate.StatusCommitted:
		// Send already confirmed.
	default:
		receipt, err := loadReceipt(rec.Dir)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, eris.Errorf("pipeline: run %s has no confirmed send; refusing to commit", rec.RunID)
		}
		log.Info("pipeline: adopting existing send receipt",
			zap.String("message_id", receipt.MessageID))
		rec.MessageID = receipt.MessageID
		if err := rec.Advance(runstate.StatusSent); err != nil {
			return nil, err
		}
	}

	if err := Commit(rec, ldg); err != nil {
		return nil, err
	}
	p.indexUpsert(ctx, rec)
	return rec, nil
}
