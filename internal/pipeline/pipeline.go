// Package pipeline orchestrates the daily prospecting run: metro
// rotation, candidate discovery, selection, best-effort enrichment,
// email formatting, and the send/commit phases that make external side
// effects idempotent across process restarts. Every phase persists its
// artifacts before the next begins, so a killed process resumes from
// the last recorded status.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/discovery"
	"github.com/sells-group/prospector/internal/ledger"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/rotation"
	"github.com/sells-group/prospector/internal/runstate"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/gmail"
)

// Discoverer runs the candidate merge engine for one metro.
type Discoverer interface {
	Discover(ctx context.Context, metro string, sent discovery.Membership) (*discovery.Result, error)
}

// Enricher extracts business facts for selected candidates.
type Enricher interface {
	Enrich(ctx context.Context, candidates []lead.Candidate) ([]lead.Enrichment, error)
}

// Options control one pipeline invocation.
type Options struct {
	// Metro overrides rotation when set: the rotation cursor is left
	// untouched and the named metro is used directly.
	Metro string
	// SkipEnrich leaves selected leads un-enriched.
	SkipEnrich bool
	// Send delivers the formatted email and commits the staged history.
	// Without it the run terminates at GENERATED.
	Send bool
	// To overrides the configured recipient list for this run.
	To []string
}

// Pipeline wires the run lifecycle to its collaborators.
type Pipeline struct {
	cfg      *config.Config
	engine   Discoverer
	enricher Enricher
	mailer   gmail.Client
	index    store.Store
}

// New creates a Pipeline. index may be nil when run indexing is
// disabled.
func New(cfg *config.Config, engine Discoverer, enricher Enricher, mailer gmail.Client, index store.Store) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		engine:   engine,
		enricher: enricher,
		mailer:   mailer,
		index:    index,
	}
}

// Daily executes one full run: consume the rotation's metro, create the
// run record, and drive it as far as the options ask. The rotation
// cursor advances at run start and stays advanced even if the run later
// fails; a failed metro comes back around next cycle.
func (p *Pipeline) Daily(ctx context.Context, opts Options) (*runstate.Record, error) {
	metro := opts.Metro
	if metro == "" {
		var err error
		metro, err = rotation.Consume(p.cfg.Data.RotationPath())
		if err != nil {
			return nil, err
		}
	}

	ldg, err := ledger.Load(p.cfg.Data.LedgerPath())
	if err != nil {
		return nil, err
	}

	seed := discovery.QuerySeed(p.cfg.Discovery.QueryTemplates)
	rec, err := runstate.Create(p.cfg.Data.RunsDir(), metro, seed, time.Now())
	if err != nil {
		return nil, err
	}
	p.indexUpsert(ctx, rec)

	if err := p.runFrom(ctx, rec, ldg, opts); err != nil {
		p.indexUpsert(ctx, rec)
		return rec, err
	}
	p.indexUpsert(ctx, rec)
	return rec, nil
}

// Resume picks up an existing run directory at its last persisted
// status: STARTED re-derives the whole generation phase, GENERATED goes
// straight to send/commit when requested, SENT finishes the commit.
func (p *Pipeline) Resume(ctx context.Context, dir runstate.RunDir, opts Options) (*runstate.Record, error) {
	rec, err := runstate.Load(dir)
	if err != nil {
		return nil, err
	}

	ldg, err := ledger.Load(p.cfg.Data.LedgerPath())
	if err != nil {
		return nil, err
	}

	attemptID, err := rec.BeginAttempt(time.Now())
	if err != nil {
		return nil, err
	}

	runErr := p.runFrom(ctx, rec, ldg, opts)
	outcome := "ok"
	if runErr != nil {
		outcome = runErr.Error()
	}
	if err := rec.CloseAttempt(attemptID, outcome); err != nil {
		zap.L().Warn("pipeline: close attempt failed", zap.Error(err))
	}
	p.indexUpsert(ctx, rec)
	return rec, runErr
}

// runFrom drives a run forward from its current status. Each phase is
// skipped when the persisted status shows it already completed.
func (p *Pipeline) runFrom(ctx context.Context, rec *runstate.Record, ldg *ledger.Ledger, opts Options) error {
	log := zap.L().With(
		zap.String("run_id", rec.RunID),
		zap.String("dir", string(rec.Dir)),
		zap.String("metro", rec.Metro),
	)

	if rec.Status == runstate.StatusStarted {
		if err := p.generate(ctx, rec, ldg, opts, log); err != nil {
			return err
		}
	}

	if !opts.Send {
		log.Info("pipeline: run complete without send", zap.String("status", string(rec.Status)))
		return nil
	}

	to := opts.To
	if len(to) == 0 {
		to = p.cfg.Gmail.To
	}
	return p.sendAndCommit(ctx, rec, ldg, to, log)
}

// generate runs discovery through staging and advances the record to
// GENERATED. Enrichment failures are recorded and swallowed; everything
// else is fatal.
func (p *Pipeline) generate(ctx context.Context, rec *runstate.Record, ldg *ledger.Ledger, opts Options, log *zap.Logger) error {
	result, err := p.engine.Discover(ctx, rec.Metro, ldg)
	if err != nil {
		return err
	}

	rec.QueriesIssued = result.QueriesIssued
	rec.MergedCount = len(result.Merged)
	rec.FreshCount = len(result.Fresh)
	rec.SelectedCount = len(result.Selected)

	if err := runstate.WriteArtifact(rec.Dir, runstate.MergedFile, result.Merged); err != nil {
		return err
	}
	if err := runstate.WriteArtifact(rec.Dir, runstate.SelectedFile, result.Selected); err != nil {
		return err
	}

	var enrichments []lead.Enrichment
	if opts.SkipEnrich {
		log.Info("pipeline: enrichment skipped")
	} else if len(result.Selected) > 0 {
		enrichments, err = p.enricher.Enrich(ctx, result.Selected)
		if err != nil {
			// Best effort: the run ships un-enriched leads.
			log.Warn("pipeline: enrichment failed, continuing without it", zap.Error(err))
			rec.RecordError("enrich: " + err.Error())
			if aerr := runstate.AppendError(rec.Dir, "enrich", err); aerr != nil {
				log.Warn("pipeline: errors.log append failed", zap.Error(aerr))
			}
			enrichments = nil
		} else if err := runstate.WriteArtifact(rec.Dir, runstate.EnrichmentsFile, enrichments); err != nil {
			return err
		}
	}

	email := FormatEmail(rec.Metro, rec.Date, result.Selected, enrichments)
	if err := runstate.WriteArtifact(rec.Dir, runstate.EmailFile, email); err != nil {
		return err
	}

	staged := StageEntries(rec, result.Selected, time.Now())
	if err := runstate.WriteArtifact(rec.Dir, runstate.StagedFile, staged); err != nil {
		return err
	}
	rec.PendingCommit = &runstate.PendingCommit{
		StagedCount: len(staged),
		StagedFile:  runstate.StagedFile,
	}
	if scoringCfg, err := lead.LoadScoringConfig(p.cfg.Discovery.ScoringPath); err == nil {
		rec.ScoringConfigHash = lead.ConfigHash(scoringCfg)
	}

	if err := rec.Advance(runstate.StatusGenerated); err != nil {
		return err
	}

	log.Info("pipeline: generation complete",
		zap.Int("merged", rec.MergedCount),
		zap.Int("fresh", rec.FreshCount),
		zap.Int("selected", rec.SelectedCount),
		zap.Int("staged", len(staged)),
	)
	return nil
}

// StageEntries builds the write-ahead ledger entries for the selected
// leads. The entries carry the run directory as their idempotency
// marker; the commit step checks it before ever appending.
func StageEntries(rec *runstate.Record, selected []lead.Candidate, now time.Time) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(selected))
	for _, c := range selected {
		entries = append(entries, ledger.Entry{
			Timestamp:   now.UTC(),
			Fingerprint: c.Fingerprint,
			Host:        c.Host,
			Title:       c.Title,
			URL:         c.URL,
			Metro:       rec.Metro,
			RunID:       rec.RunID,
			RunDir:      rec.Dir,
		})
	}
	return entries
}

// indexUpsert mirrors the record into the run index. Index failures
// never block a run.
func (p *Pipeline) indexUpsert(ctx context.Context, rec *runstate.Record) {
	if p.index == nil {
		return
	}
	if err := p.index.UpsertRun(ctx, rec); err != nil {
		zap.L().Warn("pipeline: run index upsert failed",
			zap.String("run_id", rec.RunID),
			zap.Error(err),
		)
	}
}

// LoadSelected reads a run's selected leads artifact.
func LoadSelected(dir runstate.RunDir) ([]lead.Candidate, error) {
	var selected []lead.Candidate
	if err := runstate.ReadArtifact(dir, runstate.SelectedFile, &selected); err != nil {
		return nil, err
	}
	return selected, nil
}

// LoadEnrichments reads a run's enrichment artifact, keyed by
// fingerprint. A missing file means the run shipped un-enriched.
func LoadEnrichments(dir runstate.RunDir) (map[string]lead.Enrichment, error) {
	if !runstate.ArtifactExists(dir, runstate.EnrichmentsFile) {
		return nil, nil
	}
	var enrichments []lead.Enrichment
	if err := runstate.ReadArtifact(dir, runstate.EnrichmentsFile, &enrichments); err != nil {
		return nil, err
	}
	byFP := make(map[string]lead.Enrichment, len(enrichments))
	for _, e := range enrichments {
		byFP[e.Fingerprint] = e
	}
	return byFP, nil
}
