// Package store mirrors run records into a queryable index database so
// operators can list and inspect runs without walking the artifact
// tree. The filesystem run record stays authoritative: index writes are
// best-effort and a failed upsert never blocks a run.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/runstate"
)

// RunSummary is one indexed run row.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	Dir                 string    `json:"dir"`
	Metro               string    `json:"metro"`
	Date                string    `json:"date"`
	Status              string    `json:"status"`
	QueriesIssued       int       `json:"queries_issued"`
	MergedCount         int       `json:"merged_count"`
	FreshCount          int       `json:"fresh_count"`
	SelectedCount       int       `json:"selected_count"`
	SentHistoryAppended int       `json:"sent_history_appended"`
	MessageID           string    `json:"message_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Metro  string `json:"metro,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Store defines the run-index persistence interface.
type Store interface {
	// UpsertRun inserts or refreshes the row for rec's run directory.
	UpsertRun(ctx context.Context, rec *runstate.Record) error
	// GetRun returns the newest run with the given deterministic run id.
	// Re-invocations across rotation cycles share a run id; the run
	// directory is what stays unique.
	GetRun(ctx context.Context, runID string) (*RunSummary, error)
	// ListRuns returns runs newest-first.
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open builds the Store named by cfg.Driver ("sqlite" or "postgres")
// and runs migrations. An empty driver disables indexing; callers get a
// nil Store and must treat it as "no index".
func Open(ctx context.Context, cfg config.IndexConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		st, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown index driver %q", cfg.Driver)
	}
}

// summaryOf flattens a run record into its index row.
func summaryOf(rec *runstate.Record) RunSummary {
	return RunSummary{
		RunID:               rec.RunID,
		Dir:                 string(rec.Dir),
		Metro:               rec.Metro,
		Date:                rec.Date,
		Status:              string(rec.Status),
		QueriesIssued:       rec.QueriesIssued,
		MergedCount:         rec.MergedCount,
		FreshCount:          rec.FreshCount,
		SelectedCount:       rec.SelectedCount,
		SentHistoryAppended: rec.SentHistoryAppended,
		MessageID:           rec.MessageID,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}
