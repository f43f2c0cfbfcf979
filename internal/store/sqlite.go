package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/runstate"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	dir                   TEXT PRIMARY KEY,
	run_id                TEXT NOT NULL,
	metro                 TEXT NOT NULL,
	date                  TEXT NOT NULL,
	status                TEXT NOT NULL,
	queries_issued        INTEGER NOT NULL DEFAULT 0,
	merged_count          INTEGER NOT NULL DEFAULT 0,
	fresh_count           INTEGER NOT NULL DEFAULT 0,
	selected_count        INTEGER NOT NULL DEFAULT 0,
	sent_history_appended INTEGER NOT NULL DEFAULT 0,
	message_id            TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_metro ON runs(metro);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertRun(ctx context.Context, rec *runstate.Record) error {
	row := summaryOf(rec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (dir, run_id, metro, date, status, queries_issued,
			merged_count, fresh_count, selected_count, sent_history_appended,
			message_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dir) DO UPDATE SET
			status = excluded.status,
			queries_issued = excluded.queries_issued,
			merged_count = excluded.merged_count,
			fresh_count = excluded.fresh_count,
			selected_count = excluded.selected_count,
			sent_history_appended = excluded.sent_history_appended,
			message_id = excluded.message_id,
			updated_at = excluded.updated_at`,
		row.Dir, row.RunID, row.Metro, row.Date, row.Status, row.QueriesIssued,
		row.MergedCount, row.FreshCount, row.SelectedCount, row.SentHistoryAppended,
		row.MessageID, row.CreatedAt.UTC(), row.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert run %s", row.Dir)
}

const sqliteSelectRun = `SELECT dir, run_id, metro, date, status, queries_issued,
	merged_count, fresh_count, selected_count, sent_history_appended,
	message_id, created_at, updated_at FROM runs`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		sqliteSelectRun+` WHERE run_id = ? ORDER BY created_at DESC LIMIT 1`, runID)

	sum, err := scanSummary(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return sum, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := sqliteSelectRun + ` WHERE 1=1`
	var args []any

	if filter.Metro != "" {
		query += ` AND metro = ?`
		args = append(args, filter.Metro)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSummary(row scannable) (*RunSummary, error) {
	var (
		sum                  RunSummary
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&sum.Dir, &sum.RunID, &sum.Metro, &sum.Date, &sum.Status,
		&sum.QueriesIssued, &sum.MergedCount, &sum.FreshCount, &sum.SelectedCount,
		&sum.SentHistoryAppended, &sum.MessageID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sum.CreatedAt = createdAt.UTC()
	sum.UpdatedAt = updatedAt.UTC()
	return &sum, nil
}
