package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/runstate"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

const (
	pgUpsertRun = `INSERT INTO runs (dir, run_id, metro, date, status, queries_issued,
		merged_count, fresh_count, selected_count, sent_history_appended,
		message_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (dir) DO UPDATE SET
		status = EXCLUDED.status,
		queries_issued = EXCLUDED.queries_issued,
		merged_count = EXCLUDED.merged_count,
		fresh_count = EXCLUDED.fresh_count,
		selected_count = EXCLUDED.selected_count,
		sent_history_appended = EXCLUDED.sent_history_appended,
		message_id = EXCLUDED.message_id,
		updated_at = EXCLUDED.updated_at`

	pgSelectRun = `SELECT dir, run_id, metro, date, status, queries_issued,
		merged_count, fresh_count, selected_count, sent_history_appended,
		message_id, created_at, updated_at FROM runs`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"upsert_run": pgUpsertRun,
	"get_run":    pgSelectRun + ` WHERE run_id = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 5
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
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
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_metro ON runs(metro);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertRun(ctx context.Context, rec *runstate.Record) error {
	row := summaryOf(rec)
	_, err := s.pool.Exec(ctx, pgUpsertRun,
		row.Dir, row.RunID, row.Metro, row.Date, row.Status, row.QueriesIssued,
		row.MergedCount, row.FreshCount, row.SelectedCount, row.SentHistoryAppended,
		row.MessageID, row.CreatedAt.UTC(), row.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert run %s", row.Dir)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.pool.QueryRow(ctx,
		pgSelectRun+` WHERE run_id = $1 ORDER BY created_at DESC LIMIT 1`, runID)

	sum, err := scanSummary(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return sum, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := pgSelectRun + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Metro != "" {
		query += fmt.Sprintf(` AND metro = $%d`, argIdx)
		args = append(args, filter.Metro)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, *sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
