package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/database"
)

// PostgresStore implements contracts.Store on pgx
// ⭐ SSOT: ranking persistence for PostgreSQL lives here only
type PostgresStore struct {
	db   *database.Postgres
	pool *pgxpool.Pool
}

var _ contracts.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool
func NewPostgresStore(db *database.Postgres) *PostgresStore {
	return &PostgresStore{db: db, pool: db.Pool}
}

// Migrate creates missing tables and indexes
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("postgres")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// ListSymbols returns the directory ordered by symbol
func (s *PostgresStore) ListSymbols(ctx context.Context) ([]contracts.Symbol, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, name, sector, market_cap FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []contracts.Symbol
	for rows.Next() {
		var sym contracts.Symbol
		if err := rows.Scan(&sym.Symbol, &sym.Name, &sym.Sector, &sym.MarketCap); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// UpsertSymbols inserts or refreshes directory entries in one batch
func (s *PostgresStore) UpsertSymbols(ctx context.Context, symbols []contracts.Symbol) (int, error) {
	if len(symbols) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sym := range symbols {
		batch.Queue(`
			INSERT INTO symbols (symbol, name, sector, market_cap) VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol) DO UPDATE SET
				name = EXCLUDED.name,
				sector = EXCLUDED.sector,
				market_cap = COALESCE(EXCLUDED.market_cap, symbols.market_cap)`,
			sym.Symbol, sym.Name, sym.Sector, sym.MarketCap)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert symbols: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(symbols), nil
}

func asOfDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GetMetrics returns the cached subset of names for the day
func (s *PostgresStore) GetMetrics(ctx context.Context, symbol string, names []contracts.MetricName, asOf time.Time) (contracts.MetricsBag, error) {
	bag := contracts.MetricsBag{}
	if len(names) == 0 {
		return bag, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT metric_name, metric_value FROM cache_metrics
		WHERE symbol = $1 AND as_of = $2 AND metric_name = ANY($3)`,
		symbol, asOfDate(asOf), metricNames(names))
	if err != nil {
		return nil, fmt.Errorf("failed to query cached metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			value *float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cached metric: %w", err)
		}
		bag[contracts.MetricName(name)] = value
	}
	return bag, rows.Err()
}

// PutMetrics upserts a bag in one batch
func (s *PostgresStore) PutMetrics(ctx context.Context, symbol string, bag contracts.MetricsBag, asOf time.Time) error {
	if len(bag) == 0 {
		return nil
	}
	day := asOfDate(asOf)

	batch := &pgx.Batch{}
	for name, value := range bag {
		batch.Queue(`
			INSERT INTO cache_metrics (symbol, metric_name, metric_value, as_of) VALUES ($1, $2, $3, $4)
			ON CONFLICT (symbol, metric_name, as_of) DO UPDATE SET metric_value = EXCLUDED.metric_value`,
			symbol, string(name), value, day)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to cache metrics for %s: %w", symbol, err)
	}
	return nil
}

// CreateRun inserts a queued run
func (s *PostgresStore) CreateRun(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO runs (formula_mode, status, progress, message) VALUES ($1, $2, 0, $3)
		RETURNING id`, string(mode), string(contracts.StatusQueued), contracts.MessageQueued).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun loads one run
func (s *PostgresStore) GetRun(ctx context.Context, id int64) (*contracts.Run, error) {
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
}

// LatestRun returns the most recently created run
func (s *PostgresStore) LatestRun(ctx context.Context) (*contracts.Run, error) {
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT 1`)
}

// LatestCompletedRun returns the newest completed run, optionally restricted to a mode
func (s *PostgresStore) LatestCompletedRun(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs
		WHERE status = 'completed' AND ($1 = '' OR formula_mode = $1)
		ORDER BY started_at DESC, id DESC LIMIT 1`, string(mode))
}

func (s *PostgresStore) queryRun(ctx context.Context, query string, args ...interface{}) (*contracts.Run, error) {
	var (
		run    contracts.Run
		mode   string
		status string
	)

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&run.ID, &mode, &status, &run.Progress, &run.Message, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.FormulaMode = contracts.FormulaMode(mode)
	run.Status = contracts.RunStatus(status)
	return &run, nil
}

// StartRun moves a queued or interrupted run to running
func (s *PostgresStore) StartRun(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = 'running', progress = 0, message = $1, finished_at = NULL
		WHERE id = $2 AND status IN ('queued', 'running')`, contracts.MessageRunning, id)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, s.pool, id)
	}
	return nil
}

// UpdateProgress raises progress; stale or lower values are ignored
func (s *PostgresStore) UpdateProgress(ctx context.Context, id int64, progress int, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE runs SET progress = $1, message = $2
		WHERE id = $3 AND status = 'running' AND progress <= $1`, progress, message, id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// CompleteRun replaces the run's rows and marks it completed atomically
func (s *PostgresStore) CompleteRun(ctx context.Context, id int64, results []contracts.ScoreResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs SET status = 'completed', progress = 100, message = $1, finished_at = NOW()
		WHERE id = $2 AND status = 'running'`, contracts.MessageDone, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, tx, id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rankings WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete old results: %w", err)
	}

	rows := make([][]interface{}, len(results))
	for i, r := range results {
		rows[i] = []interface{}{id, r.Symbol, r.Name, r.Sector, r.MarketCap,
			r.ScoreBuffett, r.ScoreCramer, r.CombinedRank, r.Completeness, r.LastUpdated}
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"rankings"},
		[]string{"run_id", "symbol", "name", "sector", "market_cap", "score_buffett", "score_cramer",
			"combined_rank", "completeness", "last_updated"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FailRun marks the run failed (keeping its progress) and purges its rows
func (s *PostgresStore) FailRun(ctx context.Context, id int64, message string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs SET status = 'failed', message = $1, finished_at = NOW()
		WHERE id = $2 AND status IN ('queued', 'running')`, message, id)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, tx, id)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rankings WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("failed to purge results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgRowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) transitionError(ctx context.Context, q pgRowQuerier, id int64) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read run status: %w", err)
	}
	if contracts.RunStatus(status).IsTerminal() {
		return fmt.Errorf("%w: run %d is %s", contracts.ErrRunTerminal, id, status)
	}
	return fmt.Errorf("%w: run %d is %s", contracts.ErrInvalidTransition, id, status)
}

// QueryResults returns one filtered page and the filtered total
func (s *PostgresStore) QueryResults(ctx context.Context, runID int64, q contracts.ResultQuery) ([]contracts.ScoreResult, int, error) {
	q = q.Normalized()

	countSQL, countArgs := countQuery(dollarNumber, runID, q)
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	pageSQL, pageArgs := pageQuery(dollarNumber, runID, q)
	rows, err := s.pool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	items := []contracts.ScoreResult{}
	for rows.Next() {
		var r contracts.ScoreResult
		if err := rows.Scan(&r.RunID, &r.Symbol, &r.Name, &r.Sector, &r.MarketCap,
			&r.ScoreBuffett, &r.ScoreCramer, &r.CombinedRank, &r.Completeness, &r.LastUpdated); err != nil {
			return nil, 0, fmt.Errorf("failed to scan result: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate results: %w", err)
	}

	return items, total, nil
}
