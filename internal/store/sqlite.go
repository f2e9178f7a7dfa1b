package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/database"
)

const (
	sqliteTimeLayout = "2006-01-02 15:04:05.000000"
	dateLayout       = "2006-01-02"
)

// SQLiteStore implements contracts.Store on modernc.org/sqlite
type SQLiteStore struct {
	db  *database.SQLite
	now func() time.Time
}

var _ contracts.Store = (*SQLiteStore)(nil)

// NewSQLiteStore wraps an open SQLite handle
func NewSQLiteStore(db *database.SQLite) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Migrate creates missing tables and indexes
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	stmts, err := schemaStatements("sqlite")
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }

// ---------------------------------------------------------------- symbols

// ListSymbols returns the directory ordered by symbol
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]contracts.Symbol, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT symbol, name, sector, market_cap FROM symbols ORDER BY symbol`)
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

// UpsertSymbols inserts or refreshes directory entries; an existing market cap is kept
// when the incoming one is unknown.
func (s *SQLiteStore) UpsertSymbols(ctx context.Context, symbols []contracts.Symbol) (int, error) {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (symbol, name, sector, market_cap) VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			market_cap = COALESCE(excluded.market_cap, symbols.market_cap)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare symbol upsert: %w", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx, sym.Symbol, sym.Name, sym.Sector, sym.MarketCap); err != nil {
			return 0, fmt.Errorf("failed to upsert symbol %s: %w", sym.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(symbols), nil
}

// ---------------------------------------------------------------- metrics cache

// GetMetrics returns the cached subset of names for the day
func (s *SQLiteStore) GetMetrics(ctx context.Context, symbol string, names []contracts.MetricName, asOf time.Time) (contracts.MetricsBag, error) {
	bag := contracts.MetricsBag{}
	if len(names) == 0 {
		return bag, nil
	}

	args := []interface{}{symbol, asOf.Format(dateLayout)}
	marks := make([]string, len(names))
	for i, n := range metricNames(names) {
		marks[i] = "?"
		args = append(args, n)
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT metric_name, metric_value FROM cache_metrics
		WHERE symbol = ? AND as_of = ? AND metric_name IN (`+strings.Join(marks, ", ")+`)`, args...)
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

// PutMetrics upserts a bag in one transaction
func (s *SQLiteStore) PutMetrics(ctx context.Context, symbol string, bag contracts.MetricsBag, asOf time.Time) error {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	day := asOf.Format(dateLayout)
	for name, value := range bag {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cache_metrics (symbol, metric_name, metric_value, as_of) VALUES (?, ?, ?, ?)
			ON CONFLICT (symbol, metric_name, as_of) DO UPDATE SET metric_value = excluded.metric_value`,
			symbol, string(name), value, day)
		if err != nil {
			return fmt.Errorf("failed to cache metric %s for %s: %w", name, symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------- runs

// CreateRun inserts a queued run
func (s *SQLiteStore) CreateRun(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	now := s.now()

	res, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO runs (formula_mode, status, progress, message, started_at) VALUES (?, ?, 0, ?, ?)`,
		string(mode), string(contracts.StatusQueued), contracts.MessageQueued, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}
	return s.GetRun(ctx, id)
}

// GetRun loads one run
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*contracts.Run, error) {
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
}

// LatestRun returns the most recently created run
func (s *SQLiteStore) LatestRun(ctx context.Context) (*contracts.Run, error) {
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT 1`)
}

// LatestCompletedRun returns the newest completed run, optionally restricted to a mode
func (s *SQLiteStore) LatestCompletedRun(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	if mode == "" {
		return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs
			WHERE status = 'completed' ORDER BY started_at DESC, id DESC LIMIT 1`)
	}
	return s.queryRun(ctx, `SELECT `+runColumns+` FROM runs
		WHERE status = 'completed' AND formula_mode = ? ORDER BY started_at DESC, id DESC LIMIT 1`, string(mode))
}

func (s *SQLiteStore) queryRun(ctx context.Context, query string, args ...interface{}) (*contracts.Run, error) {
	var (
		run      contracts.Run
		mode     string
		status   string
		started  string
		finished sql.NullString
	)

	err := s.db.DB.QueryRowContext(ctx, query, args...).Scan(
		&run.ID, &mode, &status, &run.Progress, &run.Message, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.FormulaMode = contracts.FormulaMode(mode)
	run.Status = contracts.RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// StartRun moves a queued or interrupted run to running
func (s *SQLiteStore) StartRun(ctx context.Context, id int64) error {
	res, err := s.db.DB.ExecContext(ctx, `
		UPDATE runs SET status = 'running', progress = 0, message = ?, finished_at = NULL
		WHERE id = ? AND status IN ('queued', 'running')`, contracts.MessageRunning, id)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// UpdateProgress raises progress; stale or lower values are ignored
func (s *SQLiteStore) UpdateProgress(ctx context.Context, id int64, progress int, message string) error {
	_, err := s.db.DB.ExecContext(ctx, `
		UPDATE runs SET progress = ?, message = ?
		WHERE id = ? AND status = 'running' AND progress <= ?`, progress, message, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// CompleteRun replaces the run's rows and marks it completed atomically
func (s *SQLiteStore) CompleteRun(ctx context.Context, id int64, results []contracts.ScoreResult) error {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = 'completed', progress = 100, message = ?, finished_at = ?
		WHERE id = ? AND status = 'running'`, contracts.MessageDone, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(ctx, tx, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rankings WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete old results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rankings (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		_, err := stmt.ExecContext(ctx, id, r.Symbol, r.Name, r.Sector, r.MarketCap,
			r.ScoreBuffett, r.ScoreCramer, r.CombinedRank, r.Completeness, formatTime(r.LastUpdated))
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FailRun marks the run failed (keeping its progress) and purges its rows
func (s *SQLiteStore) FailRun(ctx context.Context, id int64, message string) error {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = 'failed', message = ?, finished_at = ?
		WHERE id = ? AND status IN ('queued', 'running')`, message, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.transitionError(ctx, tx, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rankings WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge results: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.transitionError(ctx, s.db.DB, id)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// transitionError explains why a conditional update touched nothing
func (s *SQLiteStore) transitionError(ctx context.Context, q rowQuerier, id int64) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
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

// ---------------------------------------------------------------- results

// QueryResults returns one filtered page and the filtered total
func (s *SQLiteStore) QueryResults(ctx context.Context, runID int64, q contracts.ResultQuery) ([]contracts.ScoreResult, int, error) {
	q = q.Normalized()

	countSQL, countArgs := countQuery(questionMark, runID, q)
	var total int
	if err := s.db.DB.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	pageSQL, pageArgs := pageQuery(questionMark, runID, q)
	rows, err := s.db.DB.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	items := []contracts.ScoreResult{}
	for rows.Next() {
		var (
			r       contracts.ScoreResult
			updated string
		)
		if err := rows.Scan(&r.RunID, &r.Symbol, &r.Name, &r.Sector, &r.MarketCap,
			&r.ScoreBuffett, &r.ScoreCramer, &r.CombinedRank, &r.Completeness, &updated); err != nil {
			return nil, 0, fmt.Errorf("failed to scan result: %w", err)
		}
		if r.LastUpdated, err = parseTime(updated); err != nil {
			return nil, 0, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate results: %w", err)
	}

	return items, total, nil
}
