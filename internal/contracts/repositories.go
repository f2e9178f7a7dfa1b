package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: repository interfaces are only defined here

// SymbolDirectory reads the symbol universe, ordered by symbol
type SymbolDirectory interface {
	ListSymbols(ctx context.Context) ([]Symbol, error)
}

// SymbolWriter is the administrative write path used by seeding (never by the pipeline)
type SymbolWriter interface {
	UpsertSymbols(ctx context.Context, symbols []Symbol) (int, error)
}

// MetricsCache stores provider metrics keyed by (symbol, metric, as-of date)
type MetricsCache interface {
	// GetMetrics returns whichever of names are cached for the day
	GetMetrics(ctx context.Context, symbol string, names []MetricName, asOf time.Time) (MetricsBag, error)
	// PutMetrics upserts a whole bag in one write (nil values store an explicit absence)
	PutMetrics(ctx context.Context, symbol string, bag MetricsBag, asOf time.Time) error
}

// RunRepository persists runs and their result rows.
// Transition methods are conditional on the current status so concurrent writers cannot
// move a run out of a terminal state.
type RunRepository interface {
	CreateRun(ctx context.Context, mode FormulaMode) (*Run, error)
	GetRun(ctx context.Context, id int64) (*Run, error)
	// LatestRun returns the most recently created run
	LatestRun(ctx context.Context) (*Run, error)
	// LatestCompletedRun returns the newest completed run by start time then id; empty mode means any
	LatestCompletedRun(ctx context.Context, mode FormulaMode) (*Run, error)

	// StartRun moves queued/running → running with progress 0
	StartRun(ctx context.Context, id int64) error
	// UpdateProgress raises progress while running; lower values are ignored
	UpdateProgress(ctx context.Context, id int64, progress int, message string) error
	// CompleteRun replaces the run's rows and marks it completed in one transaction
	CompleteRun(ctx context.Context, id int64, results []ScoreResult) error
	// FailRun marks the run failed and purges any rows it owns
	FailRun(ctx context.Context, id int64, message string) error

	QueryResults(ctx context.Context, runID int64, q ResultQuery) ([]ScoreResult, int, error)
}

// Store is the full persistence surface
type Store interface {
	SymbolDirectory
	SymbolWriter
	MetricsCache
	RunRepository

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
