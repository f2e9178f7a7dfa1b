package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/sp-ranking/internal/batch"
	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/internal/external/finnhub"
	"github.com/wonny/sp-ranking/internal/ranking"
	"github.com/wonny/sp-ranking/internal/scoring"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// interruptGrace bounds how long cancelled runs get to record their failure
const interruptGrace = 5 * time.Second

// Store is what a pipeline run reads and writes
type Store interface {
	contracts.SymbolDirectory
	contracts.RunRepository
}

// Fetcher fetches metrics for a batch of symbols, sequentially, reporting each one
type Fetcher interface {
	FetchBatch(ctx context.Context, symbols []string, onDone func(finnhub.Result)) []finnhub.Result
}

// Pipeline turns the symbol universe into a stored, ranked result set
// ⭐ SSOT: run orchestration lives here only
type Pipeline struct {
	store      Store
	fetcher    Fetcher
	engine     *scoring.Engine
	aggregator *ranking.Aggregator
	dispatcher *batch.Dispatcher
	logger     *logger.Logger
	now        func() time.Time

	// background runs
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a pipeline. Background runs started by Trigger live until Shutdown.
func New(store Store, fetcher Fetcher, engine *scoring.Engine, aggregator *ranking.Aggregator, dispatcher *batch.Dispatcher, log *logger.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:      store,
		fetcher:    fetcher,
		engine:     engine,
		aggregator: aggregator,
		dispatcher: dispatcher,
		logger:     log.WithModule("pipeline"),
		now:        time.Now,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Trigger creates a run and executes it in the background.
// It returns as soon as the run row exists; the outcome is only observable through the run.
func (p *Pipeline) Trigger(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidFormulaMode, mode)
	}

	run, err := p.store.CreateRun(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// failures are recorded on the run row
		_ = p.Run(p.baseCtx, run.ID, mode)
	}()

	return run, nil
}

// Execute creates a run and drives it to a terminal state in the caller's goroutine.
// The final run is returned together with the run error, if any.
func (p *Pipeline) Execute(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidFormulaMode, mode)
	}

	run, err := p.store.CreateRun(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runErr := p.Run(ctx, run.ID, mode)

	final, err := p.store.GetRun(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload run %d: %w", run.ID, err)
	}
	return final, runErr
}

// Wait blocks until every background run has finished
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Shutdown cancels background runs and waits for them, up to ctx
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.cancel()
	return p.waitUntil(ctx)
}

// Drain lets background runs finish until ctx expires, then cancels them.
// Cancelled runs get interruptGrace to record their failure.
func (p *Pipeline) Drain(ctx context.Context) error {
	if err := p.waitUntil(ctx); err == nil {
		return nil
	}

	p.logger.Warn("Background runs still in flight, cancelling")
	grace, cancel := context.WithTimeout(context.WithoutCancel(ctx), interruptGrace)
	defer cancel()
	return p.Shutdown(grace)
}

func (p *Pipeline) waitUntil(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

// Run executes one run to a terminal state.
// The returned error is informational; it has already been recorded on the run
// unless the run was already terminal or does not exist.
func (p *Pipeline) Run(ctx context.Context, runID int64, mode contracts.FormulaMode) (err error) {
	log := p.logger.WithRun(runID, string(mode))
	start := time.Now()

	// terminal writes must land even when ctx is cancelled mid-run
	finalCtx := context.WithoutCancel(ctx)

	if err := p.store.StartRun(ctx, runID); err != nil {
		log.WithError(err).Warn("Run could not be started")
		// a terminal or missing run is left as it is; anything else must not stay queued
		if !errors.Is(err, contracts.ErrRunTerminal) && !errors.Is(err, contracts.ErrRunNotFound) {
			if ferr := p.store.FailRun(finalCtx, runID, contracts.FailureMessage(err)); ferr != nil {
				log.WithError(ferr).Error("Failed to record run failure")
			}
		}
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err == nil {
			log.WithField("duration", time.Since(start).String()).Info("Run completed")
			return
		}

		message := contracts.FailureMessage(err)
		if errors.Is(err, contracts.ErrEmptyUniverse) {
			message = contracts.MessageNoSymbols
		}
		if ferr := p.store.FailRun(finalCtx, runID, message); ferr != nil {
			log.WithError(ferr).Error("Failed to record run failure")
		}
		log.WithError(err).Error("Run failed")
	}()

	symbols, err := p.store.ListSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to load symbols: %w", err)
	}
	if len(symbols) == 0 {
		return contracts.ErrEmptyUniverse
	}

	log.WithField("symbols", len(symbols)).Info("Run started")

	metrics, err := p.fetchAll(ctx, runID, symbols, log)
	if err != nil {
		return err
	}

	results := p.score(runID, symbols, metrics, mode)

	if err := p.store.CompleteRun(finalCtx, runID, results); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	return nil
}

// fetchAll dispatches the universe in batches and collects whatever succeeded
func (p *Pipeline) fetchAll(ctx context.Context, runID int64, symbols []contracts.Symbol, log *logger.Logger) (map[string]contracts.MetricsBag, error) {
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.Symbol
	}

	progress := newProgress(len(names), func(pct int, message string) {
		if err := p.store.UpdateProgress(ctx, runID, pct, message); err != nil {
			log.WithError(err).Warn("Failed to update progress")
		}
	})

	results, report := batch.Run(ctx, p.dispatcher, names, func(ctx context.Context, group []string) ([]finnhub.Result, error) {
		return p.fetcher.FetchBatch(ctx, group, func(finnhub.Result) { progress.done() }), nil
	})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted: %w", err)
	}

	metrics := make(map[string]contracts.MetricsBag, len(results))
	missing := 0
	for _, r := range results {
		if finnhub.IsConfigurationError(r.Err) {
			return nil, r.Err
		}
		if !r.OK() {
			missing++
			continue
		}
		metrics[r.Symbol] = r.Metrics
	}

	log.WithFields(map[string]interface{}{
		"fetched":        len(metrics),
		"missing":        missing,
		"failed_batches": report.Failed,
	}).Info("Metrics fetched")

	return metrics, nil
}

// score rates every symbol, with or without metrics, and attaches ranks
func (p *Pipeline) score(runID int64, symbols []contracts.Symbol, metrics map[string]contracts.MetricsBag, mode contracts.FormulaMode) []contracts.ScoreResult {
	now := p.now().UTC()

	results := make([]contracts.ScoreResult, len(symbols))
	entries := make([]ranking.Entry, len(symbols))

	for i, sym := range symbols {
		bag := metrics[sym.Symbol]
		if bag == nil {
			bag = contracts.MetricsBag{}
		}
		s := p.engine.Score(bag, mode)

		results[i] = contracts.ScoreResult{
			RunID:        runID,
			Symbol:       sym.Symbol,
			Name:         sym.Name,
			Sector:       sym.Sector,
			MarketCap:    sym.MarketCap,
			ScoreBuffett: s.Buffett,
			ScoreCramer:  s.Cramer,
			Completeness: s.Completeness,
			LastUpdated:  now,
		}
		entries[i] = ranking.Entry{Symbol: sym.Symbol, Buffett: s.Buffett, Cramer: s.Cramer}
	}

	for i, r := range p.aggregator.Aggregate(entries, mode) {
		results[i].CombinedRank = r.CombinedRank
	}
	return results
}

// progress reports at every tenth of the universe
type progress struct {
	total     int
	step      int64
	processed atomic.Int64
	report    func(pct int, message string)
}

func newProgress(total int, report func(pct int, message string)) *progress {
	step := int64(total / 10)
	if step < 1 {
		step = 1
	}
	return &progress{total: total, step: step, report: report}
}

func (p *progress) done() {
	n := p.processed.Add(1)
	if n%p.step != 0 {
		return
	}
	p.report(int(n*100/int64(p.total)), contracts.ProgressMessage(int(n), p.total))
}
