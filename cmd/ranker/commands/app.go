package commands

import (
	"context"
	"fmt"

	"github.com/wonny/sp-ranking/internal/batch"
	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/internal/export"
	"github.com/wonny/sp-ranking/internal/external/finnhub"
	"github.com/wonny/sp-ranking/internal/metricscache"
	"github.com/wonny/sp-ranking/internal/pipeline"
	"github.com/wonny/sp-ranking/internal/ranking"
	"github.com/wonny/sp-ranking/internal/runstore"
	"github.com/wonny/sp-ranking/internal/scheduler"
	"github.com/wonny/sp-ranking/internal/scheduler/jobs"
	"github.com/wonny/sp-ranking/internal/scoring"
	"github.com/wonny/sp-ranking/internal/store"
	"github.com/wonny/sp-ranking/internal/symbols"
	"github.com/wonny/sp-ranking/pkg/config"
	"github.com/wonny/sp-ranking/pkg/httputil"
	"github.com/wonny/sp-ranking/pkg/logger"
	"github.com/wonny/sp-ranking/pkg/redis"
)

// app holds the wired process dependencies
// ⭐ SSOT: component wiring happens here only
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    contracts.Store
	redis    *redis.Client
	pipeline *pipeline.Pipeline
	runs     *runstore.Service
	exporter *export.Exporter
	seeder   *symbols.Seeder
}

// loadConfig loads configuration and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp connects storage and builds every component.
// One pacer is shared by all provider calls in the process.
func newApp(ctx context.Context) (*app, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Connect to database
	st, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// 4. Redis hot layer (optional)
	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, metrics cache runs without hot layer")
		rc = redis.NewFromRedis(nil)
	}
	cache := metricscache.New(st, redis.NewCache(rc, "ranker"), cfg.Pipeline.CacheTTL, log)

	// 5. Provider client
	pacer := httputil.NewPacer(cfg.Finnhub.RatePerSecond)
	provider := finnhub.NewClient(cfg.Finnhub, cache, pacer, log)

	// 6. Pipeline
	pipe := pipeline.New(st, provider,
		scoring.NewEngine(),
		ranking.NewAggregator(log),
		batch.New(cfg.Pipeline.BatchSize, cfg.Pipeline.MaxConcurrency, log),
		log)

	// 7. Read side, export and seeding
	seedHTTP := httputil.New(log.WithModule("symbols"), cfg.Finnhub.Timeout)

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		redis:    rc,
		pipeline: pipe,
		runs:     runstore.New(st, log),
		exporter: export.New(st, cfg.ExportMaxRows, log),
		seeder:   symbols.NewSeeder(seedHTTP, st, cfg.SymbolsSourceURL, log),
	}, nil
}

// newScheduler registers the scheduled jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	mode, err := contracts.ParseFormulaMode(a.cfg.Scheduler.FormulaMode)
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(a.log).WithRetry(a.cfg.Scheduler.MaxRetries, a.cfg.Scheduler.RetryDelay)

	if err := sched.AddJob(jobs.NewRankingJob(a.pipeline, mode, a.cfg.Scheduler.Schedule, a.log)); err != nil {
		return nil, err
	}
	if a.cfg.Scheduler.SymbolsSchedule != "" {
		if err := sched.AddJob(jobs.NewSymbolsRefreshJob(a.seeder, a.cfg.Scheduler.SymbolsSchedule, a.log)); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

// close waits for in-flight runs, then releases connections
func (a *app) close(ctx context.Context) {
	if err := a.pipeline.Drain(ctx); err != nil {
		a.log.WithError(err).Warn("Pipeline shutdown timed out")
	}
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close store")
	}
}
