package jobs

import (
	"context"

	"github.com/wonny/sp-ranking/pkg/logger"
)

// Seeder refreshes the symbol directory
type Seeder interface {
	Seed(ctx context.Context) (int, error)
}

// SymbolsRefreshJob re-seeds the symbol directory
type SymbolsRefreshJob struct {
	seeder   Seeder
	schedule string
	logger   *logger.Logger
}

// NewSymbolsRefreshJob creates the directory refresh job
func NewSymbolsRefreshJob(seeder Seeder, schedule string, log *logger.Logger) *SymbolsRefreshJob {
	return &SymbolsRefreshJob{seeder: seeder, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *SymbolsRefreshJob) Name() string {
	return "symbols_refresh"
}

// Schedule returns the cron schedule (weekly by default)
func (j *SymbolsRefreshJob) Schedule() string {
	return j.schedule
}

// Run re-seeds the directory
func (j *SymbolsRefreshJob) Run(ctx context.Context) error {
	n, err := j.seeder.Seed(ctx)
	if err != nil {
		return err
	}

	j.logger.WithField("symbols", n).Debug("Symbol directory refreshed")
	return nil
}
