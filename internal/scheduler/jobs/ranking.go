package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// Executor runs one ranking run to completion
type Executor interface {
	Execute(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error)
}

// RankingJob refreshes the rankings on a schedule
type RankingJob struct {
	executor Executor
	mode     contracts.FormulaMode
	schedule string
	logger   *logger.Logger
}

// NewRankingJob creates the scheduled ranking job
func NewRankingJob(executor Executor, mode contracts.FormulaMode, schedule string, log *logger.Logger) *RankingJob {
	return &RankingJob{
		executor: executor,
		mode:     mode,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *RankingJob) Name() string {
	return "ranking_" + string(j.mode)
}

// Schedule returns the cron schedule
func (j *RankingJob) Schedule() string {
	return j.schedule
}

// Run executes one ranking run and fails the job when the run fails
func (j *RankingJob) Run(ctx context.Context) error {
	run, err := j.executor.Execute(ctx, j.mode)
	if err != nil {
		if run != nil {
			return fmt.Errorf("run %d failed: %w", run.ID, err)
		}
		return err
	}

	j.logger.WithRun(run.ID, string(run.FormulaMode)).Info("Scheduled ranking run completed")
	return nil
}
