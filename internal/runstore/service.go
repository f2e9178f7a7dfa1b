package runstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// Service is the read side of runs and their results
// ⭐ SSOT: "latest run" resolution lives here only
type Service struct {
	runs   contracts.RunRepository
	logger *logger.Logger
}

// New creates a run service
func New(runs contracts.RunRepository, log *logger.Logger) *Service {
	return &Service{
		runs:   runs,
		logger: log.WithModule("runstore"),
	}
}

// Status returns the given run, or the most recently created one when runID is nil.
// contracts.ErrRunNotFound means there is nothing to report.
func (s *Service) Status(ctx context.Context, runID *int64) (*contracts.Run, error) {
	if runID == nil {
		return s.runs.LatestRun(ctx)
	}
	return s.runs.GetRun(ctx, *runID)
}

// ResolveLatest picks the newest completed run of mode, falling back to any mode
func (s *Service) ResolveLatest(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	if mode != "" {
		run, err := s.runs.LatestCompletedRun(ctx, mode)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, contracts.ErrRunNotFound) {
			return nil, err
		}
		s.logger.WithField("formula_mode", mode).Debug("No completed run for mode, falling back to any mode")
	}
	return s.runs.LatestCompletedRun(ctx, "")
}

// LatestResults pages the latest completed run's results.
// With no completed run at all the page is empty and RunID is nil.
func (s *Service) LatestResults(ctx context.Context, q contracts.ResultQuery) (*contracts.ResultPage, error) {
	run, err := s.ResolveLatest(ctx, q.FormulaMode)
	if errors.Is(err, contracts.ErrRunNotFound) {
		return &contracts.ResultPage{Items: []contracts.ScoreResult{}, Total: 0}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest run: %w", err)
	}
	return s.RunResults(ctx, run.ID, q)
}

// RunResults pages one run's results
func (s *Service) RunResults(ctx context.Context, runID int64, q contracts.ResultQuery) (*contracts.ResultPage, error) {
	items, total, err := s.runs.QueryResults(ctx, runID, q.Normalized())
	if err != nil {
		return nil, err
	}

	id := runID
	return &contracts.ResultPage{Items: items, Total: total, RunID: &id}, nil
}

// ExportRun resolves the run to export: the given completed run, or the latest completed one
func (s *Service) ExportRun(ctx context.Context, runID *int64) (*contracts.Run, error) {
	if runID == nil {
		run, err := s.ResolveLatest(ctx, "")
		if errors.Is(err, contracts.ErrRunNotFound) {
			return nil, contracts.ErrNoCompletedRun
		}
		return run, err
	}

	run, err := s.runs.GetRun(ctx, *runID)
	if err != nil {
		return nil, err
	}
	if run.Status != contracts.StatusCompleted {
		return nil, fmt.Errorf("%w: run %d is %s", contracts.ErrNoCompletedRun, run.ID, run.Status)
	}
	return run, nil
}
