package runstore

import (
	"context"
	"time"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// Watch polls a run and emits it whenever status, progress or message change.
// The channel closes after a terminal state, on ctx cancellation, or on a read error.
func (s *Service) Watch(ctx context.Context, runID int64, interval time.Duration) <-chan contracts.Run {
	if interval <= 0 {
		interval = time.Second
	}

	out := make(chan contracts.Run, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *contracts.Run
		for {
			run, err := s.runs.GetRun(ctx, runID)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.WithError(err).WithField("run_id", runID).Warn("Stopped watching run")
				}
				return
			}

			if last == nil || changed(*last, *run) {
				select {
				case out <- *run:
				case <-ctx.Done():
					return
				}
				last = run
			}

			if run.Status.IsTerminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

func changed(a, b contracts.Run) bool {
	return a.Status != b.Status || a.Progress != b.Progress || a.Message != b.Message
}
