package httputil

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between outbound calls shared by every caller.
// Burst is 1, so there is no saved-up capacity: N waits take at least (N-1)*interval.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewPacer creates a pacer admitting perSecond calls per second
func NewPacer(perSecond float64) *Pacer {
	if perSecond < 0.1 {
		perSecond = 0.1
	}
	interval := time.Duration(float64(time.Second) / perSecond)
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until one more call may be issued or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Interval returns the minimum gap between calls
func (p *Pacer) Interval() time.Duration {
	return p.interval
}
