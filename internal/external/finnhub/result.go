package finnhub

import (
	"context"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// Result is the tagged outcome of fetching one symbol.
// Err set means no data; the caller decides whether that matters.
type Result struct {
	Symbol  string
	Metrics contracts.MetricsBag
	Err     error
}

// OK reports whether metrics were obtained
func (r Result) OK() bool {
	return r.Err == nil
}

// Fetch never fails; errors travel inside the Result
func (c *Client) Fetch(ctx context.Context, symbol string) Result {
	bag, err := c.FetchMetrics(ctx, symbol)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Metrics unavailable")
		return Result{Symbol: symbol, Err: err}
	}
	return Result{Symbol: symbol, Metrics: bag}
}

// FetchBatch fetches symbols one after another, in input order.
// onDone runs after each symbol (progress reporting); it may be nil.
// A cancelled context or a configuration error stops the batch early.
func (c *Client) FetchBatch(ctx context.Context, symbols []string, onDone func(Result)) []Result {
	out := make([]Result, 0, len(symbols))
	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}

		r := c.Fetch(ctx, sym)
		out = append(out, r)
		if onDone != nil {
			onDone(r)
		}

		if IsConfigurationError(r.Err) {
			break
		}
	}
	return out
}
