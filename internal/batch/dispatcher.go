package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/sp-ranking/pkg/logger"
)

// Handler processes one batch. An error (or panic) drops that batch's results only.
type Handler[T, R any] func(ctx context.Context, batch []T) ([]R, error)

// Dispatcher fans batches out under a global concurrency ceiling
type Dispatcher struct {
	batchSize      int
	maxConcurrency int
	logger         *logger.Logger
}

// Report summarizes one dispatch
type Report struct {
	Batches int
	Failed  int
	Results int
}

// New creates a dispatcher; sizes below 1 are raised to 1
func New(batchSize, maxConcurrency int, log *logger.Logger) *Dispatcher {
	if batchSize < 1 {
		batchSize = 1
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Dispatcher{
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
		logger:         log.WithModule("batch"),
	}
}

// Partition splits items into consecutive groups of size; the last may be shorter
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}

// Run dispatches items through handler and flattens what succeeded.
// Within a batch, results keep handler order; callers must not rely on order across batches.
func Run[T, R any](ctx context.Context, d *Dispatcher, items []T, handler Handler[T, R]) ([]R, Report) {
	groups := Partition(items, d.batchSize)
	report := Report{Batches: len(groups)}

	var (
		mu      sync.Mutex
		results []R
	)

	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			out, err := safeCall(ctx, handler, group)
			if err == nil && ctx.Err() != nil {
				err = ctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Failed++
				d.logger.WithFields(map[string]interface{}{
					"batch": i,
					"size":  len(group),
					"error": err.Error(),
				}).Warn("Batch failed, results dropped")
				return nil
			}

			results = append(results, out...)
			return nil
		})
	}

	// Goroutines never return errors; failures are accounted in the report
	_ = g.Wait()

	report.Results = len(results)
	d.logger.WithFields(map[string]interface{}{
		"items":   len(items),
		"batches": report.Batches,
		"failed":  report.Failed,
		"results": report.Results,
	}).Info("Batch dispatch finished")

	return results, report
}

func safeCall[T, R any](ctx context.Context, handler Handler[T, R], group []T) (out []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("batch handler panic: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return handler(ctx, group)
}
