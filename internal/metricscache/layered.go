package metricscache

import (
	"context"
	"time"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
	"github.com/wonny/sp-ranking/pkg/redis"
)

const dateLayout = "2006-01-02"

// HotCache is the optional fast layer in front of the durable cache
type HotCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Layered reads through Redis to the durable store and writes through both.
// ⭐ SSOT: the durable store stays the source of truth; Redis errors never fail a call
type Layered struct {
	durable contracts.MetricsCache
	hot     HotCache
	ttl     time.Duration
	logger  *logger.Logger
}

var _ contracts.MetricsCache = (*Layered)(nil)

// New creates a layered cache. A nil or disabled hot layer makes it a pass-through.
func New(durable contracts.MetricsCache, hot HotCache, ttl time.Duration, log *logger.Logger) *Layered {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &Layered{
		durable: durable,
		hot:     hot,
		ttl:     ttl,
		logger:  log.WithModule("metricscache"),
	}
}

func (c *Layered) hotEnabled() bool {
	return c.hot != nil && c.hot.Enabled()
}

func hotKey(symbol string, asOf time.Time) string {
	return redis.MetricsKey(symbol, asOf.Format(dateLayout))
}

// GetMetrics serves from Redis when it covers every name, otherwise from the durable store
func (c *Layered) GetMetrics(ctx context.Context, symbol string, names []contracts.MetricName, asOf time.Time) (contracts.MetricsBag, error) {
	key := hotKey(symbol, asOf)

	if c.hotEnabled() {
		var cached contracts.MetricsBag
		found, err := c.hot.Get(ctx, key, &cached)
		if err != nil {
			c.logger.WithError(err).WithField("symbol", symbol).Warn("Hot cache read failed")
		}
		if found && cached.Covers(names) {
			return pick(cached, names), nil
		}
	}

	bag, err := c.durable.GetMetrics(ctx, symbol, names, asOf)
	if err != nil {
		return nil, err
	}

	if c.hotEnabled() && bag.Covers(contracts.ScoringMetrics) {
		c.fill(ctx, key, bag)
	}
	return bag, nil
}

// PutMetrics writes the bag durably, then mirrors complete bags into Redis
func (c *Layered) PutMetrics(ctx context.Context, symbol string, bag contracts.MetricsBag, asOf time.Time) error {
	if err := c.durable.PutMetrics(ctx, symbol, bag, asOf); err != nil {
		return err
	}

	key := hotKey(symbol, asOf)
	if bag.Covers(contracts.ScoringMetrics) {
		c.fill(ctx, key, bag)
	} else {
		c.invalidate(ctx, key)
	}
	return nil
}

func (c *Layered) fill(ctx context.Context, key string, bag contracts.MetricsBag) {
	if !c.hotEnabled() {
		return
	}
	if err := c.hot.Set(ctx, key, bag, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Hot cache write failed")
	}
}

func (c *Layered) invalidate(ctx context.Context, key string) {
	if !c.hotEnabled() {
		return
	}
	if err := c.hot.Delete(ctx, key); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Hot cache invalidate failed")
	}
}

// pick narrows a bag to the requested names
func pick(bag contracts.MetricsBag, names []contracts.MetricName) contracts.MetricsBag {
	out := make(contracts.MetricsBag, len(names))
	for _, n := range names {
		if v, ok := bag[n]; ok {
			out[n] = v
		}
	}
	return out
}
