package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/config"
	"github.com/wonny/sp-ranking/pkg/httputil"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// ConfigurationError means the client cannot call the provider at all
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "finnhub configuration error: " + e.Reason
}

// IsConfigurationError reports whether err (or anything it wraps) is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Client fetches key metrics from Finnhub, cache first.
// ⭐ SSOT: Finnhub API calls happen in this client only
type Client struct {
	http    *httputil.Client
	cache   contracts.MetricsCache
	logger  *logger.Logger
	apiKey  string
	baseURL string
	now     func() time.Time
}

// NewClient creates a client sharing the process-wide pacer.
// A missing API key is reported on the first provider call, not here.
func NewClient(cfg config.FinnhubConfig, cache contracts.MetricsCache, pacer *httputil.Pacer, log *logger.Logger) *Client {
	policy := httputil.DefaultRetryPolicy
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	log = log.WithModule("finnhub")
	return &Client{
		http:    httputil.New(log, timeout).WithRetry(policy).WithPacer(pacer),
		cache:   cache,
		logger:  log,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		now:     time.Now,
	}
}

// WithHTTP swaps the transport client (tests use short retry delays)
func (c *Client) WithHTTP(h *httputil.Client) *Client {
	c.http = h
	return c
}

// WithClock overrides the source of "today" for cache keys
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// today is the as-of date for cache keys, in UTC
func (c *Client) today() time.Time {
	y, m, d := c.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// metricResponse is the /stock/metric payload; values may be numbers, null or strings
type metricResponse struct {
	Metric map[string]interface{} `json:"metric"`
}

// FetchMetrics returns today's scoring metrics for symbol.
// A full cache hit skips the provider; otherwise the fetched bag is cached with every name set.
func (c *Client) FetchMetrics(ctx context.Context, symbol string) (contracts.MetricsBag, error) {
	asOf := c.today()

	cached, err := c.cache.GetMetrics(ctx, symbol, contracts.ScoringMetrics, asOf)
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Metrics cache read failed")
	} else if cached.Covers(contracts.ScoringMetrics) {
		return cached, nil
	}

	if c.apiKey == "" {
		return nil, &ConfigurationError{Reason: "FINNHUB_API_KEY is not set"}
	}

	var resp metricResponse
	if err := c.http.GetJSON(ctx, c.metricURL(symbol), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch metrics for %s: %w", symbol, err)
	}

	bag := parseMetrics(resp.Metric)

	if err := c.cache.PutMetrics(ctx, symbol, bag, asOf); err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Metrics cache write failed")
	}

	return bag, nil
}

func (c *Client) metricURL(symbol string) string {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("metric", "all")
	q.Set("token", c.apiKey)
	return c.baseURL + "/stock/metric?" + q.Encode()
}

// parseMetrics keeps the allow-list only; anything non-numeric is stored as absent
func parseMetrics(raw map[string]interface{}) contracts.MetricsBag {
	bag := make(contracts.MetricsBag, len(contracts.ScoringMetrics))
	for _, name := range contracts.ScoringMetrics {
		bag[name] = nil
	}
	for key, value := range raw {
		if !contracts.IsScoringMetric(key) {
			continue
		}
		if v, ok := value.(float64); ok {
			bag[contracts.MetricName(key)] = contracts.Float(v)
		}
	}
	return bag
}
