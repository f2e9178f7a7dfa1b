package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wonny/sp-ranking/pkg/logger"
)

// Client is an HTTP client wrapper with pacing, retry logic and logging
// ⭐ SSOT: every outbound HTTP request goes through this client
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	retry      RetryPolicy
	pacer      *Pacer
}

// RetryPolicy holds retry configuration.
// A 429 sleeps RateLimitDelay*attempt; transport errors and other failed statuses
// sleep TransientDelay*attempt. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts    int
	RateLimitDelay time.Duration
	TransientDelay time.Duration
}

// DefaultRetryPolicy: 3 attempts, 429 backs off 1s then 2s, transient 0.5s then 1s
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	RateLimitDelay: 1 * time.Second,
	TransientDelay: 500 * time.Millisecond,
}

// StatusError is returned when the final attempt ended with a non-2xx status
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// New creates a client with the given per-attempt timeout
// ⭐ SSOT: http.Client instances are only created here
func New(log *logger.Logger, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithModule("httputil"),
		retry:      DefaultRetryPolicy,
	}
}

// WithRetry replaces the retry policy
func (c *Client) WithRetry(policy RetryPolicy) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c.retry = policy
	return c
}

// WithPacer makes every attempt wait on p first; share one pacer per upstream
func (c *Client) WithPacer(p *Pacer) *Client {
	c.pacer = p
	return c
}

// Get performs a GET request with pacing and retry. The caller closes the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	startTime := time.Now()

	resp, err := c.doWithRetry(ctx, url)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"url":      redact(url),
			"duration": duration,
			"error":    err.Error(),
		}).Warn("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"url":         redact(url),
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}

// GetJSON performs Get and decodes the body into dest
func (c *Client) GetJSON(ctx context.Context, url string, dest interface{}) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait failed: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create GET request: %w", err)
		}

		resp, err := c.httpClient.Do(req)

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			delay = c.retry.TransientDelay * time.Duration(attempt)

		case resp.StatusCode == http.StatusTooManyRequests:
			discard(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: redact(url)}
			delay = c.retry.RateLimitDelay * time.Duration(attempt)

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			discard(resp)
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: redact(url)}
			delay = c.retry.TransientDelay * time.Duration(attempt)

		default:
			return resp, nil
		}

		if attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
			"url":     redact(url),
			"error":   lastErr.Error(),
		}).Warn("Retrying HTTP request")

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// IsRateLimited reports whether err is an exhausted 429
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
