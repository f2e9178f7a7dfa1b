package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sp-ranking/pkg/logger"
)

// fastPolicy keeps the retry schedule shape with millisecond delays
var fastPolicy = RetryPolicy{
	MaxAttempts:    3,
	RateLimitDelay: 10 * time.Millisecond,
	TransientDelay: 5 * time.Millisecond,
}

func newTestClient() *Client {
	return New(logger.NewNop(), 2*time.Second).WithRetry(fastPolicy)
}

func TestNew(t *testing.T) {
	client := New(logger.NewNop(), 20*time.Second)

	assert.Equal(t, 20*time.Second, client.httpClient.Timeout)
	assert.Equal(t, DefaultRetryPolicy, client.retry)
	assert.Nil(t, client.pacer)
}

func TestWithRetry_ClampsAttempts(t *testing.T) {
	client := newTestClient().WithRetry(RetryPolicy{MaxAttempts: 0})
	assert.Equal(t, 1, client.retry.MaxAttempts)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, newTestClient().GetJSON(context.Background(), server.URL, &body))
	assert.Equal(t, "ok", body.Status)
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	resp, err := newTestClient().Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRateLimitExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestClient().Get(context.Background(), server.URL)
	require.Error(t, err)

	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	// 429 backoff escalates: 1x then 2x the base delay
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestServerErrorRetriedThenFails(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient().Get(context.Background(), server.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from now on

	_, err := newTestClient().Get(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestTimeoutCountsAsTransient(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(logger.NewNop(), 50*time.Millisecond).WithRetry(fastPolicy)
	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestContextCancelStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(logger.NewNop(), time.Second).WithRetry(RetryPolicy{
		MaxAttempts:    3,
		RateLimitDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacerAppliesToEveryAttempt(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(logger.NewNop(), time.Second).
		WithRetry(RetryPolicy{MaxAttempts: 3}).
		WithPacer(NewPacer(10)) // 100ms apart

	start := time.Now()
	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRedact(t *testing.T) {
	assert.Equal(t,
		"https://finnhub.io/api/v1/stock/metric?metric=all&symbol=AAPL&token=REDACTED",
		redact("https://finnhub.io/api/v1/stock/metric?symbol=AAPL&metric=all&token=secret"))
	assert.Equal(t, "http://example.com/a?b=c", redact("http://example.com/a?b=c"))
}
