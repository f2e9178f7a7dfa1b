package redis

import (
	"context"
	"testing"
	"time"

	"github.com/wonny/sp-ranking/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host:    "127.0.0.1",
			Port:    "1", // nothing listens here
			Enabled: true,
		},
	}

	if _, err := New(cfg); err == nil {
		t.Error("Expected connection error, got nil")
	}
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(&config.Config{})
	cache := NewCache(client, "test")
	ctx := context.Background()

	if cache.Enabled() {
		t.Error("Expected cache to be disabled")
	}

	// When Redis is disabled, cache operations are no-ops
	if err := cache.Set(ctx, "key", map[string]float64{"a": 1}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var result map[string]float64
	found, err := cache.Get(ctx, "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}

	if err := cache.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

func TestKeys(t *testing.T) {
	cache := NewCache(&Client{}, "ranker")

	if got := cache.key("x"); got != "ranker:cache:x" {
		t.Errorf("got %q, want %q", got, "ranker:cache:x")
	}
	if got := MetricsKey("AAPL", "2026-01-15"); got != "metrics:AAPL:2026-01-15" {
		t.Errorf("got %q", got)
	}
}
