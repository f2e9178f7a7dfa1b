package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/wonny/sp-ranking/pkg/config"
)

func TestNewPostgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:             url,
			MaxConns:        2,
			MinConns:        1,
			MaxConnLifetime: time.Minute,
			MaxConnIdleTime: time.Minute,
		},
	}

	db, err := NewPostgres(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		t.Errorf("Failed to ping database: %v", err)
	}

	if stats := db.Stats(); stats.MaxConns != 2 {
		t.Errorf("Expected MaxConns=2, got %d", stats.MaxConns)
	}
}

func TestNewPostgres_InvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "://not a url"},
	}

	if _, err := NewPostgres(cfg); err == nil {
		t.Error("Expected error for invalid URL, got nil")
	}
}
