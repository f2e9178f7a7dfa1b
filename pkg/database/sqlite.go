package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLite wraps a database/sql handle on a modernc.org/sqlite database
type SQLite struct {
	DB   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the database file at path.
// A single connection serializes writers; readers queue behind it.
func NewSQLite(path string) (*SQLite, error) {
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLite{DB: conn, path: path}, nil
}

// Path returns the database location
func (db *SQLite) Path() string {
	return db.path
}

// Close closes the underlying handle
func (db *SQLite) Close() error {
	return db.DB.Close()
}

// Ping checks if the database is accessible
func (db *SQLite) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
