package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port           string
	Env            string // development, staging, production, test
	AllowedOrigins []string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Finnhub FinnhubConfig

	// Ranking pipeline
	Pipeline PipelineConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Symbol directory seeding
	SymbolsSourceURL string

	// Export
	ExportMaxRows int

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds storage configuration
type DatabaseConfig struct {
	Driver     string // sqlite | postgres
	URL        string // PostgreSQL connection string
	SQLitePath string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// FinnhubConfig holds the metrics provider configuration
type FinnhubConfig struct {
	APIKey        string // may be empty; checked at first use
	BaseURL       string
	RatePerSecond float64
	Timeout       time.Duration
	MaxAttempts   int
}

// PipelineConfig holds batch dispatch and cache settings
type PipelineConfig struct {
	BatchSize      int
	MaxConcurrency int
	CacheTTL       time.Duration // Redis hot layer only
}

// SchedulerConfig holds the scheduled ranking settings
type SchedulerConfig struct {
	Schedule        string // cron expression with seconds
	FormulaMode     string
	SymbolsSchedule string // empty disables the directory refresh job
	MaxRetries      int
	RetryDelay      time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only function calling os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port:           getEnv("PORT", "8000"),
		Env:            getEnv("ENV", "development"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "*"),

		// Database
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			URL:             getEnv("DATABASE_URL", ""),
			SQLitePath:      getEnv("SQLITE_PATH", "./data.db"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// External APIs
		Finnhub: FinnhubConfig{
			APIKey:        getEnv("FINNHUB_API_KEY", ""),
			BaseURL:       getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
			RatePerSecond: getEnvAsFloat("FINNHUB_RATE_PER_SEC", 4),
			Timeout:       getEnvAsDuration("FINNHUB_TIMEOUT", "20s"),
			MaxAttempts:   getEnvAsInt("FINNHUB_MAX_ATTEMPTS", 3),
		},

		// Ranking pipeline
		Pipeline: PipelineConfig{
			BatchSize:      getEnvAsInt("BATCH_SIZE", 25),
			MaxConcurrency: getEnvAsInt("MAX_CONCURRENCY", 5),
			CacheTTL:       time.Duration(getEnvAsInt("CACHE_TTL_MINUTES", 1440)) * time.Minute,
		},

		Scheduler: SchedulerConfig{
			Schedule:        getEnv("RANKING_SCHEDULE", "0 30 21 * * 1-5"), // after US close (UTC)
			FormulaMode:     getEnv("RANKING_SCHEDULE_MODE", "both"),
			SymbolsSchedule: getEnv("SYMBOLS_REFRESH_SCHEDULE", "0 0 6 * * 1"),
			MaxRetries:      getEnvAsInt("SCHEDULER_MAX_RETRIES", 1),
			RetryDelay:      getEnvAsDuration("SCHEDULER_RETRY_DELAY", "5m"),
		},

		SymbolsSourceURL: getEnv("SYMBOLS_SOURCE_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
		ExportMaxRows:    getEnvAsInt("EXPORT_MAX_ROWS", 100000),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, postgres")
	}

	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		return fmt.Errorf("MAX_CONCURRENCY must be positive")
	}
	if c.Finnhub.RatePerSecond <= 0 {
		return fmt.Errorf("FINNHUB_RATE_PER_SEC must be positive")
	}
	if c.Finnhub.MaxAttempts <= 0 {
		return fmt.Errorf("FINNHUB_MAX_ATTEMPTS must be positive")
	}

	switch c.Scheduler.FormulaMode {
	case "buffett", "cramer", "both":
	default:
		return fmt.Errorf("RANKING_SCHEDULE_MODE must be one of: buffett, cramer, both")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
