package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/pkg/config"
	"github.com/wonny/sp-ranking/pkg/database"
	"github.com/wonny/sp-ranking/pkg/redis"
)

// checkCmd verifies connectivity of every configured dependency
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check database, Redis and provider configuration",
	Long: `Loads configuration and tests each dependency:
- database connection (Ping) and pool statistics for PostgreSQL
- Redis connection when REDIS_ENABLED=true
- presence of FINNHUB_API_KEY

Example:
  go run ./cmd/ranker check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Ranker Dependency Check ===")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("❌ Failed to load config: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Config loaded (ENV: %s, DB_DRIVER: %s)", cfg.Env, cfg.Database.Driver))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := checkDatabase(ctx, cfg); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(cfg)
		if err != nil {
			PrintError(fmt.Sprintf("Redis %s:%s unreachable: %v", cfg.Redis.Host, cfg.Redis.Port, err))
		} else {
			rc.Close()
			PrintSuccess(fmt.Sprintf("Redis %s:%s reachable", cfg.Redis.Host, cfg.Redis.Port))
		}
	} else {
		PrintInfo("Redis disabled (metrics cache uses the database only)")
	}

	if cfg.Finnhub.APIKey == "" {
		PrintWarning("FINNHUB_API_KEY is not set; ranking runs will fail")
	} else {
		PrintSuccess(fmt.Sprintf("Finnhub key set (%.1f req/s, %d attempts)", cfg.Finnhub.RatePerSecond, cfg.Finnhub.MaxAttempts))
	}

	return nil
}

func checkDatabase(ctx context.Context, cfg *config.Config) error {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		fmt.Printf("   Database URL: %s\n", maskURL(cfg.Database.URL))
		db, err := database.NewPostgres(cfg)
		if err != nil {
			return fmt.Errorf("❌ Failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("❌ Failed to ping database: %w", err)
		}
		stats := db.Stats()
		PrintSuccess("PostgreSQL ping successful")
		PrintKeyValue("Total conns", fmt.Sprintf("%d / %d", stats.TotalConns, stats.MaxConns), 12)
		PrintKeyValue("Idle conns", fmt.Sprintf("%d", stats.IdleConns), 12)

	default:
		db, err := database.NewSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("❌ Failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("❌ Failed to ping database: %w", err)
		}
		PrintSuccess("SQLite ping successful (" + db.Path() + ")")
	}
	return nil
}

// maskURL hides the password of a connection string
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
