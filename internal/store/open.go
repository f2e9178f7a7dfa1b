package store

import (
	"context"
	"fmt"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/config"
	"github.com/wonny/sp-ranking/pkg/database"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// Open connects the configured backend and applies the schema
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (contracts.Store, error) {
	var st contracts.Store

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st = NewPostgresStore(db)

	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st = NewSQLiteStore(db)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"module": "store",
		"driver": cfg.Database.Driver,
	}).Info("Connected to database")

	return st, nil
}
