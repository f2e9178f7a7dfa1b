package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/store"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// migrateCmd applies the schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Applies the schema for the configured DB_DRIVER. Safe to run repeatedly.

Example:
  DB_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/ranker migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	// Open migrates before returning
	st, err := store.Open(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	PrintSuccess("Schema is up to date (" + cfg.Database.Driver + ")")
	return nil
}
