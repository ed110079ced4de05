package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardkeep/internal/platform/config"
	"cardkeep/internal/platform/logger"
	"cardkeep/internal/platform/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the entity tables",
	Long:  `Creates every entity table and index in the configured PostgreSQL database. Statements are idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("migrate requires a database url (DATABASE_URL)")
		}
		log := logger.New(cfg.Log.Level)

		db, err := postgres.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		log.Info("schema migrated", "statements", len(postgres.Statements()))
		return nil
	},
}
