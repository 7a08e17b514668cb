package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"remit/internal/config"
	"remit/internal/db"
	"remit/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long: `Create every table and index the server needs. Safe to run repeatedly.

Examples:
  remit migrate
  remit migrate --env-file .env.production`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.DB.Driver != "postgres" {
		return fmt.Errorf("migrate requires DB_DRIVER=postgres, got %q", cfg.DB.Driver)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	conn, err := db.InitDB(cfg.DB, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("schema up to date", zap.String("database", cfg.DB.Name))
	return nil
}
