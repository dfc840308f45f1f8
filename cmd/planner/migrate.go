package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"contentplanner/config"
	"contentplanner/pkg/db"
	"contentplanner/pkg/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema (users, documents, outbox_events)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config-dir")
			cfg, err := config.Load(dir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := logger.NewLogger(cfg.Log.Development)
			defer log.Sync()

			pool, err := db.NewConnection(cfg.DB, log)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			return db.Migrate(context.Background(), pool, log)
		},
	}
}
