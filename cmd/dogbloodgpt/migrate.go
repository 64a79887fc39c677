package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/dogblood-backend/internal/config"
	"github.com/tbourn/dogblood-backend/internal/sysutil"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			log.Info().Str("db_driver", cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}
