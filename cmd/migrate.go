package main

import (
	"errors"

	"github.com/spf13/cobra"

	"siteledger/internal/config"
	"siteledger/internal/infrastructure"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Store != config.StorePostgres {
			return errors.New("migrate needs database.store=postgres")
		}
		return infrastructure.Migrate(cmd.Context(), cfg.Database.DSN, logger)
	},
}
