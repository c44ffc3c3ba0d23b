package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/parcel-express/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations to pg_dsn",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.PGDSN == "" {
			return errors.New("pg_dsn is not set")
		}
		pg, err := storage.NewPostgresStore(cmd.Context(), cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		applied, err := pg.Migrate(cmd.Context())
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "migration applied:", name)
		}
		return err
	},
}
