package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aevon-lab/compresolver/internal/core/storage/postgres"
	"github.com/aevon-lab/compresolver/internal/migrations"
)

func newMigrateCmd(global *globalOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) the computation metadata schema",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := global.load()
			if err != nil {
				return err
			}
			if cfg.Store.Type != "postgres" {
				return fmt.Errorf("migrate needs the postgres store, not %q", cfg.Store.Type)
			}

			db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				return migrations.Rollback(db)
			}
			return migrations.RunMigrations(db, true)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")
	return cmd
}
