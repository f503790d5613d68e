package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradejournal/internal/app"
	"tradejournal/internal/config"
	"tradejournal/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := app.OpenDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(ctx, db); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", cfg.Database.DSNWithoutPassword())
			return err
		},
	}
}
