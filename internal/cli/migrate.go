package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"seatnext/internal/shared/config"
	"seatnext/internal/shared/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables, constraints and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := database.OpenPostgreSQL(config.Load())
			if err != nil {
				return err
			}
			if sqlDB, err := pg.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := database.Migrate(pg); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := database.MigrateConstraints(pg); err != nil {
				return fmt.Errorf("constraints: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
