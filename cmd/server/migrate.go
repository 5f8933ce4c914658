package main

import (
	"github.com/spf13/cobra"

	"tutoring-api/internal/logger"
	"tutoring-api/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer logger.L().Sync() //nolint:errcheck
			if err := store.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			logger.L().Info("migrations applied")
			return nil
		},
	}
}
