package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/keiba-crawler/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			dsn := a.Config().DB.DSN
			if dsn == "" {
				return errors.New("db.dsn is not set")
			}
			if err := postgres.Migrate(dsn); err != nil {
				return err
			}
			a.Logger().Info("database schema is up to date")
			return nil
		},
	}
}
