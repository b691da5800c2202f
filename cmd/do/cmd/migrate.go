package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/db"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", db.RunMigrations),
		migrateStep("down", "Roll back the latest migration", db.MigrateDown),
		migrateStep("status", "Show migration status", db.MigrationStatus),
	)
	return cmd
}

func migrateStep(use, short string, fn func(*sql.DB, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()

			return fn(database.DB, cfg.DBDriver)
		},
	}
}
