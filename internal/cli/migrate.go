package cli

import (
	"database/sql"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"conferencebot/internal/config"
	"conferencebot/internal/storage/ch"
	"conferencebot/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the ClickHouse schema (CLICKHOUSE_* environment)",
	}

	cmd.AddCommand(
		migrateAction("up", "Apply all pending migrations", func(cmd *cobra.Command, db *sql.DB) error {
			if err := migrations.Up(db); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
		migrateAction("down", "Roll back the latest migration", func(cmd *cobra.Command, db *sql.DB) error {
			if err := migrations.Down(db); err != nil {
				return err
			}
			cmd.Println("Rollback completed successfully")
			return nil
		}),
		migrateAction("status", "Show the state of every migration", func(cmd *cobra.Command, db *sql.DB) error {
			return migrations.Status(db)
		}),
		migrateAction("version", "Print the current schema version", func(cmd *cobra.Command, db *sql.DB) error {
			version, err := migrations.Version(db)
			if err != nil {
				return err
			}
			cmd.Printf("Current migration version: %d\n", version)
			return nil
		}),
	)
	return cmd
}

// migrateAction opens ClickHouse from the environment and runs fn against it
func migrateAction(use, short string, fn func(*cobra.Command, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.ClickHouseFromEnv()
			if err != nil {
				return err
			}

			db := ch.OpenSQL(ch.Options(
				cfg.ClickHouseHost,
				cfg.ClickHousePort,
				cfg.ClickHouseDatabase,
				cfg.ClickHouseUser,
				cfg.ClickHousePassword,
				cfg.ClickHouseUseTLS,
			))
			defer db.Close()

			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping ClickHouse at %s:%d: %w", cfg.ClickHouseHost, cfg.ClickHousePort, err)
			}

			if err := fn(cmd, db); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}
