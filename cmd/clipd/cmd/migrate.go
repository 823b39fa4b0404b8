package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/clipd/internal/database"
)

// migrateCmd applies the schema without starting the server. Useful
// for deployments where migrations run as a separate step.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Open the configured database and bring its schema up to date, then exit.",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		db, err := database.New(cfg.Database, slog.Default())
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		if err := db.AutoMigrate(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}

		slog.Info("database schema up to date",
			slog.String("driver", cfg.Database.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
