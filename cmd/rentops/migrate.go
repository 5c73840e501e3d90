package main

import (
	"fmt"

	"github.com/hyperengineering/rentops/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  "Opens the configured database, applies every pending migration and prints the resulting schema version.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Open runs the migrations.
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := store.MigrationVersion(db.DB(), cfg.Database.Driver)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database %s is at schema version %d\n", cfg.Database.Driver, version)
	return nil
}
