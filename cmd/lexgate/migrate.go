package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nerrad567/lexgate-core/internal/infrastructure/config"
	"github.com/nerrad567/lexgate-core/internal/infrastructure/database"
	"github.com/nerrad567/lexgate-core/migrations"
)

func openDatabase(cfg *config.Config) (*database.DB, error) {
	return database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
}

// migrateDown reverts the latest schema migration and reports it on out.
// Run as "lexgate migrate-down" with the service stopped.
func migrateDown(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // exiting anyway

	m, err := db.MigrateDown(ctx, migrations.Source())
	if err != nil {
		return err
	}
	if m == nil {
		fmt.Fprintln(out, "no migrations applied") //nolint:errcheck // best effort CLI output
		return nil
	}
	fmt.Fprintf(out, "reverted %s_%s\n", m.Version, m.Name) //nolint:errcheck // best effort CLI output
	return nil
}
