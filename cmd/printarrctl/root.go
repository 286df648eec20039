package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/AdamA817/printarr-sub001/internal/catalog"
	"github.com/AdamA817/printarr-sub001/internal/queue"
)

var (
	flagDatabaseURL string
	flagConfigPath  string
)

var rootCmd = &cobra.Command{
	Use:   "printarrctl",
	Short: "Operate the printarr-sub001 catalog, job queue, and settings store",
	Long: `printarrctl is the operator CLI for printarr-sub001.

Examples:
  printarrctl settings list
  printarrctl settings put max_concurrent_downloads 5
  printarrctl queue depth
  printarrctl queue retry <job-id>
  printarrctl migrate status`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "Postgres connection string (defaults to PRINTARR_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config-path", "", "path to the catalog database (defaults to PRINTARR_CONFIG_PATH or data/config)")

	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command and its subcommands.
func Execute() error {
	return rootCmd.Execute()
}

func databaseURL() (string, error) {
	if flagDatabaseURL != "" {
		return flagDatabaseURL, nil
	}
	if v := os.Getenv("PRINTARR_DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no database configured: set --database-url or PRINTARR_DATABASE_URL")
}

func resolvedConfigPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}
	if v := os.Getenv("PRINTARR_CONFIG_PATH"); v != "" {
		return v
	}
	return "data/config"
}

func openDB() (*sql.DB, error) {
	dsn, err := databaseURL()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openQueue(ctx context.Context) (*queue.Queue, error) {
	dsn, err := databaseURL()
	if err != nil {
		return nil, err
	}
	return queue.Open(ctx, queue.Config{DSN: dsn, ApplicationName: "printarrctl"})
}

func openStore() (*catalog.Store, error) {
	store := catalog.New(filepath.Join(resolvedConfigPath(), "catalog.json"))
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}
