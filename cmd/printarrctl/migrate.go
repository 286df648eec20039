package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AdamA817/printarr-sub001/internal/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect and apply catalog schema migrations",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current catalog migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := catalog.MigrationStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("catalog schema version: %d\n", version)
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending catalog migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := catalog.Migrate(db); err != nil {
			return err
		}
		version, err := catalog.MigrationStatus(db)
		if err != nil {
			return err
		}
		fmt.Printf("catalog schema migrated to version %d\n", version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd)
}
