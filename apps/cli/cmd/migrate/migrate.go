// Package migratecmd applies the embedded SQL migrations.
package migratecmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/hourledger/hourledger/database"
)

// Command groups migration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	cmd.AddCommand(upCommand(), downCommand(), versionCommand())
	return cmd
}

func databaseURLFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVar(dest, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string (defaults to DATABASE_URL)")
}

func upCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.MigrateUp(databaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	databaseURLFlag(cmd, &databaseURL)
	return cmd
}

func downCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.MigrateDown(databaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one step")
			return nil
		},
	}
	databaseURLFlag(cmd, &databaseURL)
	return cmd
}

func versionCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := database.NewMigrator(databaseURL)
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if err != nil {
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	databaseURLFlag(cmd, &databaseURL)
	return cmd
}
