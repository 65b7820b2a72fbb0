package main

import (
	"fmt"
	"os"
	"strings"

	"ganger/internal/db"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	var databaseURL string

	root := &cobra.Command{
		Use:          "ganger-migrate",
		Short:        "Apply or roll back the gang schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			databaseURL = strings.TrimSpace(databaseURL)
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := db.MigrateUp(databaseURL)
			if err != nil {
				return err
			}
			if !applied {
				color.Yellow("Schema already up to date.")
				return nil
			}
			return printStatus(databaseURL)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.MigrateDown(databaseURL, steps); err != nil {
				return err
			}
			return printStatus(databaseURL)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "migrations to roll back")
	root.AddCommand(down)

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(databaseURL)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printStatus(databaseURL string) error {
	st, err := db.Status(databaseURL)
	if err != nil {
		return err
	}
	switch {
	case !st.Applied:
		color.Yellow("No migrations applied.")
	case st.Dirty:
		color.Red("Schema version %d is dirty; fix it by hand before migrating again.", st.Version)
	default:
		color.Green("Schema at version %d.", st.Version)
	}
	return nil
}
