// Package main provides rfpctl, the administrative CLI for the RFP
// backend: schema migrations and one-off reconciler sweeps.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"rfp-backend/app"
	"rfp-backend/config"
	"rfp-backend/database"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "rfpctl"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Administer the RFP backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file to load")

	load := func() (config.Config, error) {
		return config.Load(envFile)
	}

	cmd.AddCommand(migrateCmd(load), sweepCmd(load))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

type configLoader func() (config.Config, error)

func migrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabaseURL)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := database.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabaseURL)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabaseURL)
		},
	})

	return cmd
}

func printVersion(w io.Writer, databaseURL string) error {
	version, dirty, err := database.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(w, "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(w, "schema version %d\n", version)
	return nil
}

func sweepCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close every RFP whose deadline has passed, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.RunMigrations = false

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, cfg.NewLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Reconciler.Sweep(ctx)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "sweep skipped: another replica holds the lock")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired: %d, closed: %d, failed: %d\n",
				res.Candidates, res.Closed, res.Failed)
			return nil
		},
	}
}
