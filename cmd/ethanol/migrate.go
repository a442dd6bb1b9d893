// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/config"
	"github.com/holomush/ethanol/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Manage the PostgreSQL directory and audit schema. The SQLite database
is migrated automatically whenever it is opened.`,
	}
	cmd.AddCommand(newMigrateUpCmd(opts))
	cmd.AddCommand(newMigrateDownCmd(opts))
	cmd.AddCommand(newMigrateStatusCmd(opts))
	cmd.AddCommand(newMigrateForceCmd(opts))
	return cmd
}

// withMigrator runs fn against the configured PostgreSQL database. For
// SQLite it reports that nothing needs doing.
func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(m *store.Migrator) error) error {
	cfg, logger, _, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DatabasePostgres {
		cmd.Println("sqlite schema is migrated on open; nothing to do")
		return nil
	}
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := store.Connect(ctx, dsn, store.ConnectOptions{
		MaxConns:     1,
		PingAttempts: cfg.Database.PingAttempts,
		PingBackoff:  cfg.Database.PingBackoff,
	}, logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	pool.Close()

	migrator, err := store.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := migrator.Close(); cerr != nil {
			logger.Warn("closing migrator", "error", cerr)
		}
	}()
	return fn(migrator)
}

func postgresDSN(cfg config.Config) (string, error) {
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return "", oops.Code("CONFIG_INVALID").With("key", "database.dsn").
			Errorf("database.dsn is required for the postgres driver")
	}
	return dsn, nil
}

func newMigrateUpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, opts, func(m *store.Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Database is up to date")
					return nil
				}
				cmd.Printf("Applying %d migration(s)...\n", len(pending))
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd(opts *rootOptions) *cobra.Command {
	var (
		all   bool
		steps int
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll migrations back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, opts, func(m *store.Migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration (destroys all data)")
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := newPrinter(cmd.OutOrStdout(), opts.output)
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				status := struct {
					Version uint   `yaml:"version"`
					Dirty   bool   `yaml:"dirty"`
					Pending []uint `yaml:"pending"`
				}{version, dirty, pending}
				return out.print(status, func(w io.Writer) {
					fmt.Fprintf(w, "version: %d\n", status.Version)
					if status.Dirty {
						fmt.Fprintln(w, "state: dirty (repair, then run migrate force)")
					}
					for _, v := range status.Pending {
						name, err := store.MigrationName(v)
						if err != nil || name == "" {
							name = strconv.FormatUint(uint64(v), 10)
						}
						fmt.Fprintf(w, "pending: %s\n", name)
					}
				})
			})
		},
	}
}

func newMigrateForceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Record a version as applied without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, opts, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced version %d\n", version)
				return nil
			})
		},
	}
}

func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("invalid version %q", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}
