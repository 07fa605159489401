// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/store/postgres"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the accounts schema",
		Long: `Apply, inspect or roll back the bundled PostgreSQL accounts schema.
Without a subcommand all pending migrations are applied. DATABASE_URL
selects the database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, opts)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUp(cmd, opts)
		},
	})
	cmd.AddCommand(newMigrateDownCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatus(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Mark VERSION as applied without running anything. Use this to
recover after a migration failed halfway and left the database dirty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateForce(cmd, opts, args[0])
		},
	})

	return cmd
}

func newMigrateDownCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops the accounts table)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all accounts; pass --yes to confirm")
			}
			m, err := opts.migrator()
			if err != nil {
				return err
			}
			defer closeMigrator(cmd, m)

			cmd.Println("Rolling back migrations...")
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Rollback completed successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the accounts table")
	return cmd
}

func runMigrateUp(cmd *cobra.Command, opts *rootOptions) error {
	m, err := opts.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d)\n", version)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, opts *rootOptions) error {
	m, err := opts.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := ""
	if dirty {
		state = " (dirty)"
	}
	cmd.Printf("Current version: %d%s\n", version, state)

	pending, err := m.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}
	cmd.Printf("Pending migrations (%d):\n", len(pending))
	for _, v := range pending {
		name, err := postgres.MigrationName(v)
		if err != nil {
			return err
		}
		if name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
	return nil
}

func runMigrateForce(cmd *cobra.Command, opts *rootOptions, arg string) error {
	version, err := parseForceVersion(arg)
	if err != nil {
		return err
	}
	m, err := opts.migrator()
	if err != nil {
		return err
	}
	defer closeMigrator(cmd, m)

	if err := m.Force(version); err != nil {
		return err
	}
	cmd.Printf("Forced version %d\n", version)
	return nil
}

// parseForceVersion reads a leading integer from s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	return version, nil
}

// getDatabaseURL reads DATABASE_URL.
func getDatabaseURL(getenv func(string) string) (string, error) {
	url := getenv(config.EnvDatabaseURL)
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("%s environment variable is required", config.EnvDatabaseURL)
	}
	return url, nil
}

func (o *rootOptions) migrator() (Migrator, error) {
	url, err := getDatabaseURL(o.deps.Getenv)
	if err != nil {
		return nil, err
	}
	return o.deps.MigratorFactory(url)
}

func closeMigrator(cmd *cobra.Command, m Migrator) {
	if err := m.Close(); err != nil {
		cmd.PrintErrf("warning: failed to close migrator: %v\n", err)
	}
}
