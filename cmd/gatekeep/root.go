// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/xdg"
)

// rootOptions holds the global flags available to all subcommands.
type rootOptions struct {
	configFile string
	envFile    string
	deps       *Deps
}

// NewRootCmd creates the root command for the gatekeep CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	opts := &rootOptions{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "gatekeep - session authentication service",
		Long: `gatekeep authenticates accounts with a login and secret and keeps
them logged in across requests through session slots, remember-me
cookies and HTTP basic auth.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.envFile != "" {
				return config.LoadEnvFile(opts.envFile, true)
			}
			return config.LoadEnvFile(xdg.EnvFile(), false)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/gatekeep/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with secrets (default: XDG_CONFIG_HOME/gatekeep/.env)")

	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewMigrateCmd(opts))
	cmd.AddCommand(NewHashCmd(opts))
	cmd.AddCommand(NewTokenCmd(opts))
	cmd.AddCommand(NewConfigCmd(opts))
	cmd.AddCommand(NewCertsCmd(opts))

	return cmd
}

// loadConfig reads the configuration with cmd's flags applied.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(o.configFile, cmd.Flags(), o.deps.Getenv)
}
