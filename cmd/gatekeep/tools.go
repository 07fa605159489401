// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/logging"
	"github.com/holomush/gatekeep/internal/xdg"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash [SECRET]",
		Short: "Print the stored form of a secret",
		Long: `Run SECRET through the configured credential provider and print the
values a repository would store. The secret is read from stdin when not
given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			creds, err := buildCredentials(cfg, cliLogger(cmd, cfg))
			if err != nil {
				return err
			}

			secret := ""
			if len(args) == 1 {
				secret = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return oops.Code("SECRET_READ_FAILED").Wrap(err)
				}
				secret = strings.TrimRight(line, "\r\n")
			}
			if secret == "" {
				return oops.Code("SECRET_EMPTY").Errorf("secret cannot be empty")
			}

			var acct identity.Account
			if err := creds.SetSecret(&acct, secret); err != nil {
				return err
			}
			cmd.Printf("mode: %s\n", creds.Mode())
			cmd.Printf("stored: %s\n", acct.Credentials.Stored)
			if acct.Credentials.Salt != "" {
				cmd.Printf("salt: %s\n", acct.Credentials.Salt)
			}
			return nil
		},
	}
}

// NewTokenCmd creates the token subcommand.
func NewTokenCmd(opts *rootOptions) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint remember tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return oops.Code("INVALID_COUNT").With("count", count).Errorf("count must be at least 1")
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			creds, err := buildCredentials(cfg, cliLogger(cmd, cfg))
			if err != nil {
				return err
			}
			for range count {
				token, err := creds.UniqueToken()
				if err != nil {
					return err
				}
				cmd.Println(token)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of tokens")
	return cmd
}

// NewConfigCmd creates the config subcommand.
func NewConfigCmd(opts *rootOptions) *cobra.Command {
	var initFile bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration as YAML, without secrets. With
--init, write the defaults to the config file instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if initFile {
				return writeDefaultConfig(cmd, opts.configFile)
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&initFile, "init", false, "write the default configuration file")
	return cmd
}

// writeDefaultConfig writes the defaults to path, or the XDG config file
// when path is empty. An existing file is left alone.
func writeDefaultConfig(cmd *cobra.Command, path string) error {
	if path == "" {
		path = xdg.ConfigFile()
	}
	if _, err := os.Stat(path); err == nil {
		return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("%s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}

	out, err := config.Default().YAML()
	if err != nil {
		return err
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	cmd.Printf("Wrote %s\n", path)
	return nil
}

// cliLogger reports warnings from one-shot commands on stderr.
func cliLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.Setup("gatekeep", version, cfg.Log.Format, slog.LevelWarn, cmd.ErrOrStderr())
}
