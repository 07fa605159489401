// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	gktls "github.com/holomush/gatekeep/internal/tls"
)

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd(opts *rootOptions) *cobra.Command {
	var (
		hosts []string
		name  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Issue a local CA and server certificate for HTTPS",
		Long: `Issue a server certificate for serve --tls, signed by a local root CA.
An existing CA in the certs directory is reused so clients that already
trust root-ca.crt keep working. An existing server certificate is only
replaced with --force.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := cfg.HTTP.TLS.ResolvedCertsDir()

			serverPath := filepath.Join(dir, gktls.ServerCertFile)
			if _, err := os.Stat(serverPath); err == nil && !force {
				return oops.Code("CERTS_EXIST").With("path", serverPath).
					Errorf("%s already exists; pass --force to replace it", serverPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return oops.Code("CERTS_WRITE_FAILED").With("path", serverPath).Wrap(err)
			}

			ca, created, err := gktls.LoadOrGenerateCA(dir, name)
			if err != nil {
				return err
			}
			server, err := gktls.GenerateServerCert(ca, hosts)
			if err != nil {
				return err
			}
			if err := gktls.Save(dir, ca, server); err != nil {
				return err
			}

			if created {
				cmd.Printf("Created CA %s\n", filepath.Join(dir, gktls.CACertFile))
			}
			cmd.Printf("Wrote %s for %v\n", serverPath, hosts)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&hosts, "host", []string{"localhost", "127.0.0.1"}, "DNS names and IPs the certificate covers")
	cmd.Flags().StringVar(&name, "ca-name", "local", "name embedded in a newly created CA")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing server certificate")
	cmd.Flags().String("certs-dir", "", "certificates directory (default: XDG_CONFIG_HOME/gatekeep/certs)")
	return cmd
}
