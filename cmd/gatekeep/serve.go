// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/httpapi"
	"github.com/holomush/gatekeep/internal/logging"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/registry"
	"github.com/holomush/gatekeep/internal/session"
	gktls "github.com/holomush/gatekeep/internal/tls"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication API",
		Long: `Start the HTTP API for registration and sessions, plus the metrics
and health server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg, opts.deps)
		},
	}

	cmd.Flags().String("http-addr", defaults.HTTP.Addr, "API listen address")
	cmd.Flags().String("metrics-addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("store", defaults.Store.Driver, "account store (memory or postgres)")
	cmd.Flags().String("slots", defaults.Slots.Driver, "session slot store (cookie, memory or redis)")
	cmd.Flags().String("provider", defaults.Credentials.Provider, "credential provider (argon2id, bcrypt, sha512 or xchacha)")
	cmd.Flags().Bool("auto-migrate", defaults.Store.AutoMigrate, "apply pending migrations on startup")
	cmd.Flags().Bool("tls", defaults.HTTP.TLS.Enabled, "serve HTTPS with the certificates from 'gatekeep certs'")
	cmd.Flags().String("certs-dir", defaults.HTTP.TLS.CertsDir, "TLS certificates directory (default: XDG_CONFIG_HOME/gatekeep/certs)")

	return cmd
}

// runServe runs until ctx is cancelled or a server fails.
func runServe(ctx context.Context, cmd *cobra.Command, cfg config.Config, deps *Deps) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup("gatekeep", version, cfg.Log.Format, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	logger.Info("starting gatekeep",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"slots", cfg.Slots.Driver,
		"provider", cfg.Credentials.Provider,
	)

	c, err := buildComponents(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer c.close()

	engine, err := session.NewEngine(cfg.Session, c.repo, c.creds, session.WithLogger(logger))
	if err != nil {
		return err
	}
	reg, err := registry.New(engine, c.creds, registry.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithSkipPaths(cfg.HTTP.SkipPaths...),
		httpapi.WithMiddleware(c.middleware...),
	}
	if cfg.HTTP.TLS.Enabled {
		tlsCfg, err := gktls.ServerConfig(cfg.HTTP.TLS.ResolvedCertsDir())
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, httpapi.WithTLS(tlsCfg))
	}

	var running []stopper
	defer func() {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, running)
	}()

	if cfg.Metrics.Addr != "" {
		obsOpts := append([]observability.ServerOption{observability.WithLogger(logger)}, c.checks...)
		obsServer := observability.NewServer(cfg.Metrics.Addr, obsOpts...)
		apiOpts = append(apiOpts, httpapi.WithMetrics(obsServer.Metrics()))

		obsErrs, err := obsServer.Start()
		if err != nil {
			return err
		}
		running = append(running, obsServer)
		go monitorServerErrors(ctx, cancel, obsErrs, "observability")
	}

	api, err := httpapi.New(reg, c.creds, c.transports, apiOpts...)
	if err != nil {
		return err
	}
	apiErrs, err := api.Start(cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	running = append(running, api)
	go monitorServerErrors(ctx, cancel, apiErrs, "http")

	cmd.Println("gatekeep started")
	<-ctx.Done()
	logger.Info("shutting down...")

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

type stopper interface {
	Stop(ctx context.Context) error
}

// stopServers stops servers in reverse start order within timeout.
func stopServers(logger *slog.Logger, timeout time.Duration, servers []stopper) {
	if len(servers) == 0 {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
	logger.Info("shutdown complete")
}

// monitorServerErrors cancels ctx with the first error a server reports.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errs <-chan error, name string) {
	select {
	case err, ok := <-errs:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel(oops.Code("SERVER_FAILED").With("server", name).Wrap(err))
		}
	case <-ctx.Done():
	}
}
