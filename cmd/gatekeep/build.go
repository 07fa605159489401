// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/httpapi"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/store/memory"
	"github.com/holomush/gatekeep/internal/store/postgres"
	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/transport/redisslots"
)

// repository is what serve needs from an account store.
type repository interface {
	session.Repository
	Ping(ctx context.Context) error
}

// components are the long-lived pieces built from the configuration.
type components struct {
	creds      *credential.Store
	repo       repository
	transports httpapi.TransportFactory
	middleware []gin.HandlerFunc
	checks     []observability.ServerOption
	closers    []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildProvider selects the credential provider named in the configuration.
func buildProvider(cfg config.Config) (credential.Provider, error) {
	switch cfg.Credentials.Provider {
	case config.ProviderSHA512:
		return credential.SHA512{Stretches: cfg.Credentials.SHA512Stretches}, nil
	case config.ProviderArgon2id:
		return credential.Argon2id{Pepper: cfg.Env.Argon2Pepper}, nil
	case config.ProviderBcrypt:
		return credential.Bcrypt{Cost: cfg.Credentials.BcryptCost}, nil
	case config.ProviderXChaCha:
		return credential.NewXChaCha(cfg.Credentials.KeyID, cfg.Env.EncryptionKey)
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("key", "credentials.provider").
			With("value", cfg.Credentials.Provider).
			Errorf("unknown provider %q", cfg.Credentials.Provider)
	}
}

func buildCredentials(cfg config.Config, logger *slog.Logger) (*credential.Store, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	return credential.NewStore(provider, cfg.Credentials.Config, credential.WithLogger(logger))
}

func buildComponents(ctx context.Context, cfg config.Config, deps *Deps, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	if c.creds, err = buildCredentials(cfg, logger); err != nil {
		return nil, err
	}
	if err = c.buildRepository(ctx, cfg, deps, logger); err != nil {
		return nil, err
	}
	if err = c.buildTransports(ctx, cfg, deps); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *components) buildRepository(ctx context.Context, cfg config.Config, deps *Deps, logger *slog.Logger) error {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Store.AutoMigrate {
			if err := migrateUp(cfg.Env.DatabaseURL, deps, logger); err != nil {
				return err
			}
		}
		pool, err := deps.PoolFactory(ctx, cfg.Env.DatabaseURL)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, pool.Close)

		features, err := postgres.DetectFeatures(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info("connected to database", "features", features)
		c.repo = postgres.NewAccountRepository(pool, features)
	default:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		c.repo = memory.New()
	}
	c.checks = append(c.checks, observability.WithCheck("accounts", c.repo.Ping))
	return nil
}

func migrateUp(url string, deps *Deps, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

func (c *components) buildTransports(ctx context.Context, cfg config.Config, deps *Deps) error {
	opts := cfg.Cookies
	switch cfg.Slots.Driver {
	case config.DriverCookie:
		store := cookie.NewStore(cfg.Env.CookieSecret)
		store.Options(sessions.Options{
			Path:     opts.Path,
			Domain:   opts.Domain,
			MaxAge:   int(opts.SlotTTL.Seconds()),
			Secure:   opts.Secure,
			HttpOnly: opts.HTTPOnly,
			SameSite: opts.SameSite,
		})
		c.middleware = append(c.middleware, sessions.Sessions(opts.SlotCookie, store))
		c.transports = httpapi.GinTransports(opts)
	case config.DriverRedis:
		rdb, err := deps.RedisFactory(ctx, cfg.Env.RedisURL)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() {
			_ = rdb.Close() //nolint:errcheck // shutdown
		})
		slots := redisslots.New(rdb, cfg.Slots.Prefix)
		c.checks = append(c.checks, observability.WithCheck("slots", slots.Ping))
		c.transports = httpapi.SlotTransports(slots, opts)
	default:
		c.transports = httpapi.SlotTransports(transport.NewMemorySlots(), opts)
	}
	return nil
}
