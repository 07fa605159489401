// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/gatekeep/internal/store/postgres"
)

// connectAttempts bounds database and Redis connection retries at startup.
const connectAttempts = 5

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Getenv reads the environment.
	// Default: os.Getenv
	Getenv func(string) string

	// PoolFactory opens a PostgreSQL pool.
	// Default: pgxpool.New with retried Ping
	PoolFactory func(ctx context.Context, url string) (Pool, error)

	// RedisFactory opens a Redis client.
	// Default: redis.ParseURL + redis.NewClient with retried Ping
	RedisFactory func(ctx context.Context, url string) (redis.UniversalClient, error)

	// MigratorFactory opens a schema migrator.
	// Default: postgres.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// RetryBase is the first backoff between connection attempts.
	// Default: 200ms
	RetryBase time.Duration
}

// Pool wraps the methods used from *pgxpool.Pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from postgres.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.RetryBase <= 0 {
		out.RetryBase = 200 * time.Millisecond
	}
	if out.PoolFactory == nil {
		base := out.RetryBase
		out.PoolFactory = func(ctx context.Context, url string) (Pool, error) {
			return connectPool(ctx, url, base)
		}
	}
	if out.RedisFactory == nil {
		base := out.RetryBase
		out.RedisFactory = func(ctx context.Context, url string) (redis.UniversalClient, error) {
			return connectRedis(ctx, url, base)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			return postgres.NewMigrator(url)
		}
	}
	return &out
}

func backoff(base time.Duration) retry.Backoff {
	return retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(base))
}

// connectPool opens a pool and waits for the database to answer.
func connectPool(ctx context.Context, url string, base time.Duration) (Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}

	var pool *pgxpool.Pool
	err = retry.Do(ctx, backoff(base), func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", connectAttempts).Wrap(err)
	}
	return pool, nil
}

// connectRedis opens a client and waits for Redis to answer.
func connectRedis(ctx context.Context, url string, base time.Duration) (redis.UniversalClient, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	rdb := redis.NewClient(opt)

	err = retry.Do(ctx, backoff(base), func(ctx context.Context) error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("attempts", connectAttempts).Wrap(err)
	}
	return rdb, nil
}
