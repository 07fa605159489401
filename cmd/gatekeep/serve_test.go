// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/store/memory"
	"github.com/holomush/gatekeep/internal/store/postgres"
	"github.com/holomush/gatekeep/pkg/errutil"
)

var coreAccountColumns = []string{
	"id", "login", "email", "crypted_password", "password_salt", "remember_token",
	"created_at", "updated_at",
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Credentials.Provider = config.ProviderSHA512
	cfg.Slots.Driver = config.DriverMemory
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd, out
}

func TestBuildProvider(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	tests := []struct {
		provider string
		want     any
	}{
		{config.ProviderSHA512, credential.SHA512{Stretches: 20}},
		{config.ProviderArgon2id, credential.Argon2id{Pepper: "pepper"}},
		{config.ProviderBcrypt, credential.Bcrypt{Cost: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := config.Default()
			cfg.Credentials.Provider = tt.provider
			cfg.Env.Argon2Pepper = "pepper"
			got, err := buildProvider(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("xchacha", func(t *testing.T) {
		cfg := config.Default()
		cfg.Credentials.Provider = config.ProviderXChaCha
		cfg.Env.EncryptionKey = key
		got, err := buildProvider(cfg)
		require.NoError(t, err)
		assert.IsType(t, &credential.XChaCha{}, got)

		cfg.Env.EncryptionKey = key[:16]
		_, err = buildProvider(cfg)
		errutil.AssertErrorCode(t, err, "CREDENTIAL_INVALID_KEY")
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Credentials.Provider = "rot13"
		_, err := buildProvider(cfg)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}

func TestBuildComponents_Memory(t *testing.T) {
	cfg := testConfig(t)
	c, err := buildComponents(context.Background(), cfg, (&Deps{}).withDefaults(), discardLogger())
	require.NoError(t, err)
	defer c.close()

	assert.IsType(t, &memory.Repository{}, c.repo)
	assert.NotNil(t, c.transports)
	assert.Empty(t, c.middleware)
	assert.Len(t, c.checks, 1)
}

func TestBuildComponents_CookieSlotsInstallSessionsMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Slots.Driver = config.DriverCookie
	cfg.Env.CookieSecret = []byte("0123456789abcdef0123456789abcdef")

	c, err := buildComponents(context.Background(), cfg, (&Deps{}).withDefaults(), discardLogger())
	require.NoError(t, err)
	defer c.close()

	assert.Len(t, c.middleware, 1)
}

func TestBuildComponents_Postgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, c := range coreAccountColumns {
		rows.AddRow(c)
	}
	mock.ExpectQuery(`information_schema.columns`).WillReturnRows(rows)

	migrator := &fakeMigrator{pending: []uint{1, 2, 3}}
	var poolURL string
	deps := (&Deps{
		PoolFactory: func(_ context.Context, url string) (Pool, error) {
			poolURL = url
			return mock, nil
		},
		MigratorFactory: func(string) (Migrator, error) { return migrator, nil },
	}).withDefaults()

	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverPostgres
	cfg.Store.AutoMigrate = true
	cfg.Env.DatabaseURL = "postgres://localhost/gatekeep"

	c, err := buildComponents(context.Background(), cfg, deps, discardLogger())
	require.NoError(t, err)

	repo, ok := c.repo.(*postgres.AccountRepository)
	require.True(t, ok)
	assert.Equal(t, postgres.Features{}, repo.Features())
	assert.Equal(t, "postgres://localhost/gatekeep", poolURL)
	assert.Equal(t, []string{"up"}, migrator.calls)
	assert.True(t, migrator.closed)
	assert.NoError(t, mock.ExpectationsWereMet())
	c.close()
}

func TestBuildComponents_PostgresSchemaInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	mock.ExpectQuery(`information_schema.columns`).
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id"))

	deps := (&Deps{
		PoolFactory: func(context.Context, string) (Pool, error) { return mock, nil },
	}).withDefaults()

	cfg := testConfig(t)
	cfg.Store.Driver = config.DriverPostgres
	cfg.Env.DatabaseURL = "postgres://localhost/gatekeep"

	_, err = buildComponents(context.Background(), cfg, deps, discardLogger())
	errutil.AssertErrorCode(t, err, "STORE_SCHEMA_INVALID")
}

func TestBuildComponents_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Slots.Driver = config.DriverRedis
	cfg.Env.RedisURL = "redis://" + mr.Addr()

	c, err := buildComponents(context.Background(), cfg, (&Deps{RetryBase: time.Millisecond}).withDefaults(), discardLogger())
	require.NoError(t, err)
	defer c.close()

	assert.Len(t, c.checks, 2)
}

func TestConnectRedis_GivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := connectRedis(context.Background(), "redis://"+addr, time.Millisecond)
	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")

	_, err = connectRedis(context.Background(), "http://"+addr, time.Millisecond)
	errutil.AssertErrorCode(t, err, "REDIS_CONFIG_INVALID")
}

func TestConnectPool_GivesUp(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = connectPool(context.Background(), "postgres://gatekeep@"+addr+"/gatekeep?connect_timeout=1", time.Millisecond)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")

	_, err = connectPool(context.Background(), "postgres://%zz", time.Millisecond)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestRunServe_StartsAndStops(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd, out := testCmd()
	require.NoError(t, runServe(ctx, cmd, cfg, (&Deps{}).withDefaults()))
	assert.Contains(t, out.String(), "gatekeep started")
}

func TestRunServe_ListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig(t)
	cfg.HTTP.Addr = l.Addr().String()

	cmd, out := testCmd()
	err = runServe(context.Background(), cmd, cfg, (&Deps{}).withDefaults())
	errutil.AssertErrorCode(t, err, "HTTPAPI_LISTEN_FAILED")
	assert.NotContains(t, out.String(), "gatekeep started")
}

func TestMonitorServerErrors(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	errs := make(chan error, 1)
	errs <- errors.New("accept: too many open files")

	monitorServerErrors(ctx, cancel, errs, "http")

	require.Error(t, context.Cause(ctx))
	errutil.AssertErrorCode(t, context.Cause(ctx), "SERVER_FAILED")
}
