// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/registry"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/store/postgres"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Authentication Integration Suite")
}

// testEnv holds the container and the stack wired on top of it.
type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	connStr   string
	pool      *pgxpool.Pool

	Accounts *postgres.AccountRepository
	Creds    *credential.Store
	Registry *registry.Registry
	Engine   *session.Engine
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupAuthTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupAuthTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:18-alpine",
		tcpostgres.WithDatabase("gatekeep_test"),
		tcpostgres.WithUsername("gatekeep"),
		tcpostgres.WithPassword("gatekeep"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := postgres.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	upErr := migrator.Up()
	_ = migrator.Close()
	if upErr != nil {
		_ = container.Terminate(ctx)
		return nil, upErr
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	e := &testEnv{ctx: ctx, container: container, connStr: connStr, pool: pool}
	if err := e.wire(); err != nil {
		e.cleanup()
		return nil, err
	}
	return e, nil
}

// wire builds the repository, engine and registry over the migrated schema.
func (e *testEnv) wire() error {
	features, err := postgres.DetectFeatures(e.ctx, e.pool)
	if err != nil {
		return err
	}
	e.Accounts = postgres.NewAccountRepository(e.pool, features)

	e.Creds, err = credential.NewStore(credential.Argon2id{}, credential.DefaultConfig())
	if err != nil {
		return err
	}
	engine, err := session.NewEngine(session.DefaultConfig(), e.Accounts, e.Creds)
	if err != nil {
		return err
	}
	e.Registry, err = registry.New(engine, e.Creds)
	if err != nil {
		return err
	}
	e.Engine = e.Registry.Engine()
	return nil
}

func (e *testEnv) cleanup() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// cleanupAccounts empties the accounts table between specs.
func cleanupAccounts(ctx context.Context) {
	_, err := env.pool.Exec(ctx, "TRUNCATE accounts")
	Expect(err).NotTo(HaveOccurred())
}
