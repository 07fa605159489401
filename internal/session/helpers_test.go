// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/store/memory"
	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/transport/transporttest"
)

type fixture struct {
	repo   *memory.Repository
	creds  *credential.Store
	engine *session.Engine
	now    time.Time
}

func newFixture(t *testing.T, mutate ...func(*session.Config)) *fixture {
	t.Helper()

	creds, err := credential.NewStore(credential.SHA512{Stretches: 1}, credential.DefaultConfig())
	require.NoError(t, err)

	f := &fixture{
		repo:  memory.New(),
		creds: creds,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	cfg := session.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f.engine, err = session.NewEngine(cfg, f.repo, creds, session.WithClock(f.clock))
	require.NoError(t, err)
	return f
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) transport() *transporttest.Fake {
	fake := transporttest.New()
	fake.Now = f.clock
	return fake
}

func (f *fixture) register(t *testing.T, login, secret string, opts ...func(*identity.Account)) *identity.Account {
	t.Helper()
	acct, err := identity.NewAccount(login)
	require.NoError(t, err)
	require.NoError(t, f.creds.SetSecret(acct, secret))
	for _, opt := range opts {
		opt(acct)
	}
	require.NoError(t, f.repo.Save(context.Background(), acct))
	acct.Credentials.ClearTransient()
	return acct
}

func (f *fixture) load(t *testing.T, login string) *identity.Account {
	t.Helper()
	found, err := f.repo.FindBy(context.Background(), memory.FieldLogin, login)
	require.NoError(t, err)
	return found.(*identity.Account)
}

func (f *fixture) login(t *testing.T, tr transport.Transport, scope session.Scope, login, secret string) *session.Session {
	t.Helper()
	s, err := f.engine.NewWithCredentials(tr, scope, login, secret)
	require.NoError(t, err)
	ok, err := s.Save(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "login failed: %v", s.Errors())
	return s
}

// mockRepository is a mock for session.Repository.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) FindBy(ctx context.Context, field, value string) (identity.Authenticatable, error) {
	args := m.Called(ctx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(identity.Authenticatable), args.Error(1)
}

func (m *mockRepository) Save(ctx context.Context, id identity.Authenticatable) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// recordingPersister records every Persist call.
type recordingPersister struct {
	repo  session.Repository
	calls []bool
}

func (p *recordingPersister) Persist(ctx context.Context, _ transport.Transport, id identity.Authenticatable, triggered bool) error {
	p.calls = append(p.calls, triggered)
	return p.repo.Save(ctx, id)
}
