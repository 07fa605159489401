// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/transport"
)

var tracer = otel.Tracer("gatekeep/session")

// Repository finds and saves identity records.
type Repository interface {
	// FindBy looks a record up by a unique field. It returns an error
	// matching identity.ErrNotFound when nothing matches.
	FindBy(ctx context.Context, field, value string) (identity.Authenticatable, error)

	// Save persists the record.
	Save(ctx context.Context, id identity.Authenticatable) error
}

// Credentials verifies secrets and mints tokens.
type Credentials interface {
	VerifySecret(id identity.Authenticatable, attempt string) (bool, error)
	UniqueToken() (string, error)
}

// Persister saves an identity on behalf of the engine. The engine always
// passes triggeredBySessionSave=true so the persister can skip work that
// would re-enter session saving.
type Persister interface {
	Persist(ctx context.Context, t transport.Transport, id identity.Authenticatable, triggeredBySessionSave bool) error
}

// repoPersister persists straight through the repository.
type repoPersister struct {
	repo Repository
}

func (p repoPersister) Persist(ctx context.Context, _ transport.Transport, id identity.Authenticatable, _ bool) error {
	return p.repo.Save(ctx, id)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine builds and resolves sessions. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	cfg       Config
	repo      Repository
	creds     Credentials
	persister Persister
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine.
func NewEngine(cfg Config, repo Repository, creds Credentials, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("repository is required")
	}
	if creds == nil {
		return nil, oops.Code("SESSION_INVALID_CONFIG").Errorf("credentials are required")
	}

	e := &Engine{
		cfg:       cfg.clone(),
		repo:      repo,
		creds:     creds,
		persister: repoPersister{repo: repo},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg.clone()
}

// Repository returns the engine's repository.
func (e *Engine) Repository() Repository {
	return e.repo
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// WithPersister returns a copy of the engine that saves identities through p.
func (e *Engine) WithPersister(p Persister) *Engine {
	c := *e
	c.persister = p
	return &c
}

// CookieKey returns the cookie name for scope.
func (e *Engine) CookieKey(scope Scope) string {
	return Key(scope, e.cfg.CookieKey)
}

// SessionKey returns the session slot key for scope.
func (e *Engine) SessionKey(scope Scope) string {
	return Key(scope, e.cfg.SessionKey)
}

// New creates a session with no credentials.
func (e *Engine) New(t transport.Transport, scope Scope) (*Session, error) {
	if t == nil {
		return nil, oops.Code("SESSION_NO_TRANSPORT").
			With("scope", scope).
			Errorf("a transport must be bound before creating a session")
	}
	return &Session{engine: e, t: t, scope: scope, mode: ModeNone, newSession: true}, nil
}

// NewWithCredentials creates a session for an explicit login attempt.
func (e *Engine) NewWithCredentials(t transport.Transport, scope Scope, login, secret string) (*Session, error) {
	s, err := e.New(t, scope)
	if err != nil {
		return nil, err
	}
	s.SetCredentials(login, secret)
	return s, nil
}

// NewWithRecord creates a session around an already loaded record, skipping
// the login and secret checks.
func (e *Engine) NewWithRecord(t transport.Transport, scope Scope, id identity.Authenticatable) (*Session, error) {
	s, err := e.New(t, scope)
	if err != nil {
		return nil, err
	}
	s.SetUnauthorizedRecord(id)
	return s, nil
}

// Find resolves a session for scope and, when configured, records the
// request as activity on the identity.
func (e *Engine) Find(ctx context.Context, t transport.Transport, scope Scope) (*Session, error) {
	s, err := e.Resolve(ctx, t, scope)
	if err != nil {
		return nil, err
	}
	if e.cfg.TouchActivity {
		e.touch(ctx, s)
	}
	return s, nil
}

func (e *Engine) touch(ctx context.Context, s *Session) {
	tracker, ok := s.resolved.(identity.ActivityTracker)
	if !ok {
		return
	}
	tracker.TouchActivity(e.now())
	if err := e.persister.Persist(ctx, s.t, s.resolved, true); err != nil {
		e.logger.WarnContext(ctx, "failed to persist activity",
			"scope", s.scope, "identity", s.resolved.Key(), "error", err)
	}
}

func (e *Engine) persist(ctx context.Context, t transport.Transport, id identity.Authenticatable) error {
	return e.persister.Persist(ctx, t, id, true)
}
