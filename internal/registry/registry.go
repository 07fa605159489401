// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package registry saves identities while keeping the sessions they hold in
// the current request consistent.
//
// When an identity is created the primary scope is logged in. When an
// existing identity is saved, every scope whose session belongs to it is
// snapshotted first and re-saved afterwards, so cookies and session slots pick
// up a rotated remember token. Saves that the session engine itself triggers
// skip all of this.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/validation"
)

var tracer = otel.Tracer("gatekeep/registry")

// DefaultTokenRetries is how many times a save is retried with a fresh
// remember token after a token collision.
const DefaultTokenRetries = 3

// Credentials is the slice of the credential store the registry needs.
type Credentials interface {
	Validate(id identity.Authenticatable) validation.Errors
	UniqueToken() (string, error)
	ResetRememberToken(id identity.Authenticatable) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithTokenRetries overrides DefaultTokenRetries.
func WithTokenRetries(n uint64) Option {
	return func(r *Registry) {
		r.tokenRetries = n
	}
}

// Registry owns identity saves for request-bound callers.
type Registry struct {
	engine       *session.Engine
	repo         session.Repository
	creds        Credentials
	logger       *slog.Logger
	tokenRetries uint64
}

// New creates a registry. Sessions created through Engine() persist
// identities through the registry.
func New(engine *session.Engine, creds Credentials, opts ...Option) (*Registry, error) {
	if engine == nil {
		return nil, oops.Code("REGISTRY_INVALID_CONFIG").Errorf("session engine is required")
	}
	if creds == nil {
		return nil, oops.Code("REGISTRY_INVALID_CONFIG").Errorf("credentials are required")
	}

	r := &Registry{
		repo:         engine.Repository(),
		creds:        creds,
		logger:       slog.Default(),
		tokenRetries: DefaultTokenRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = engine.WithPersister(r)
	return r, nil
}

// Engine returns the session engine wired to this registry.
func (r *Registry) Engine() *session.Engine {
	return r.engine
}

// Persist implements session.Persister.
func (r *Registry) Persist(ctx context.Context, t transport.Transport, id identity.Authenticatable, triggeredBySessionSave bool) error {
	return r.Save(ctx, t, id, triggeredBySessionSave)
}

// Save persists id. Unless triggeredBySessionSave is set, the credential
// validation hook runs first and sibling sessions in t are maintained. A nil
// t saves without touching any session.
func (r *Registry) Save(ctx context.Context, t transport.Transport, id identity.Authenticatable, triggeredBySessionSave bool) (err error) {
	if triggeredBySessionSave {
		return r.repo.Save(ctx, id)
	}

	ctx, span := tracer.Start(ctx, "registry.save",
		trace.WithAttributes(
			attribute.String("identity.key", id.Key()),
			attribute.Bool("identity.new", id.IsNew()),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if errs := r.creds.Validate(id); !errs.Empty() {
		return oops.Code("IDENTITY_INVALID").
			With("identity", id.Key()).
			Wrap(&errs)
	}

	isNew := id.IsNew()
	var siblings []*session.Session
	if t != nil && !isNew {
		siblings, err = r.snapshot(ctx, t, id)
		if err != nil {
			return err
		}
	}

	if err := r.saveWithFreshToken(ctx, id); err != nil {
		return err
	}
	id.Secrets().ClearTransient()

	if t == nil {
		return nil
	}
	if isNew {
		return r.logIn(ctx, t, id)
	}
	return r.refresh(ctx, siblings, id)
}

// Forget rotates the remember token, which logs the identity out of every
// other device, and refreshes the sessions held in t.
func (r *Registry) Forget(ctx context.Context, t transport.Transport, id identity.Authenticatable) error {
	if err := r.creds.ResetRememberToken(id); err != nil {
		return oops.Code("REGISTRY_FORGET_FAILED").With("identity", id.Key()).Wrap(err)
	}
	return r.Save(ctx, t, id, false)
}

// snapshot collects the sessions stored in t, across configured scopes,
// that belong to id. Basic-auth headers are not consulted.
func (r *Registry) snapshot(ctx context.Context, t transport.Transport, id identity.Authenticatable) ([]*session.Session, error) {
	var held []*session.Session
	for _, scope := range r.engine.Config().Scopes {
		s, err := r.engine.ResolveStored(ctx, t, scope)
		if errors.Is(err, session.ErrNoSession) {
			continue
		}
		if err != nil {
			return nil, oops.Code("REGISTRY_SNAPSHOT_FAILED").With("scope", scope).Wrap(err)
		}
		if identity.Same(s.Record(), id) {
			held = append(held, s)
		}
	}
	return held, nil
}

// saveWithFreshToken retries a save whose remember token collides with
// another record's.
func (r *Registry) saveWithFreshToken(ctx context.Context, id identity.Authenticatable) error {
	tokenField := r.engine.Config().RememberTokenField
	backoff := retry.WithMaxRetries(r.tokenRetries, retry.NewConstant(time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.repo.Save(ctx, id)
		if err == nil {
			return nil
		}
		if identity.DuplicateField(err) != tokenField || id.Secrets().RememberToken == "" {
			return err
		}
		if rotateErr := r.creds.ResetRememberToken(id); rotateErr != nil {
			return rotateErr
		}
		r.logger.WarnContext(ctx, "remember token collision, retrying with a fresh token", "identity", id.Key())
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.Code("REGISTRY_SAVE_FAILED").With("identity", id.Key()).Wrap(err)
	}
	return nil
}

// logIn starts a primary session for a newly created identity unless one is
// already active for it.
func (r *Registry) logIn(ctx context.Context, t transport.Transport, id identity.Authenticatable) error {
	scope := r.engine.Config().PrimaryScope()

	current, err := r.engine.ResolveStored(ctx, t, scope)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return oops.Code("REGISTRY_LOGIN_FAILED").With("scope", scope).Wrap(err)
	}
	if current != nil && identity.Same(current.Record(), id) {
		return nil
	}

	s, err := r.engine.NewWithRecord(t, scope, id)
	if err != nil {
		return err
	}
	ok, err := s.Save(ctx)
	if err != nil {
		return oops.Code("REGISTRY_LOGIN_FAILED").With("scope", scope).Wrap(err)
	}
	if !ok {
		// Status gates can legitimately block the new identity.
		errs := s.Errors()
		r.logger.InfoContext(ctx, "new identity not logged in",
			"identity", id.Key(), "errors", errs.Error())
	}
	return nil
}

// refresh re-attaches id to each snapshotted session and saves it so the
// transport carries the current remember token.
func (r *Registry) refresh(ctx context.Context, siblings []*session.Session, id identity.Authenticatable) error {
	for _, s := range siblings {
		s.SetUnauthorizedRecord(id)
		ok, err := s.Save(ctx)
		if err != nil {
			return oops.Code("REGISTRY_REFRESH_FAILED").With("scope", s.Scope()).Wrap(err)
		}
		if !ok {
			errs := s.Errors()
			r.logger.InfoContext(ctx, "sibling session no longer valid",
				"scope", s.Scope(), "identity", id.Key(), "errors", errs.Error())
			continue
		}
		observability.RecordSessionRotation()
	}
	return nil
}

var _ session.Persister = (*Registry)(nil)
