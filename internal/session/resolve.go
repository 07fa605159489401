// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/transport"
)

// Resolve tries each configured strategy in order and returns the first
// session that validates. It has no side effects on the identity beyond
// what validation itself records. ErrNoSession is returned when every
// strategy misses.
func (e *Engine) Resolve(ctx context.Context, t transport.Transport, scope Scope) (*Session, error) {
	return e.resolve(ctx, t, scope, e.cfg.Strategies)
}

// ResolveStored is Resolve restricted to the session and cookie strategies.
// Request credentials such as an HTTP basic header are ignored, so no login
// attempt is recorded and no slot or cookie is written for them.
func (e *Engine) ResolveStored(ctx context.Context, t transport.Transport, scope Scope) (*Session, error) {
	stored := make([]Strategy, 0, len(e.cfg.Strategies))
	for _, strategy := range e.cfg.Strategies {
		if strategy != StrategyHTTPAuth {
			stored = append(stored, strategy)
		}
	}
	return e.resolve(ctx, t, scope, stored)
}

func (e *Engine) resolve(ctx context.Context, t transport.Transport, scope Scope, strategies []Strategy) (s *Session, err error) {
	if t == nil {
		return nil, oops.Code("SESSION_NO_TRANSPORT").
			With("scope", scope).
			Errorf("a transport must be bound before resolving a session")
	}

	ctx, span := tracer.Start(ctx, "session.resolve",
		trace.WithAttributes(attribute.String("session.scope", string(scope))))
	defer func() {
		if err != nil && !errors.Is(err, ErrNoSession) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if s != nil {
			span.SetAttributes(attribute.String("session.strategy", string(s.strategy)))
		}
		span.End()
	}()

	for _, strategy := range strategies {
		s, err = e.try(ctx, t, scope, strategy)
		if err != nil {
			observability.RecordAuthAttempt(string(strategy), observability.OutcomeError)
			return nil, err
		}
		if s != nil {
			observability.RecordAuthAttempt(string(strategy), observability.OutcomeSuccess)
			return s, nil
		}
		observability.RecordAuthAttempt(string(strategy), observability.OutcomeMiss)
		e.logger.DebugContext(ctx, "session strategy missed", "scope", scope, "strategy", strategy)
	}
	return nil, ErrNoSession
}

func (e *Engine) try(ctx context.Context, t transport.Transport, scope Scope, strategy Strategy) (*Session, error) {
	switch strategy {
	case StrategySession:
		token, ok := t.SessionValue(e.SessionKey(scope))
		if !ok {
			return nil, nil
		}
		return e.resumeByToken(ctx, t, scope, strategy, token)

	case StrategyCookie:
		token, ok := t.Cookie(e.CookieKey(scope))
		if !ok {
			return nil, nil
		}
		s, err := e.resumeByToken(ctx, t, scope, strategy, token)
		if s != nil {
			t.SetSessionValue(e.SessionKey(scope), token)
		}
		return s, err

	case StrategyHTTPAuth:
		login, secret, ok := t.BasicAuth()
		if !ok {
			return nil, nil
		}
		s, err := e.NewWithCredentials(t, scope, login, secret)
		if err != nil {
			return nil, err
		}
		valid, err := s.Validate(ctx)
		if err != nil || !valid {
			return nil, err
		}
		if token := s.resolved.Secrets().RememberToken; token != "" {
			t.SetSessionValue(e.SessionKey(scope), token)
		}
		s.newSession = false
		s.strategy = strategy
		return s, nil
	}
	return nil, nil
}

// resumeByToken loads the record owning token and validates it as an
// unauthorized record.
func (e *Engine) resumeByToken(ctx context.Context, t transport.Transport, scope Scope, strategy Strategy, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	rec, err := e.repo.FindBy(ctx, e.cfg.RememberTokenField, token)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").
			With("field", e.cfg.RememberTokenField).
			With("scope", scope).
			With("strategy", strategy).
			Wrap(err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.Secrets().RememberToken), []byte(token)) != 1 {
		return nil, nil
	}

	s, err := e.NewWithRecord(t, scope, rec)
	if err != nil {
		return nil, err
	}
	valid, err := s.Validate(ctx)
	if err != nil || !valid {
		return nil, err
	}
	if e.cfg.LogoutOnTimeout && s.Stale() {
		e.logger.DebugContext(ctx, "session expired by inactivity", "scope", scope, "strategy", strategy)
		return nil, nil
	}

	s.newSession = false
	s.strategy = strategy
	return s, nil
}
