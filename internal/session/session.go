// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/validation"
)

// Mode is how a session was given its credentials.
type Mode int

// Entry modes.
const (
	ModeNone Mode = iota
	ModeCredentials
	ModeUnauthorizedRecord
)

func (m Mode) String() string {
	switch m {
	case ModeCredentials:
		return "credentials"
	case ModeUnauthorizedRecord:
		return "unauthorized_record"
	default:
		return "none"
	}
}

// Session is one authentication attempt bound to one request's transport.
// It is not safe for concurrent use.
type Session struct {
	engine *Engine
	t      transport.Transport
	scope  Scope

	mode   Mode
	login  string
	secret string
	record identity.Authenticatable

	resolved   identity.Authenticatable
	errors     validation.Errors
	newSession bool
	rememberMe bool
	strategy   Strategy
}

// Scope returns the session scope.
func (s *Session) Scope() Scope { return s.scope }

// Mode returns the entry mode.
func (s *Session) Mode() Mode { return s.mode }

// Transport returns the bound transport.
func (s *Session) Transport() transport.Transport { return s.t }

// Record returns the resolved identity, or nil before successful validation.
func (s *Session) Record() identity.Authenticatable { return s.resolved }

// Errors returns the accumulated validation errors.
func (s *Session) Errors() validation.Errors { return s.errors }

// IsNewSession reports whether the session has not been saved or resumed.
func (s *Session) IsNewSession() bool { return s.newSession }

// RememberMe reports whether save writes a persistent cookie.
func (s *Session) RememberMe() bool { return s.rememberMe }

// SetRememberMe sets the remember-me flag.
func (s *Session) SetRememberMe(v bool) { s.rememberMe = v }

// Strategy returns the strategy that resumed the session, or "" for
// sessions built explicitly.
func (s *Session) Strategy() Strategy { return s.strategy }

// SetCredentials switches the session to credentials mode.
func (s *Session) SetCredentials(login, secret string) {
	s.mode = ModeCredentials
	s.login = login
	s.secret = secret
	s.record = nil
}

// SetUnauthorizedRecord switches the session to unauthorized-record mode.
func (s *Session) SetUnauthorizedRecord(id identity.Authenticatable) {
	s.mode = ModeUnauthorizedRecord
	s.record = id
	s.login = ""
	s.secret = ""
}

// Validate runs the authentication checks in order and stops at the first
// failing step. A non-nil error means a collaborator failed; validation
// failures are reported through Errors.
func (s *Session) Validate(ctx context.Context) (bool, error) {
	s.errors.Clear()
	s.resolved = nil
	cfg := &s.engine.cfg

	var rec identity.Authenticatable
	switch s.mode {
	case ModeCredentials:
		if s.login == "" {
			s.errors.Add(cfg.LoginField, msgBlank)
		}
		if s.secret == "" {
			s.errors.Add(cfg.SecretField, msgBlank)
		}
		if !s.errors.Empty() {
			return false, nil
		}

		found, err := s.engine.repo.FindBy(ctx, cfg.LoginField, s.login)
		if errors.Is(err, identity.ErrNotFound) {
			s.errors.Add(cfg.LoginField, msgNotFound)
			return false, nil
		}
		if err != nil {
			return false, oops.Code("SESSION_LOOKUP_FAILED").
				With("field", cfg.LoginField).
				With("scope", s.scope).
				Wrap(err)
		}

		if s.lockedOut(found) {
			return false, nil
		}

		ok, err := s.engine.creds.VerifySecret(found, s.secret)
		if err != nil {
			return false, oops.Code("SESSION_VERIFY_FAILED").With("scope", s.scope).Wrap(err)
		}
		if !ok {
			s.errors.Add(cfg.SecretField, msgInvalid)
			s.recordFailure(ctx, found)
			return false, nil
		}
		rec = found

	case ModeUnauthorizedRecord:
		if s.record == nil {
			s.errors.AddBase(msgBlankRecord)
			return false, nil
		}
		if s.record.IsNew() {
			s.errors.AddBase(msgNewRecord)
			return false, nil
		}
		if s.lockedOut(s.record) {
			return false, nil
		}
		rec = s.record

	default:
		s.errors.AddBase(msgNoCredentials)
		return false, nil
	}

	if reporter, ok := rec.(identity.StatusReporter); ok {
		for _, status := range identity.GatedStatuses {
			if value, exposed := reporter.Status(status); exposed && !value {
				s.errors.AddBase(fmt.Sprintf(msgStatusTemplate, status.Participle()))
				return false, nil
			}
		}
	}

	s.resolved = rec
	return true, nil
}

func (s *Session) lockedOut(rec identity.Authenticatable) bool {
	tracker, ok := rec.(identity.FailureTracker)
	if !ok {
		return false
	}
	cfg := &s.engine.cfg
	result := identity.CheckLockout(tracker, cfg.FailedLoginLimit, cfg.FailedLoginBan, s.engine.now())
	if !result.IsLockedOut {
		return false
	}
	observability.RecordLockout()
	s.errors.AddBase(msgLockedOut)
	return true
}

// recordFailure bumps the failure counter. Persisting it is best effort.
func (s *Session) recordFailure(ctx context.Context, rec identity.Authenticatable) {
	tracker, ok := rec.(identity.FailureTracker)
	if !ok {
		return
	}
	tracker.RecordFailedLogin(s.engine.now())
	if err := s.engine.persist(ctx, s.t, rec); err != nil {
		s.engine.logger.WarnContext(ctx, "failed to persist failed login",
			"scope", s.scope, "identity", rec.Key(), "error", err)
	}
}

// Save validates the session and, on success, writes the remember token to
// the transport and persists the identity. It returns false without an error
// when validation fails; inspect Errors for details.
func (s *Session) Save(ctx context.Context) (saved bool, err error) {
	ctx, span := tracer.Start(ctx, "session.save",
		trace.WithAttributes(
			attribute.String("session.scope", string(s.scope)),
			attribute.String("session.mode", s.mode.String()),
		))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.RecordSessionSave(observability.OutcomeError)
		case saved:
			observability.RecordSessionSave(observability.OutcomeSuccess)
		default:
			observability.RecordSessionSave(observability.OutcomeFailure)
		}
		span.End()
	}()

	ok, err := s.Validate(ctx)
	if err != nil || !ok {
		return false, err
	}

	rec := s.resolved
	secrets := rec.Secrets()
	if secrets.RememberToken == "" {
		token, err := s.engine.creds.UniqueToken()
		if err != nil {
			return false, oops.Code("SESSION_SAVE_FAILED").With("scope", s.scope).Wrap(err)
		}
		secrets.RememberToken = token
	}

	now := s.engine.now()
	var expiresAt time.Time
	if s.rememberMe {
		expiresAt = now.Add(s.engine.cfg.RememberFor)
	}
	s.t.SetSessionValue(s.engine.SessionKey(s.scope), secrets.RememberToken)
	s.t.SetCookie(s.engine.CookieKey(s.scope), secrets.RememberToken, expiresAt)

	if s.newSession {
		if counter, ok := rec.(identity.LoginCounter); ok {
			counter.IncrementLoginCount()
		}
		if tracker, ok := rec.(identity.LoginTracker); ok {
			tracker.RecordLogin(now, s.t.RequestOrigin())
		}
	}
	if tracker, ok := rec.(identity.FailureTracker); ok {
		tracker.ResetFailedLogins()
	}
	if tracker, ok := rec.(identity.ActivityTracker); ok {
		tracker.TouchActivity(now)
	}

	if err := s.engine.persist(ctx, s.t, rec); err != nil {
		return false, oops.Code("SESSION_SAVE_FAILED").
			With("scope", s.scope).
			With("identity", rec.Key()).
			Wrap(err)
	}

	s.newSession = false
	s.engine.logger.InfoContext(ctx, "session saved",
		"scope", s.scope, "identity", rec.Key(), "remember_me", s.rememberMe)
	return true, nil
}

// SaveStrict is Save with validation failures turned into an error. The
// error wraps *InvalidError.
func (s *Session) SaveStrict(ctx context.Context) error {
	ok, err := s.Save(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return oops.Code("SESSION_INVALID").
			With("scope", s.scope).
			Wrap(&InvalidError{Session: s})
	}
	return nil
}

// Destroy clears the session and removes its cookie and slot.
func (s *Session) Destroy(ctx context.Context) {
	_, span := tracer.Start(ctx, "session.destroy",
		trace.WithAttributes(attribute.String("session.scope", string(s.scope))))
	defer span.End()

	s.errors.Clear()
	s.resolved = nil
	s.t.DeleteCookie(s.engine.CookieKey(s.scope))
	s.t.DeleteSessionValue(s.engine.SessionKey(s.scope))

	observability.RecordSessionDestroy()
	s.engine.logger.InfoContext(ctx, "session destroyed", "scope", s.scope)
}

// Stale reports whether the resolved identity's last activity is older than
// the logged-in timeout. Identities without activity tracking never go stale.
func (s *Session) Stale() bool {
	tracker, ok := s.resolved.(identity.ActivityTracker)
	if !ok {
		return false
	}
	last := tracker.LastActivity()
	if last == nil {
		return false
	}
	return s.engine.now().Sub(*last) > s.engine.cfg.LoggedInTimeout
}
