// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/validation"
	"github.com/holomush/gatekeep/pkg/errutil"
)

// Response messages and field names.
const (
	msgTaken            = "has already been taken"
	msgMalformed        = "request body is malformed"
	msgUnauthenticated  = "you must be logged in"
	msgInternal         = "internal error"
	msgUnknownScope     = "is not a configured scope"
	msgInvalid          = "is invalid"
	currentSecretField  = "current_password"
	scopeField          = "scope"
	loginField          = "login"
	scopeQueryParameter = "scope"
)

type errorBody struct {
	Errors validation.Errors `json:"errors"`
}

type accountView struct {
	ID             string     `json:"id"`
	Login          string     `json:"login,omitempty"`
	Email          string     `json:"email,omitempty"`
	LoginCount     int        `json:"login_count"`
	CurrentLoginAt *time.Time `json:"current_login_at,omitempty"`
	CurrentLoginIP string     `json:"current_login_ip,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP    string     `json:"last_login_ip,omitempty"`
}

type sessionView struct {
	Account    accountView `json:"account"`
	Scope      string      `json:"scope"`
	Strategy   string      `json:"strategy,omitempty"`
	RememberMe bool        `json:"remember_me"`
}

func viewOf(id identity.Authenticatable) accountView {
	acct, ok := id.(*identity.Account)
	if !ok {
		return accountView{ID: id.Key()}
	}
	v := accountView{
		ID:             acct.Key(),
		Login:          acct.Login,
		LoginCount:     acct.LoginCount,
		CurrentLoginAt: acct.CurrentLoginAt,
		CurrentLoginIP: acct.CurrentLoginIP,
		LastLoginAt:    acct.LastLoginAt,
		LastLoginIP:    acct.LastLoginIP,
	}
	if acct.Email != nil {
		v.Email = *acct.Email
	}
	return v
}

type registerRequest struct {
	Login                string `json:"login"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !s.bind(c, &req) {
		return
	}
	t, ok := s.transportOf(c)
	if !ok {
		return
	}

	acct, err := identity.NewAccount(req.Login)
	if err != nil {
		s.invalid(c, validation.Errors{{Field: loginField, Message: err.Error()}})
		return
	}
	if req.Email != "" {
		acct.Email = &req.Email
	}
	if err := s.creds.SetSecret(acct, req.Password); err != nil {
		s.fail(c, "failed to set secret", err)
		return
	}
	acct.Credentials.Confirmation = req.PasswordConfirmation

	if err := s.registry.Save(c.Request.Context(), t, acct, false); err != nil {
		s.saveFailed(c, "failed to register account", err)
		return
	}
	s.log(c).InfoContext(c.Request.Context(), "account registered", "identity", acct.Key())
	s.render(c, http.StatusCreated, viewOf(acct))
}

type loginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	Scope      string `json:"scope"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !s.bind(c, &req) {
		return
	}
	t, ok := s.transportOf(c)
	if !ok {
		return
	}
	scope, ok := s.scope(c, req.Scope)
	if !ok {
		return
	}

	sess, err := s.engine.NewWithCredentials(t, scope, req.Login, req.Password)
	if err != nil {
		s.fail(c, "failed to create session", err)
		return
	}
	sess.SetRememberMe(req.RememberMe)

	saved, err := sess.Save(c.Request.Context())
	if err != nil {
		s.fail(c, "failed to save session", err)
		return
	}
	if !saved {
		s.invalid(c, sess.Errors())
		return
	}
	s.render(c, http.StatusCreated, sessionView{
		Account:    viewOf(sess.Record()),
		Scope:      string(scope),
		RememberMe: sess.RememberMe(),
	})
}

func (s *Server) current(c *gin.Context) {
	sess, ok := s.requireSession(c)
	if !ok {
		return
	}
	s.render(c, http.StatusOK, sessionView{
		Account:  viewOf(sess.Record()),
		Scope:    string(sess.Scope()),
		Strategy: string(sess.Strategy()),
	})
}

// logout clears the scope's cookie and slot whether or not they still
// resolve to an identity.
func (s *Server) logout(c *gin.Context) {
	t, ok := s.transportOf(c)
	if !ok {
		return
	}
	scope, ok := s.scope(c, c.Query(scopeQueryParameter))
	if !ok {
		return
	}
	sess, err := s.engine.New(t, scope)
	if err != nil {
		s.fail(c, "failed to create session", err)
		return
	}
	sess.Destroy(c.Request.Context())
	s.render(c, http.StatusNoContent, nil)
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"current_password"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// changePassword sets a new secret. Saving through the registry re-issues
// every session this client holds for the account and invalidates the
// remember cookies held by other clients.
func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if !s.bind(c, &req) {
		return
	}
	sess, ok := s.requireSession(c)
	if !ok {
		return
	}
	rec := sess.Record()

	matched, err := s.creds.VerifySecret(rec, req.CurrentPassword)
	if err != nil {
		s.fail(c, "failed to verify secret", err)
		return
	}
	if !matched {
		s.invalid(c, validation.Errors{{Field: currentSecretField, Message: msgInvalid}})
		return
	}

	if err := s.creds.SetSecret(rec, req.Password); err != nil {
		s.fail(c, "failed to set secret", err)
		return
	}
	secrets := rec.Secrets()
	if !secrets.Changed {
		// An empty password leaves the record untouched; force the
		// blank-secret validation error.
		secrets.Changed = true
	}
	secrets.Confirmation = req.PasswordConfirmation

	if err := s.registry.Save(c.Request.Context(), sess.Transport(), rec, false); err != nil {
		s.saveFailed(c, "failed to change password", err)
		return
	}
	s.render(c, http.StatusOK, viewOf(rec))
}

// forget rotates the remember token, logging out every other client.
func (s *Server) forget(c *gin.Context) {
	sess, ok := s.requireSession(c)
	if !ok {
		return
	}
	if err := s.registry.Forget(c.Request.Context(), sess.Transport(), sess.Record()); err != nil {
		s.fail(c, "failed to forget sessions", err)
		return
	}
	s.render(c, http.StatusNoContent, nil)
}

func (s *Server) requireSession(c *gin.Context) (*session.Session, bool) {
	t, ok := s.transportOf(c)
	if !ok {
		return nil, false
	}
	scope, ok := s.scope(c, c.Query(scopeQueryParameter))
	if !ok {
		return nil, false
	}
	sess, err := s.engine.Find(c.Request.Context(), t, scope)
	if errors.Is(err, session.ErrNoSession) {
		s.render(c, http.StatusUnauthorized, errorBody{Errors: validation.Errors{{Message: msgUnauthenticated}}})
		return nil, false
	}
	if err != nil {
		s.fail(c, "failed to find session", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) scope(c *gin.Context, raw string) (session.Scope, bool) {
	scope := session.Scope(raw)
	if !slices.Contains(s.engine.Config().Scopes, scope) {
		s.invalid(c, validation.Errors{{Field: scopeField, Message: msgUnknownScope}})
		return "", false
	}
	return scope, true
}

func (s *Server) transportOf(c *gin.Context) (RequestTransport, bool) {
	t, ok := requestTransport(c)
	if !ok {
		s.fail(c, "no transport bound", errors.New("transport missing from request"))
		return nil, false
	}
	return t, true
}

func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.render(c, http.StatusBadRequest, errorBody{Errors: validation.Errors{{Message: msgMalformed}}})
		return false
	}
	return true
}

// saveFailed renders registry save errors: validation and uniqueness
// failures are the client's, anything else is ours.
func (s *Server) saveFailed(c *gin.Context, msg string, err error) {
	var verrs *validation.Errors
	if errors.As(err, &verrs) {
		s.invalid(c, *verrs)
		return
	}
	if field := identity.DuplicateField(err); field != "" {
		s.invalid(c, validation.Errors{{Field: field, Message: msgTaken}})
		return
	}
	s.fail(c, msg, err)
}

func (s *Server) invalid(c *gin.Context, errs validation.Errors) {
	s.render(c, http.StatusUnprocessableEntity, errorBody{Errors: errs})
}

// render commits the transport and writes body as JSON. Both transports
// write cookies as headers, so the commit has to come first.
func (s *Server) render(c *gin.Context, status int, body any) {
	if t, ok := requestTransport(c); ok {
		if err := t.Commit(c.Request.Context()); err != nil {
			s.fail(c, "failed to commit transport", err)
			return
		}
	}
	if body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, body)
}

func (s *Server) fail(c *gin.Context, msg string, err error) {
	errutil.LogError(c.Request.Context(), s.log(c), msg, err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Errors: validation.Errors{{Message: msgInternal}}})
}
