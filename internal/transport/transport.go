// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package transport abstracts the request-side storage the session engine
// writes through to: cookies, server-side session slots, the request origin
// and HTTP basic-auth credentials.
//
// A Transport is bound to exactly one request. Reads observe that request's
// own writes and deletes, so a token written early in a request is visible
// to later lookups in the same request.
package transport

import (
	"context"
	"time"
)

// Transport is the per-request capability the session engine depends on.
type Transport interface {
	// Cookie returns the named cookie value.
	Cookie(name string) (string, bool)

	// SetCookie writes a cookie. A zero expiresAt writes a session cookie.
	SetCookie(name, value string, expiresAt time.Time)

	// DeleteCookie expires the named cookie.
	DeleteCookie(name string)

	// SessionValue returns the value in the named server-side session slot.
	SessionValue(key string) (string, bool)

	// SetSessionValue writes a server-side session slot.
	SetSessionValue(key, value string)

	// DeleteSessionValue removes a server-side session slot.
	DeleteSessionValue(key string)

	// RequestOrigin returns the network origin of the request.
	RequestOrigin() string

	// BasicAuth returns credentials from the Authorization header.
	BasicAuth() (login, secret string, ok bool)
}

// Committer is implemented by transports that buffer session-slot writes
// until the response is about to be written.
type Committer interface {
	Commit(ctx context.Context) error
}

type ctxKey struct{}

// NewContext returns a context carrying t.
func NewContext(ctx context.Context, t Transport) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the transport bound to ctx, if any.
func FromContext(ctx context.Context) (Transport, bool) {
	t, ok := ctx.Value(ctxKey{}).(Transport)
	return t, ok && t != nil
}
