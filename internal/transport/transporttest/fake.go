// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"maps"
	"time"

	"github.com/holomush/gatekeep/internal/transport"
)

// Cookie is a cookie held by Fake.
type Cookie struct {
	Value     string
	ExpiresAt time.Time
}

// Fake is an in-memory transport. Fields are exported so tests can seed and
// inspect state directly.
type Fake struct {
	Cookies map[string]Cookie
	Slots   map[string]string
	Origin  string

	basicLogin  string
	basicSecret string
	basicOK     bool

	// Now decides which cookies survive NextRequest.
	Now func() time.Time
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Cookies: make(map[string]Cookie),
		Slots:   make(map[string]string),
		Origin:  "192.0.2.1",
		Now:     time.Now,
	}
}

// WithBasicAuth sets basic-auth credentials on the request.
func (f *Fake) WithBasicAuth(login, secret string) *Fake {
	f.basicLogin, f.basicSecret, f.basicOK = login, secret, true
	return f
}

// NextRequest simulates the client's next request: unexpired cookies and all
// slots carry over, basic-auth credentials do not.
func (f *Fake) NextRequest() *Fake {
	next := New()
	next.Origin = f.Origin
	next.Now = f.Now
	now := f.Now()
	for name, c := range f.Cookies {
		if c.ExpiresAt.IsZero() || c.ExpiresAt.After(now) {
			next.Cookies[name] = c
		}
	}
	next.Slots = maps.Clone(f.Slots)
	return next
}

// Cookie implements transport.Transport.
func (f *Fake) Cookie(name string) (string, bool) {
	c, ok := f.Cookies[name]
	return c.Value, ok
}

// SetCookie implements transport.Transport.
func (f *Fake) SetCookie(name, value string, expiresAt time.Time) {
	f.Cookies[name] = Cookie{Value: value, ExpiresAt: expiresAt}
}

// DeleteCookie implements transport.Transport.
func (f *Fake) DeleteCookie(name string) {
	delete(f.Cookies, name)
}

// SessionValue implements transport.Transport.
func (f *Fake) SessionValue(key string) (string, bool) {
	v, ok := f.Slots[key]
	return v, ok
}

// SetSessionValue implements transport.Transport.
func (f *Fake) SetSessionValue(key, value string) {
	f.Slots[key] = value
}

// DeleteSessionValue implements transport.Transport.
func (f *Fake) DeleteSessionValue(key string) {
	delete(f.Slots, key)
}

// RequestOrigin implements transport.Transport.
func (f *Fake) RequestOrigin() string {
	return f.Origin
}

// BasicAuth implements transport.Transport.
func (f *Fake) BasicAuth() (string, string, bool) {
	return f.basicLogin, f.basicSecret, f.basicOK
}

var _ transport.Transport = (*Fake)(nil)
