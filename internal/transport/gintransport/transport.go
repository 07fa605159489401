// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package gintransport adapts a gin request to transport.Transport, using
// gin-contrib/sessions for the server-side slots.
package gintransport

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/transport"
)

// Transport wraps a gin.Context. The sessions middleware must run before
// New is called.
type Transport struct {
	c       *gin.Context
	sess    sessions.Session
	opts    transport.Options
	cookies transport.Overlay
	dirty   bool
}

// New binds a transport to c.
func New(c *gin.Context, opts transport.Options) *Transport {
	return &Transport{c: c, sess: sessions.Default(c), opts: opts}
}

// Cookie implements transport.Transport.
func (t *Transport) Cookie(name string) (string, bool) {
	if v, present, known := t.cookies.Lookup(name); known {
		return v, present
	}
	v, err := t.c.Cookie(name)
	if err != nil {
		return "", false
	}
	return v, true
}

// SetCookie implements transport.Transport.
func (t *Transport) SetCookie(name, value string, expiresAt time.Time) {
	t.cookies.Set(name, value)
	http.SetCookie(t.c.Writer, t.opts.Cookie(name, value, expiresAt))
}

// DeleteCookie implements transport.Transport.
func (t *Transport) DeleteCookie(name string) {
	t.cookies.Delete(name)
	http.SetCookie(t.c.Writer, t.opts.ExpiredCookie(name))
}

// SessionValue implements transport.Transport.
func (t *Transport) SessionValue(key string) (string, bool) {
	v, ok := t.sess.Get(key).(string)
	return v, ok
}

// SetSessionValue implements transport.Transport.
func (t *Transport) SetSessionValue(key, value string) {
	t.sess.Set(key, value)
	t.dirty = true
}

// DeleteSessionValue implements transport.Transport.
func (t *Transport) DeleteSessionValue(key string) {
	if t.sess.Get(key) == nil {
		return
	}
	t.sess.Delete(key)
	t.dirty = true
}

// RequestOrigin implements transport.Transport.
func (t *Transport) RequestOrigin() string {
	return t.c.ClientIP()
}

// BasicAuth implements transport.Transport.
func (t *Transport) BasicAuth() (string, string, bool) {
	return t.c.Request.BasicAuth()
}

// Commit saves the gin session if any slot changed. It must run before the
// response body is written.
func (t *Transport) Commit(_ context.Context) error {
	if !t.dirty {
		return nil
	}
	if err := t.sess.Save(); err != nil {
		return oops.Code("TRANSPORT_SLOT_SAVE_FAILED").Wrap(err)
	}
	t.dirty = false
	return nil
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Committer = (*Transport)(nil)
)
