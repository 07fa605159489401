// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"context"
	"maps"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// HTTP adapts a net/http request/response pair. Cookies are written to the
// response immediately; slot writes are buffered until Commit.
type HTTP struct {
	w     http.ResponseWriter
	r     *http.Request
	opts  Options
	slots SlotStore

	cookies Overlay
	slotID  string
	values  map[string]string
	dirty   bool
}

// NewHTTP binds a transport to one request and loads its session slots.
func NewHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request, slots SlotStore, opts Options) (*HTTP, error) {
	if slots == nil {
		return nil, oops.Code("TRANSPORT_INVALID_OPTIONS").Errorf("slot store is required")
	}
	h := &HTTP{w: w, r: r, opts: opts, slots: slots, values: map[string]string{}}

	if c, err := r.Cookie(opts.SlotCookie); err == nil && c.Value != "" {
		values, err := slots.Load(ctx, c.Value)
		if err != nil {
			return nil, oops.Code("TRANSPORT_SLOT_LOAD_FAILED").Wrap(err)
		}
		// Unknown IDs are never adopted; Commit mints a fresh one.
		if len(values) > 0 {
			h.slotID = c.Value
			h.values = values
		}
	}
	return h, nil
}

// Cookie implements Transport.
func (h *HTTP) Cookie(name string) (string, bool) {
	if v, present, known := h.cookies.Lookup(name); known {
		return v, present
	}
	c, err := h.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// SetCookie implements Transport.
func (h *HTTP) SetCookie(name, value string, expiresAt time.Time) {
	h.cookies.Set(name, value)
	http.SetCookie(h.w, h.opts.Cookie(name, value, expiresAt))
}

// DeleteCookie implements Transport.
func (h *HTTP) DeleteCookie(name string) {
	h.cookies.Delete(name)
	http.SetCookie(h.w, h.opts.ExpiredCookie(name))
}

// SessionValue implements Transport.
func (h *HTTP) SessionValue(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// SetSessionValue implements Transport.
func (h *HTTP) SetSessionValue(key, value string) {
	h.values[key] = value
	h.dirty = true
}

// DeleteSessionValue implements Transport.
func (h *HTTP) DeleteSessionValue(key string) {
	if _, ok := h.values[key]; ok {
		delete(h.values, key)
		h.dirty = true
	}
}

// RequestOrigin implements Transport.
func (h *HTTP) RequestOrigin() string {
	return requestOrigin(h.r, h.opts.TrustProxyHeaders)
}

// BasicAuth implements Transport.
func (h *HTTP) BasicAuth() (string, string, bool) {
	return h.r.BasicAuth()
}

// Commit persists buffered slot writes. It must run before the response
// headers are sent because it may set the slot cookie.
func (h *HTTP) Commit(ctx context.Context) error {
	if !h.dirty {
		return nil
	}

	if len(h.values) == 0 {
		if h.slotID != "" {
			if err := h.slots.Delete(ctx, h.slotID); err != nil {
				return oops.Code("TRANSPORT_SLOT_SAVE_FAILED").Wrap(err)
			}
			http.SetCookie(h.w, h.opts.ExpiredCookie(h.opts.SlotCookie))
			h.slotID = ""
		}
		h.dirty = false
		return nil
	}

	if h.slotID == "" {
		h.slotID = uuid.NewString()
	}
	if err := h.slots.Save(ctx, h.slotID, maps.Clone(h.values), h.opts.SlotTTL); err != nil {
		return oops.Code("TRANSPORT_SLOT_SAVE_FAILED").Wrap(err)
	}
	http.SetCookie(h.w, h.opts.Cookie(h.opts.SlotCookie, h.slotID, time.Time{}))
	h.dirty = false
	return nil
}

func requestOrigin(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

var (
	_ Transport = (*HTTP)(nil)
	_ Committer = (*HTTP)(nil)
)
