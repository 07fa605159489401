// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Options controls cookie attributes and server-side slot storage.
type Options struct {
	Path     string        `koanf:"path" yaml:"path"`
	Domain   string        `koanf:"domain" yaml:"domain"`
	Secure   bool          `koanf:"secure" yaml:"secure"`
	HTTPOnly bool          `koanf:"http_only" yaml:"http_only"`
	SameSite http.SameSite `koanf:"-" yaml:"-"`

	// SameSiteName is the textual form of SameSite used in config files.
	SameSiteName string `koanf:"same_site" yaml:"same_site"`

	// SlotCookie names the cookie carrying the server-side slot ID.
	SlotCookie string `koanf:"slot_cookie" yaml:"slot_cookie"`

	// SlotTTL bounds how long idle server-side slots are kept.
	SlotTTL time.Duration `koanf:"slot_ttl" yaml:"slot_ttl"`

	// TrustProxyHeaders makes RequestOrigin honor X-Forwarded-For.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// DefaultOptions returns secure defaults.
func DefaultOptions() Options {
	return Options{
		Path:         "/",
		Secure:       true,
		HTTPOnly:     true,
		SameSite:     http.SameSiteLaxMode,
		SameSiteName: "lax",
		SlotCookie:   "gatekeep_session",
		SlotTTL:      24 * time.Hour,
	}
}

// ParseSameSite converts a config value to http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	case "default":
		return http.SameSiteDefaultMode, nil
	default:
		return 0, oops.Code("TRANSPORT_INVALID_SAMESITE").
			With("same_site", s).
			Errorf("unknown SameSite mode %q", s)
	}
}

// Resolve fills SameSite from SameSiteName and validates the options.
func (o *Options) Resolve() error {
	mode, err := ParseSameSite(o.SameSiteName)
	if err != nil {
		return err
	}
	o.SameSite = mode
	if o.SlotCookie == "" {
		return oops.Code("TRANSPORT_INVALID_OPTIONS").Errorf("slot_cookie is required")
	}
	if o.SlotTTL <= 0 {
		return oops.Code("TRANSPORT_INVALID_OPTIONS").
			With("slot_ttl", o.SlotTTL).
			Errorf("slot_ttl must be positive")
	}
	if o.SameSite == http.SameSiteNoneMode && !o.Secure {
		return oops.Code("TRANSPORT_INVALID_OPTIONS").Errorf("same_site none requires secure cookies")
	}
	return nil
}

// Cookie builds an *http.Cookie with these attributes. A non-zero expiresAt
// sets Expires only; MaxAge stays unset.
func (o Options) Cookie(name, value string, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt.UTC()
	}
	return c
}

// ExpiredCookie builds a cookie that deletes name on the client.
func (o Options) ExpiredCookie(name string) *http.Cookie {
	c := o.Cookie(name, "", time.Time{})
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}
