// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"slices"
	"time"

	"github.com/samber/oops"
)

// Scope discriminates concurrent sessions held by one identity. The empty
// scope is the primary session.
type Scope string

// Strategy names a resolution strategy.
type Strategy string

// Resolution strategies.
const (
	StrategySession  Strategy = "session"
	StrategyCookie   Strategy = "cookie"
	StrategyHTTPAuth Strategy = "http_auth"
)

// Config is resolved once at startup. The engine keeps its own copy.
type Config struct {
	// LoginField is the repository field used to look up credentials logins.
	LoginField string `koanf:"login_field" yaml:"login_field"`

	// SecretField names the field secret errors are attached to.
	SecretField string `koanf:"secret_field" yaml:"secret_field"`

	// RememberTokenField is the repository field holding remember tokens.
	RememberTokenField string `koanf:"remember_token_field" yaml:"remember_token_field"`

	// Strategies are tried in order by Find.
	Strategies []Strategy `koanf:"strategies" yaml:"strategies"`

	// CookieKey and SessionKey are base keys, prefixed per scope.
	CookieKey  string `koanf:"cookie_key" yaml:"cookie_key"`
	SessionKey string `koanf:"session_key" yaml:"session_key"`

	// RememberFor is the cookie lifetime when remember-me is set.
	RememberFor time.Duration `koanf:"remember_for" yaml:"remember_for"`

	// Scopes are the scopes kept in sync when an identity changes. The first
	// one is the primary scope used for auto-login on creation.
	Scopes []Scope `koanf:"scopes" yaml:"scopes"`

	// LoggedInTimeout is the activity window for "logged in" checks.
	LoggedInTimeout time.Duration `koanf:"logged_in_timeout" yaml:"logged_in_timeout"`

	// LogoutOnTimeout stops the session and cookie strategies from resuming
	// a session whose last activity is older than LoggedInTimeout.
	LogoutOnTimeout bool `koanf:"logout_on_timeout" yaml:"logout_on_timeout"`

	// TouchActivity makes Find record and persist the request time.
	TouchActivity bool `koanf:"touch_activity" yaml:"touch_activity"`

	// FailedLoginLimit consecutive failures lock an account for
	// FailedLoginBan. Zero disables the lockout gate.
	FailedLoginLimit int           `koanf:"failed_login_limit" yaml:"failed_login_limit"`
	FailedLoginBan   time.Duration `koanf:"failed_login_ban" yaml:"failed_login_ban"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		LoginField:         "login",
		SecretField:        "password",
		RememberTokenField: "remember_token",
		Strategies:         []Strategy{StrategySession, StrategyCookie, StrategyHTTPAuth},
		CookieKey:          "user_credentials",
		SessionKey:         "user_credentials",
		RememberFor:        90 * 24 * time.Hour,
		Scopes:             []Scope{""},
		LoggedInTimeout:    10 * time.Minute,
		TouchActivity:      true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LoginField == "" || c.SecretField == "" || c.RememberTokenField == "" {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("login, secret and remember token field names are required")
	}
	if c.CookieKey == "" || c.SessionKey == "" {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("cookie and session keys are required")
	}
	for _, s := range c.Strategies {
		if !slices.Contains([]Strategy{StrategySession, StrategyCookie, StrategyHTTPAuth}, s) {
			return oops.Code("SESSION_INVALID_CONFIG").With("strategy", s).Errorf("unknown strategy %q", s)
		}
	}
	if len(c.Scopes) == 0 {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("at least one scope is required")
	}
	if c.RememberFor <= 0 {
		return oops.Code("SESSION_INVALID_CONFIG").With("remember_for", c.RememberFor).Errorf("remember_for must be positive")
	}
	if c.LogoutOnTimeout && c.LoggedInTimeout <= 0 {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("logout_on_timeout requires a positive logged_in_timeout")
	}
	if c.FailedLoginLimit < 0 {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("failed_login_limit cannot be negative")
	}
	if c.FailedLoginLimit > 0 && c.FailedLoginBan <= 0 {
		return oops.Code("SESSION_INVALID_CONFIG").Errorf("failed_login_ban must be positive when failed_login_limit is set")
	}
	return nil
}

// PrimaryScope is the first configured scope.
func (c Config) PrimaryScope() Scope {
	if len(c.Scopes) == 0 {
		return ""
	}
	return c.Scopes[0]
}

func (c Config) clone() Config {
	c.Strategies = slices.Clone(c.Strategies)
	c.Scopes = slices.Clone(c.Scopes)
	return c
}

// Key builds the transport key for scope: "{scope_}{base}".
func Key(scope Scope, base string) string {
	if scope == "" {
		return base
	}
	return string(scope) + "_" + base
}
