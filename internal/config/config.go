// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the gatekeep server configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// and explicitly set command-line flags. Secrets and DSNs are never read
// from the file; they come from the environment, optionally populated from
// a dotenv file.
package config

import (
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/gatekeep/internal/credential"
	"github.com/holomush/gatekeep/internal/logging"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/transport"
	"github.com/holomush/gatekeep/internal/xdg"
)

// Environment variables holding secrets.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvRedisURL      = "REDIS_URL"
	EnvEncryptionKey = "GATEKEEP_ENCRYPTION_KEY"
	EnvCookieSecret  = "GATEKEEP_COOKIE_SECRET"
	EnvArgon2Pepper  = "GATEKEEP_ARGON2_PEPPER"
)

// Credential providers.
const (
	ProviderSHA512   = "sha512"
	ProviderArgon2id = "argon2id"
	ProviderBcrypt   = "bcrypt"
	ProviderXChaCha  = "xchacha"
)

// Repository and slot store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverCookie   = "cookie"
	DriverRedis    = "redis"
)

// Config is the full server configuration.
type Config struct {
	Session     session.Config    `koanf:"session" yaml:"session"`
	Credentials Credentials       `koanf:"credentials" yaml:"credentials"`
	Cookies     transport.Options `koanf:"cookies" yaml:"cookies"`
	Store       Store             `koanf:"store" yaml:"store"`
	Slots       Slots             `koanf:"slots" yaml:"slots"`
	HTTP        HTTP              `koanf:"http" yaml:"http"`
	Metrics     Metrics           `koanf:"metrics" yaml:"metrics"`
	Log         Log               `koanf:"log" yaml:"log"`

	Env Env `koanf:"-" yaml:"-"`
}

// Credentials selects and tunes the crypto provider.
type Credentials struct {
	credential.Config `koanf:",squash" yaml:",inline"`

	Provider        string `koanf:"provider" yaml:"provider"`
	SHA512Stretches int    `koanf:"sha512_stretches" yaml:"sha512_stretches"`
	BcryptCost      int    `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
	KeyID           string `koanf:"key_id" yaml:"key_id"`
}

// Store selects the account repository.
type Store struct {
	Driver      string `koanf:"driver" yaml:"driver"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
}

// Slots selects where session slots live.
type Slots struct {
	Driver string `koanf:"driver" yaml:"driver"`
	Prefix string `koanf:"prefix" yaml:"prefix"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	SkipPaths       []string      `koanf:"skip_paths" yaml:"skip_paths"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	TLS             TLS           `koanf:"tls" yaml:"tls"`
}

// TLS switches the API to HTTPS with the server pair in CertsDir. An empty
// CertsDir means the XDG certs directory.
type TLS struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	CertsDir string `koanf:"certs_dir" yaml:"certs_dir"`
}

// ResolvedCertsDir returns CertsDir or the XDG default.
func (t TLS) ResolvedCertsDir() string {
	if t.CertsDir != "" {
		return t.CertsDir
	}
	return xdg.CertsDir()
}

// Metrics configures the metrics and health server. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Log configures logging.
type Log struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// Env holds values read from the environment.
type Env struct {
	DatabaseURL   string
	RedisURL      string
	EncryptionKey []byte
	CookieSecret  []byte
	Argon2Pepper  string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Session: session.DefaultConfig(),
		Credentials: Credentials{
			Config:          credential.DefaultConfig(),
			Provider:        ProviderArgon2id,
			SHA512Stretches: 20,
			KeyID:           "k1",
		},
		Cookies: transport.DefaultOptions(),
		Store:   Store{Driver: DriverMemory},
		Slots:   Slots{Driver: DriverCookie, Prefix: "gatekeep:slots"},
		HTTP: HTTP{
			Addr:            ":8080",
			SkipPaths:       []string{"/healthz/*", "/metrics"},
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: Metrics{Addr: "127.0.0.1:9100"},
		Log:     Log{Format: "json", Level: "info"},
	}
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store":        "store.driver",
	"slots":        "slots.driver",
	"provider":     "credentials.provider",
	"auto-migrate": "store.auto_migrate",
	"tls":          "http.tls.enabled",
	"certs-dir":    "http.tls.certs_dir",
}

// Load builds the configuration. An empty path reads the XDG default file
// when it exists; an explicit path must exist. Flags may be nil; only flags
// the user set override file values. The environment is read through getenv.
func Load(path string, flags *pflag.FlagSet, getenv func(string) string) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	// Slices decode element by element over existing values, so a shorter
	// list from the file would keep trailing defaults.
	cfg.Session.Strategies = nil
	cfg.Session.Scopes = nil
	cfg.HTTP.SkipPaths = nil
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	defaults := Default()
	if cfg.Session.Strategies == nil {
		cfg.Session.Strategies = defaults.Session.Strategies
	}
	if cfg.Session.Scopes == nil {
		cfg.Session.Scopes = defaults.Session.Scopes
	}
	if cfg.HTTP.SkipPaths == nil {
		cfg.HTTP.SkipPaths = defaults.HTTP.SkipPaths
	}

	env, err := FromEnv(getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.Env = env

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile populates the process environment from a dotenv file without
// overriding variables that are already set. A missing file is an error
// only when required.
func LoadEnvFile(path string, required bool) error {
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_ENV_FILE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// FromEnv reads secrets. Binary keys are base64 (standard or URL alphabet).
func FromEnv(getenv func(string) string) (Env, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := Env{
		DatabaseURL:  getenv(EnvDatabaseURL),
		RedisURL:     getenv(EnvRedisURL),
		Argon2Pepper: getenv(EnvArgon2Pepper),
	}

	var err error
	if env.EncryptionKey, err = decodeKey(EnvEncryptionKey, getenv(EnvEncryptionKey)); err != nil {
		return Env{}, err
	}
	if env.CookieSecret, err = decodeKey(EnvCookieSecret, getenv(EnvCookieSecret)); err != nil {
		return Env{}, err
	}
	return env, nil
}

func decodeKey(name, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(value); err == nil {
			return b, nil
		}
	}
	return nil, oops.Code("CONFIG_INVALID_ENV").With("variable", name).Errorf("%s must be base64", name)
}

// Validate checks every section and the secrets the selected drivers need.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Credentials.Config.Validate(); err != nil {
		return err
	}
	if err := c.Cookies.Resolve(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "must be json or text")
	}

	switch c.Credentials.Provider {
	case ProviderSHA512, ProviderArgon2id, ProviderBcrypt:
	case ProviderXChaCha:
		if len(c.Env.EncryptionKey) == 0 {
			return invalid("credentials.provider", c.Credentials.Provider, EnvEncryptionKey+" is required")
		}
	default:
		return invalid("credentials.provider", c.Credentials.Provider, "unknown provider")
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Env.DatabaseURL == "" {
			return invalid("store.driver", c.Store.Driver, EnvDatabaseURL+" is required")
		}
	default:
		return invalid("store.driver", c.Store.Driver, "must be memory or postgres")
	}

	switch c.Slots.Driver {
	case DriverMemory:
	case DriverCookie:
		if len(c.Env.CookieSecret) < 32 {
			return invalid("slots.driver", c.Slots.Driver, EnvCookieSecret+" must hold at least 32 bytes")
		}
	case DriverRedis:
		if c.Env.RedisURL == "" {
			return invalid("slots.driver", c.Slots.Driver, EnvRedisURL+" is required")
		}
	default:
		return invalid("slots.driver", c.Slots.Driver, "must be cookie, memory or redis")
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "is required")
	}
	return nil
}

func invalid(key string, value any, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s %s", key, msg)
}

// YAML renders the configuration without secrets.
func (c Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c)
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}
