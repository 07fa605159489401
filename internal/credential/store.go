// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/validation"
)

// Config controls secret storage and the save-time validation hook.
type Config struct {
	// Mode selects hash or encryption storage. ModeAuto picks encryption when
	// the provider can decrypt.
	Mode Mode `koanf:"mode" yaml:"mode"`

	// SaltBytes is the number of random bytes in a hash-mode salt.
	SaltBytes int `koanf:"salt_bytes" yaml:"salt_bytes"`

	// MinSecretLength rejects shorter secrets. Zero disables the check.
	MinSecretLength int `koanf:"min_secret_length" yaml:"min_secret_length"`

	// RequireConfirmation makes the confirmation field mandatory and equal
	// to the secret whenever the secret is being set.
	RequireConfirmation bool `koanf:"require_confirmation" yaml:"require_confirmation"`

	// SecretField and ConfirmationField name the fields validation errors
	// are attached to.
	SecretField       string `koanf:"secret_field" yaml:"secret_field"`
	ConfirmationField string `koanf:"confirmation_field" yaml:"confirmation_field"`
}

// DefaultConfig returns the default credential configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeAuto,
		SaltBytes:           20,
		MinSecretLength:     4,
		RequireConfirmation: true,
		SecretField:         "password",
		ConfirmationField:   "password_confirmation",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.SaltBytes < 8 {
		return oops.Code("CREDENTIAL_INVALID_CONFIG").
			With("salt_bytes", c.SaltBytes).
			Errorf("salt_bytes must be at least 8")
	}
	if c.MinSecretLength < 0 {
		return oops.Code("CREDENTIAL_INVALID_CONFIG").
			With("min_secret_length", c.MinSecretLength).
			Errorf("min_secret_length cannot be negative")
	}
	if c.SecretField == "" || c.ConfirmationField == "" {
		return oops.Code("CREDENTIAL_INVALID_CONFIG").Errorf("secret and confirmation field names are required")
	}
	return nil
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTokenGenerator overrides the generator used by UniqueToken.
func WithTokenGenerator(g *TokenGenerator) StoreOption {
	return func(s *Store) {
		s.tokens = g
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// Store owns secret hashing/encryption and token minting for identities.
// It holds no per-identity state and is safe for concurrent use.
type Store struct {
	provider Provider
	mode     Mode
	cfg      Config
	tokens   *TokenGenerator
	logger   *slog.Logger
}

// NewStore creates a Store. The storage mode is resolved once here.
func NewStore(provider Provider, cfg Config, opts ...StoreOption) (*Store, error) {
	if provider == nil {
		return nil, oops.Code("CREDENTIAL_INVALID_CONFIG").Wrap(ErrNoProvider)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := resolveMode(cfg.Mode, provider)
	if err != nil {
		return nil, err
	}

	s := &Store{
		provider: provider,
		mode:     mode,
		cfg:      cfg,
		tokens:   NewTokenGenerator(SHA512{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mode returns the resolved storage mode.
func (s *Store) Mode() Mode {
	return s.mode
}

// UniqueToken mints a new remember/session token.
func (s *Store) UniqueToken() (string, error) {
	return s.tokens.Generate()
}

// SetSecret assigns raw as the identity's new secret. An empty raw secret is
// a no-op. The remember token is rotated on every call.
func (s *Store) SetSecret(id identity.Authenticatable, raw string) error {
	if raw == "" {
		return nil
	}
	secrets := id.Secrets()

	token, err := s.UniqueToken()
	if err != nil {
		return err
	}

	var stored, salt string
	switch s.mode {
	case ModeHash:
		salt, err = s.newSalt()
		if err != nil {
			return err
		}
		stored, err = s.provider.Encrypt(raw + salt)
	default:
		stored, err = s.provider.Encrypt(raw)
	}
	if err != nil {
		return oops.Code("CREDENTIAL_ENCRYPT_FAILED").With("mode", s.mode).Wrap(err)
	}

	secrets.Raw = raw
	secrets.RememberToken = token
	secrets.Salt = salt
	secrets.Stored = stored
	secrets.Changed = true
	return nil
}

// VerifySecret reports whether attempt matches the identity's stored secret.
//
// In encryption mode a successful match may rewrite the stored secret: a
// legacy plaintext value is encrypted, and a value sealed with an outdated key
// is re-sealed. In hash mode a value hashed with outdated parameters is
// rehashed with the existing salt. Callers must persist the identity after a
// successful login to keep the rewrite.
func (s *Store) VerifySecret(id identity.Authenticatable, attempt string) (bool, error) {
	if attempt == "" {
		return false, nil
	}
	secrets := id.Secrets()
	if secrets.Stored == "" {
		return false, nil
	}

	if s.mode == ModeEncrypt {
		return s.verifyEncrypted(secrets, attempt)
	}
	return s.verifyHashed(secrets, attempt)
}

func (s *Store) verifyHashed(secrets *identity.Secrets, attempt string) (bool, error) {
	// Pre-hashed input.
	if constantTimeEqual(attempt, secrets.Stored) {
		return true, nil
	}

	salted := attempt + secrets.Salt
	var ok bool
	if m, isMatcher := s.provider.(Matcher); isMatcher {
		matched, err := m.Matches(secrets.Stored, salted)
		if err != nil {
			return false, oops.Code("CREDENTIAL_VERIFY_FAILED").With("mode", s.mode).Wrap(err)
		}
		ok = matched
	} else {
		computed, err := s.provider.Encrypt(salted)
		if err != nil {
			return false, oops.Code("CREDENTIAL_VERIFY_FAILED").With("mode", s.mode).Wrap(err)
		}
		ok = constantTimeEqual(computed, secrets.Stored)
	}
	if !ok {
		return false, nil
	}

	if u, isUpgrader := s.provider.(Upgrader); isUpgrader && u.NeedsUpgrade(secrets.Stored) {
		if rehashed, err := s.provider.Encrypt(salted); err == nil {
			secrets.Stored = rehashed
		} else {
			s.logger.Warn("failed to rehash secret", "error", err)
		}
	}
	return true, nil
}

func (s *Store) verifyEncrypted(secrets *identity.Secrets, attempt string) (bool, error) {
	dec := s.provider.(Decrypter)

	plain, decErr := dec.Decrypt(secrets.Stored)
	switch {
	case decErr == nil && constantTimeEqual(plain, attempt):
		if u, ok := s.provider.(Upgrader); ok && u.NeedsUpgrade(secrets.Stored) {
			s.reseal(secrets, attempt)
		}
		return true, nil
	case constantTimeEqual(attempt, secrets.Stored):
		// Only a value that does not decrypt is legacy plaintext; a caller
		// presenting the ciphertext itself must not trigger a rewrite.
		if decErr != nil {
			s.reseal(secrets, attempt)
		}
		return true, nil
	default:
		return false, nil
	}
}

func (s *Store) reseal(secrets *identity.Secrets, raw string) {
	stored, err := s.provider.Encrypt(raw)
	if err != nil {
		s.logger.Warn("failed to re-encrypt secret", "error", err)
		return
	}
	secrets.Stored = stored
}

// ResetRememberToken rotates the remember token without touching the secret.
func (s *Store) ResetRememberToken(id identity.Authenticatable) error {
	token, err := s.UniqueToken()
	if err != nil {
		return err
	}
	id.Secrets().RememberToken = token
	return nil
}

// Validate is the save-time hook for identities. A raw secret is required
// for new identities and whenever the secret was explicitly set.
func (s *Store) Validate(id identity.Authenticatable) validation.Errors {
	var errs validation.Errors
	secrets := id.Secrets()
	if !id.IsNew() && !secrets.Changed {
		return errs
	}

	if secrets.Raw == "" {
		errs.Add(s.cfg.SecretField, "can not be blank")
		return errs
	}
	if s.cfg.MinSecretLength > 0 && len([]rune(secrets.Raw)) < s.cfg.MinSecretLength {
		errs.Add(s.cfg.SecretField, fmt.Sprintf("is too short (minimum is %d characters)", s.cfg.MinSecretLength))
	}
	if s.cfg.RequireConfirmation {
		switch {
		case secrets.Confirmation == "":
			errs.Add(s.cfg.ConfirmationField, "can not be blank")
		case secrets.Confirmation != secrets.Raw:
			errs.Add(s.cfg.ConfirmationField, fmt.Sprintf("doesn't match %s", s.cfg.SecretField))
		}
	}
	return errs
}

func (s *Store) newSalt() (string, error) {
	b := make([]byte, s.cfg.SaltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("CREDENTIAL_SALT_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
