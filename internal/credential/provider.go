// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package credential computes and verifies persisted secrets and mints the
// unique tokens used for remember-me and session lookups.
package credential

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

// ErrNoProvider is returned when a Store is built without a crypto provider.
var ErrNoProvider = errors.New("no crypto provider configured")

// Provider transforms a secret into its stored form.
type Provider interface {
	Encrypt(input string) (string, error)
}

// Decrypter is implemented by reversible providers. Its presence selects
// encryption mode when the Store runs in ModeAuto.
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// Matcher is implemented by providers whose output is not deterministic
// (random salt or nonce embedded in the stored value), so comparing a fresh
// Encrypt result cannot work.
type Matcher interface {
	// Matches returns (true, nil) on match, (false, nil) on mismatch, or an
	// error when stored is malformed.
	Matches(stored, input string) (bool, error)
}

// Upgrader reports stored values written with outdated parameters or keys.
type Upgrader interface {
	NeedsUpgrade(stored string) bool
}

// Mode selects how secrets are stored.
type Mode string

// Storage modes.
const (
	ModeAuto    Mode = "auto"
	ModeHash    Mode = "hash"
	ModeEncrypt Mode = "encrypt"
)

// ParseMode parses a mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeHash:
		return ModeHash, nil
	case ModeEncrypt:
		return ModeEncrypt, nil
	default:
		return "", oops.Code("CREDENTIAL_INVALID_MODE").
			With("mode", s).
			Errorf("unknown credential mode %q", s)
	}
}

// resolveMode turns ModeAuto into a concrete mode for provider p.
func resolveMode(m Mode, p Provider) (Mode, error) {
	_, reversible := p.(Decrypter)
	switch m {
	case ModeAuto, "":
		if reversible {
			return ModeEncrypt, nil
		}
		return ModeHash, nil
	case ModeHash:
		return ModeHash, nil
	case ModeEncrypt:
		if !reversible {
			return "", oops.Code("CREDENTIAL_INVALID_MODE").
				With("mode", m).
				Errorf("encrypt mode requires a provider that can decrypt")
		}
		return ModeEncrypt, nil
	default:
		return "", oops.Code("CREDENTIAL_INVALID_MODE").
			With("mode", m).
			Errorf("unknown credential mode %q", m)
	}
}
