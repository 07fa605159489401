// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes with bcrypt at Cost (bcrypt.DefaultCost when zero).
//
// Inputs are SHA-256 prehashed because bcrypt rejects inputs over 72 bytes
// and the salted input regularly exceeds that.
type Bcrypt struct {
	Cost int
}

func (p Bcrypt) cost() int {
	if p.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return p.Cost
}

func prehash(input string) []byte {
	sum := sha256.Sum256([]byte(input))
	return []byte(hex.EncodeToString(sum[:]))
}

// Encrypt implements Provider.
func (p Bcrypt) Encrypt(input string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(input), p.cost())
	if err != nil {
		return "", oops.Code("CREDENTIAL_HASH_FAILED").With("cost", p.cost()).Wrap(err)
	}
	return string(hash), nil
}

// Matches implements Matcher.
func (p Bcrypt) Matches(stored, input string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), prehash(input))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}
}

// NeedsUpgrade implements Upgrader.
func (p Bcrypt) NeedsUpgrade(stored string) bool {
	cost, err := bcrypt.Cost([]byte(stored))
	return err != nil || cost < p.cost()
}

var (
	_ Provider = Bcrypt{}
	_ Matcher  = Bcrypt{}
	_ Upgrader = Bcrypt{}
)
