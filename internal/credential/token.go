// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// tokenComponents is the number of random components mixed into each token.
const tokenComponents = 10

// TokenGenerator mints practically unique tokens from the current time and
// random components passed through a provider.
type TokenGenerator struct {
	provider Provider
}

// NewTokenGenerator creates a generator. Use a provider whose output is safe
// to place in a cookie; SHA512 (hex output) is the default.
func NewTokenGenerator(p Provider) *TokenGenerator {
	if p == nil {
		p = SHA512{}
	}
	return &TokenGenerator{provider: p}
}

// Generate returns a new token.
func (g *TokenGenerator) Generate() (string, error) {
	var b strings.Builder
	b.WriteString(ulid.Make().String())

	component := make([]byte, 8)
	for range tokenComponents {
		if _, err := rand.Read(component); err != nil {
			return "", oops.Code("CREDENTIAL_TOKEN_FAILED").Wrap(err)
		}
		b.WriteString(hex.EncodeToString(component))
	}

	token, err := g.provider.Encrypt(b.String())
	if err != nil {
		return "", oops.Code("CREDENTIAL_TOKEN_FAILED").Wrap(err)
	}
	return token, nil
}
