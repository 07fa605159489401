// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/sha512"
	"encoding/hex"
)

// DefaultSHA512Stretches is the number of digest rounds SHA512 applies when
// Stretches is zero.
const DefaultSHA512Stretches = 20

// SHA512 is a deterministic hash provider: hex(SHA-512) applied Stretches
// times. It is the default token digest.
type SHA512 struct {
	Stretches int
}

// Encrypt implements Provider.
func (p SHA512) Encrypt(input string) (string, error) {
	rounds := p.Stretches
	if rounds <= 0 {
		rounds = DefaultSHA512Stretches
	}
	digest := input
	for range rounds {
		sum := sha512.Sum512([]byte(digest))
		digest = hex.EncodeToString(sum[:])
	}
	return digest, nil
}

var _ Provider = SHA512{}
