// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// Argon2id hashes with argon2id and stores PHC strings:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
//
// Pepper, when set, is appended to every input and never stored.
type Argon2id struct {
	Pepper string
}

// Encrypt implements Provider.
func (p Argon2id) Encrypt(input string) (string, error) {
	if input == "" {
		return "", oops.Code("CREDENTIAL_EMPTY_INPUT").Errorf("input cannot be empty")
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("CREDENTIAL_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(input+p.Pepper), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Matches implements Matcher.
func (p Argon2id) Matches(stored, input string) (bool, error) {
	params, salt, expected, err := parseArgon2id(stored)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(input+p.Pepper), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade implements Upgrader. Non-argon2id values and values hashed
// with different parameters need upgrading.
func (p Argon2id) NeedsUpgrade(stored string) bool {
	params, _, _, err := parseArgon2id(stored)
	if err != nil {
		return true
	}
	return params.time != argon2Time || params.memory != argon2Memory || params.threads != argon2Threads
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseArgon2id(encoded string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &threads); err != nil {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	params.threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Wrap(err)
	}
	if len(hash) == 0 || len(hash) > 1<<30 {
		return params, nil, nil, oops.Code("CREDENTIAL_INVALID_HASH").Errorf("invalid hash key length: %d", len(hash))
	}

	return params, salt, hash, nil
}

var (
	_ Provider = Argon2id{}
	_ Matcher  = Argon2id{}
	_ Upgrader = Argon2id{}
)
