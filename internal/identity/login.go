// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"regexp"

	"github.com/samber/oops"
)

// Login validation constraints.
const (
	MinLoginLength = 3
	MaxLoginLength = 100
)

// loginRegex allows letters, digits, spaces and .-_@+ so email addresses work
// as logins.
var loginRegex = regexp.MustCompile(`^[\p{L}\p{N} .\-_@+]+$`)

// ValidateLogin checks a login against the length and character rules.
func ValidateLogin(login string) error {
	if login == "" {
		return oops.Code("IDENTITY_INVALID_LOGIN").Errorf("login cannot be empty")
	}
	if len(login) < MinLoginLength {
		return oops.Code("IDENTITY_INVALID_LOGIN").
			With("min", MinLoginLength).
			Errorf("login must be at least %d characters", MinLoginLength)
	}
	if len(login) > MaxLoginLength {
		return oops.Code("IDENTITY_INVALID_LOGIN").
			With("max", MaxLoginLength).
			Errorf("login must be at most %d characters", MaxLoginLength)
	}
	if !loginRegex.MatchString(login) {
		return oops.Code("IDENTITY_INVALID_LOGIN").
			Errorf("login should use only letters, numbers, spaces, and .-_@+ please")
	}
	return nil
}
