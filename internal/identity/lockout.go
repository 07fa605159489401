// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import "time"

// Lockout defaults.
const (
	// DefaultFailedLoginLimit is the number of consecutive failures that
	// locks an account when lockout is enabled.
	DefaultFailedLoginLimit = 50

	// DefaultFailedLoginBan is how long a locked account stays locked.
	DefaultFailedLoginBan = 2 * time.Hour
)

// LockoutResult describes the lockout state of a record.
type LockoutResult struct {
	// IsLockedOut indicates the account may not log in right now.
	IsLockedOut bool

	// Remaining is the time until the lockout expires.
	Remaining time.Duration
}

// CheckLockout evaluates ft against limit consecutive failures within ban.
// A limit of zero disables the check.
func CheckLockout(ft FailureTracker, limit int, ban time.Duration, now time.Time) LockoutResult {
	if limit <= 0 || ft == nil {
		return LockoutResult{}
	}

	count, last := ft.FailedLogins()
	if count < limit || last == nil {
		return LockoutResult{}
	}

	until := last.Add(ban)
	if !until.After(now) {
		return LockoutResult{}
	}
	return LockoutResult{IsLockedOut: true, Remaining: until.Sub(now)}
}
