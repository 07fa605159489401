// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Account is the bundled record type. Status pointers left nil mean the
// corresponding status is not part of this account's schema.
type Account struct {
	ID          ulid.ULID
	Login       string
	Email       *string
	Credentials Secrets

	LoginCount     int
	LastLoginAt    *time.Time
	CurrentLoginAt *time.Time
	LastLoginIP    string
	CurrentLoginIP string
	LastRequestAt  *time.Time

	FailedLoginCount  int
	LastFailedLoginAt *time.Time

	Approved  *bool
	Confirmed *bool
	Active    *bool

	CreatedAt time.Time
	UpdatedAt time.Time

	persisted bool
}

// NewAccount creates an unsaved Account with a validated login.
func NewAccount(login string) (*Account, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Account{
		ID:        ulid.Make(),
		Login:     login,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Key returns the account ID.
func (a *Account) Key() string {
	return a.ID.String()
}

// IsNew reports whether the account has never been persisted.
func (a *Account) IsNew() bool {
	return !a.persisted
}

// MarkPersisted is called by repositories after a successful write or when
// loading an account from storage.
func (a *Account) MarkPersisted() {
	a.persisted = true
}

// Secrets returns the credential fields.
func (a *Account) Secrets() *Secrets {
	return &a.Credentials
}

// Status implements StatusReporter.
func (a *Account) Status(s Status) (value, exposed bool) {
	var flag *bool
	switch s {
	case StatusApproved:
		flag = a.Approved
	case StatusConfirmed:
		flag = a.Confirmed
	case StatusActive:
		flag = a.Active
	}
	if flag == nil {
		return false, false
	}
	return *flag, true
}

// SetStatus sets (and thereby exposes) a status flag.
func (a *Account) SetStatus(s Status, value bool) {
	v := value
	switch s {
	case StatusApproved:
		a.Approved = &v
	case StatusConfirmed:
		a.Confirmed = &v
	case StatusActive:
		a.Active = &v
	}
}

// IncrementLoginCount implements LoginCounter.
func (a *Account) IncrementLoginCount() {
	a.LoginCount++
}

// RecordLogin implements LoginTracker.
func (a *Account) RecordLogin(at time.Time, origin string) {
	a.LastLoginAt = a.CurrentLoginAt
	a.LastLoginIP = a.CurrentLoginIP
	a.CurrentLoginAt = &at
	a.CurrentLoginIP = origin
	a.UpdatedAt = at
}

// TouchActivity implements ActivityTracker.
func (a *Account) TouchActivity(at time.Time) {
	a.LastRequestAt = &at
}

// LastActivity implements ActivityTracker.
func (a *Account) LastActivity() *time.Time {
	return a.LastRequestAt
}

// FailedLogins implements FailureTracker.
func (a *Account) FailedLogins() (int, *time.Time) {
	return a.FailedLoginCount, a.LastFailedLoginAt
}

// RecordFailedLogin implements FailureTracker.
func (a *Account) RecordFailedLogin(at time.Time) {
	a.FailedLoginCount++
	a.LastFailedLoginAt = &at
	a.UpdatedAt = at
}

// ResetFailedLogins implements FailureTracker.
func (a *Account) ResetFailedLogins() {
	a.FailedLoginCount = 0
	a.LastFailedLoginAt = nil
}

// LoggedIn reports whether the account made a request within timeout of now.
func (a *Account) LoggedIn(now time.Time, timeout time.Duration) bool {
	return a.LastRequestAt != nil && now.Sub(*a.LastRequestAt) <= timeout
}

// LoggedOut is the negation of LoggedIn.
func (a *Account) LoggedOut(now time.Time, timeout time.Duration) bool {
	return !a.LoggedIn(now, timeout)
}

// Clone returns a deep copy, including the persisted marker.
func (a *Account) Clone() *Account {
	c := *a
	c.Email = clonePtr(a.Email)
	c.LastLoginAt = clonePtr(a.LastLoginAt)
	c.CurrentLoginAt = clonePtr(a.CurrentLoginAt)
	c.LastRequestAt = clonePtr(a.LastRequestAt)
	c.LastFailedLoginAt = clonePtr(a.LastFailedLoginAt)
	c.Approved = clonePtr(a.Approved)
	c.Confirmed = clonePtr(a.Confirmed)
	c.Active = clonePtr(a.Active)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Compile-time interface checks.
var (
	_ Authenticatable = (*Account)(nil)
	_ StatusReporter  = (*Account)(nil)
	_ LoginCounter    = (*Account)(nil)
	_ LoginTracker    = (*Account)(nil)
	_ ActivityTracker = (*Account)(nil)
	_ FailureTracker  = (*Account)(nil)
)
