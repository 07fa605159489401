// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import "time"

// Secrets holds the credential fields of a record.
//
// Raw and Confirmation are transient: they carry the plaintext during a single
// save and are never persisted. Changed is set when Raw was explicitly assigned
// and cleared once the record is saved.
type Secrets struct {
	Raw           string
	Confirmation  string
	Stored        string
	Salt          string
	RememberToken string
	Changed       bool
}

// ClearTransient drops the plaintext fields and the changed marker.
func (s *Secrets) ClearTransient() {
	s.Raw = ""
	s.Confirmation = ""
	s.Changed = false
}

// Authenticatable is the minimal capability a record needs.
type Authenticatable interface {
	// Key uniquely identifies the record among records of its type.
	Key() string

	// IsNew reports whether the record has never been persisted.
	IsNew() bool

	// Secrets returns the record's credential fields for reading and writing.
	Secrets() *Secrets
}

// Status names an optional account gate.
type Status string

// Gated statuses, in the order they are checked at login.
const (
	StatusApproved  Status = "approved"
	StatusConfirmed Status = "confirmed"
	StatusActive    Status = "active"
)

// GatedStatuses is the fixed, ordered list of status gates.
var GatedStatuses = []Status{StatusApproved, StatusConfirmed, StatusActive}

// Participle is the word used in "account has not been ..." messages.
func (s Status) Participle() string {
	if s == StatusActive {
		return "activated"
	}
	return string(s)
}

// StatusReporter exposes optional status predicates. exposed is false when
// the record does not carry that status at all.
type StatusReporter interface {
	Status(s Status) (value, exposed bool)
}

// LoginCounter counts successful logins.
type LoginCounter interface {
	IncrementLoginCount()
}

// LoginTracker rotates current/last login bookkeeping.
type LoginTracker interface {
	RecordLogin(at time.Time, origin string)
}

// ActivityTracker records the time of the last authenticated request.
type ActivityTracker interface {
	TouchActivity(at time.Time)
	LastActivity() *time.Time
}

// FailureTracker records consecutive failed logins.
type FailureTracker interface {
	FailedLogins() (count int, last *time.Time)
	RecordFailedLogin(at time.Time)
	ResetFailedLogins()
}

// Same reports whether a and b are the same persisted record.
func Same(a, b Authenticatable) bool {
	if a == nil || b == nil {
		return false
	}
	if a.IsNew() || b.IsNew() {
		return a == b
	}
	return a.Key() == b.Key()
}
