// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned by Find and Resolve when no strategy establishes
// a session.
var ErrNoSession = errors.New("no session")

// InvalidError carries a session that failed validation. SaveStrict returns
// it wrapped in a SESSION_INVALID error.
type InvalidError struct {
	Session *Session
}

func (e *InvalidError) Error() string {
	errs := e.Session.Errors()
	return fmt.Sprintf("session is invalid: %s", errs.Error())
}

// Validation messages.
const (
	msgBlank          = "can not be blank"
	msgNotFound       = "was not found"
	msgInvalid        = "is invalid"
	msgBlankRecord    = "can not log in with a blank record"
	msgNewRecord      = "can not login with a new record"
	msgNoCredentials  = "You did not provide any details for authentication."
	msgLockedOut      = "Consecutive failed logins limit exceeded, account has been temporarily disabled."
	msgStatusTemplate = "account has not been %s"
)
