// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import "errors"

// ErrNotFound is returned by repositories when no record matches a lookup.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a save would break a
// uniqueness constraint.
var ErrDuplicate = errors.New("duplicate")

// DuplicateError names the field whose uniqueness a save would break. It
// matches ErrDuplicate with errors.Is.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return e.Field + " is already taken"
}

// Is reports whether target is ErrDuplicate.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// DuplicateField returns the conflicting field when err is a duplicate
// error, or "".
func DuplicateField(err error) string {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field
	}
	return ""
}
