// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package validation holds the ordered error list shared by sessions and
// identity saves.
//
// An Error with an empty Field is a base error: it describes the attempt as a
// whole rather than one input.
package validation

import "strings"

// Base is the field name used for errors that are not tied to a field.
const Base = ""

// Error is a single validation failure.
type Error struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// IsBase reports whether the error is not attached to a field.
func (e Error) IsBase() bool {
	return e.Field == Base
}

// Error renders "field message", or just the message for base errors.
func (e Error) Error() string {
	if e.IsBase() {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// Errors is an ordered list of validation failures.
type Errors []Error

// Add appends an error on field.
func (e *Errors) Add(field, message string) {
	*e = append(*e, Error{Field: field, Message: message})
}

// AddBase appends a base error.
func (e *Errors) AddBase(message string) {
	e.Add(Base, message)
}

// Merge appends all errors from other, preserving order.
func (e *Errors) Merge(other Errors) {
	*e = append(*e, other...)
}

// Clear removes every error.
func (e *Errors) Clear() {
	*e = nil
}

// Empty reports whether there are no errors.
func (e Errors) Empty() bool {
	return len(e) == 0
}

// On returns the messages attached to field, in order.
func (e Errors) On(field string) []string {
	var msgs []string
	for _, err := range e {
		if err.Field == field {
			msgs = append(msgs, err.Message)
		}
	}
	return msgs
}

// BaseMessages returns the messages of base errors.
func (e Errors) BaseMessages() []string {
	return e.On(Base)
}

// Err returns the list as an error, or nil when it is empty.
func (e Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return &e
}

// Error joins all messages with "; ".
func (e *Errors) Error() string {
	parts := make([]string, 0, len(*e))
	for _, err := range *e {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
