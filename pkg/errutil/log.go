// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Oops errors contribute their code and
// context attributes; extra attrs are appended as given.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logger.ErrorContext(ctx, msg, append(Attrs(err), attrs...)...)
}

// Attrs returns slog key/value pairs describing err.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if fields := oopsErr.Context(); len(fields) > 0 {
		attrs = append(attrs, "context", fields)
	}
	return attrs
}

// HasCode reports whether any oops error in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		oopsErr, ok := oops.AsOops(err)
		if !ok {
			return false
		}
		if oopsErr.Code() == code {
			return true
		}
		err = oopsErr.Unwrap()
	}
	return false
}
