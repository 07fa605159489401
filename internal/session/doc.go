// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session implements the authentication state machine.
//
// A Session is one authentication attempt. It is built in one of three entry
// modes: with a login and secret (ModeCredentials), with an already loaded
// record (ModeUnauthorizedRecord), or with nothing (ModeNone). Validate walks
// a fixed, short-circuiting sequence of checks; the first failing step leaves
// its errors on the session and stops.
//
// Engine.Find establishes a session without fresh credentials by trying the
// configured strategies in order: the server-side session slot, the
// remember-me cookie, then HTTP basic auth. Misses are silent; only a final
// ErrNoSession is visible to the caller.
//
// Every operation takes the request's transport explicitly. Nothing is bound
// to the calling goroutine.
package session
