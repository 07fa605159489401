// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package identity defines what an account record must expose to take part
// in authentication.
//
// # Capabilities
//
// Every record implements Authenticatable, which gives access to its secret
// fields. Everything else is optional and discovered with a type assertion:
//   - StatusReporter - approved/confirmed/active gates checked at login
//   - LoginCounter - incremented on every session save
//   - LoginTracker - current/last login time and origin
//   - ActivityTracker - last request time, used by the logged-in timeout
//   - FailureTracker - consecutive failed logins, used by the lockout gate
//
// Account is the bundled implementation used by the stores in this module.
package identity
