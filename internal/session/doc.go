// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session provides auth.SessionStore backends.
//
// SCS binds a session to a request context managed by
// github.com/alexedwards/scs/v2. Redis keeps one hash per session token with
// a sliding TTL. Token is stateless: slots live in an HS256-signed JWT that
// is re-issued on every write.
package session
