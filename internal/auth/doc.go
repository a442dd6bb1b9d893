// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the authentication and authorization core of ethanol.
//
// # Drivers
//
// A Driver is a named identity source. Several drivers may recognize the same
// email; at login every driver that claims the email is tried in
// registration order and the first that validates the credentials wins.
// LocalDriver ("database") owns password accounts stored in the directory.
//
// # Login
//
// Service.LogIn moves a caller from anonymous to authenticated or rejected:
//
//   - no driver claims the email: NO_SUCH_USER is recorded, ErrLogInFailed
//   - no claiming driver validates: BAD_CREDENTIALS is recorded, ErrLogInFailed
//   - otherwise: GOOD is recorded, the user ID is written to the session
//
// The audit record is written before the outcome is returned. Service.Authenticate
// returns the same outcome as a LoginResult without touching a session.
//
// # Directory
//
// Directory wraps a DirectoryStore and reports typed failures (ErrNoSuchUser,
// ErrNoUsers, ErrGroupNotFound, ErrColumnNotUnique). MessageKey maps each to
// its localization key.
//
// # Registry
//
// Registry is owned by the composition root and hands out one Service per
// driver name, built on first use.
package auth
