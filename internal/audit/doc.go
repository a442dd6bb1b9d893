// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package audit records login attempts durably.
//
// Logger implements auth.Auditor. Each record is written synchronously to an
// attempt store; if that fails the record is appended to a JSONL write-ahead
// log opened with O_SYNC. ReplayWAL (or the loop started by Start) moves WAL
// records back into the store once it recovers.
//
// Metrics:
//   - ethanol_login_attempts_total{status}
//   - ethanol_audit_failures_total{reason}
//   - ethanol_audit_wal_entries
//
// CheckFailures and Throttle turn recorded failures into delay and lockout
// advice for callers that want rate limiting on top of login.
package audit
