// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// AttemptStatus is the outcome of one login call.
type AttemptStatus string

// Login outcomes.
const (
	AttemptGood           AttemptStatus = "GOOD"
	AttemptNoSuchUser     AttemptStatus = "NO_SUCH_USER"
	AttemptBadCredentials AttemptStatus = "BAD_CREDENTIALS"
)

// Valid reports whether s is one of the known outcomes.
func (s AttemptStatus) Valid() bool {
	switch s {
	case AttemptGood, AttemptNoSuchUser, AttemptBadCredentials:
		return true
	}
	return false
}

// LoginAttempt is one append-only audit record.
type LoginAttempt struct {
	ID        ulid.ULID     `json:"id"`
	Email     string        `json:"email"`
	Status    AttemptStatus `json:"status"`
	Driver    string        `json:"driver,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewLoginAttempt stamps a new record with a fresh ULID and the current time.
func NewLoginAttempt(email string, status AttemptStatus, driver string) LoginAttempt {
	now := time.Now().UTC()
	return LoginAttempt{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Email:     email,
		Status:    status,
		Driver:    driver,
		Timestamp: now,
	}
}

// Auditor records login outcomes. Record must not return before the record
// is durable.
type Auditor interface {
	Record(ctx context.Context, attempt LoginAttempt) error
}

// FailureStats summarizes failed attempts for one email in a window.
type FailureStats struct {
	Count       int
	LastFailure time.Time
}

// AttemptStore persists and queries login attempts.
type AttemptStore interface {
	Append(ctx context.Context, attempt LoginAttempt) error

	// ListRecent returns up to limit attempts, newest first. An empty email
	// lists attempts for every address.
	ListRecent(ctx context.Context, email string, limit int) ([]LoginAttempt, error)

	// CountFailures counts non-GOOD attempts for email at or after since.
	CountFailures(ctx context.Context, email string, since time.Time) (FailureStats, error)
}
