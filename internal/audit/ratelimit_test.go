// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/audit"
	"github.com/holomush/ethanol/internal/auth"
)

func TestCheckFailures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no failures returns no delay", func(t *testing.T) {
		result := audit.CheckFailures(auth.FailureStats{}, now)
		assert.Zero(t, result.Delay)
		assert.False(t, result.RequiresCaptcha)
		assert.False(t, result.IsLockedOut)
	})

	t.Run("1-3 failures returns progressive delay", func(t *testing.T) {
		assert.Equal(t, time.Second, audit.CheckFailures(auth.FailureStats{Count: 1, LastFailure: now}, now).Delay)
		assert.Equal(t, 2*time.Second, audit.CheckFailures(auth.FailureStats{Count: 2, LastFailure: now}, now).Delay)
		assert.Equal(t, 4*time.Second, audit.CheckFailures(auth.FailureStats{Count: 3, LastFailure: now}, now).Delay)
	})

	t.Run("4-6 failures requires captcha", func(t *testing.T) {
		result4 := audit.CheckFailures(auth.FailureStats{Count: 4, LastFailure: now}, now)
		assert.True(t, result4.RequiresCaptcha)
		assert.Equal(t, 8*time.Second, result4.Delay)

		result6 := audit.CheckFailures(auth.FailureStats{Count: 6, LastFailure: now}, now)
		assert.True(t, result6.RequiresCaptcha)
		assert.Equal(t, 32*time.Second, result6.Delay)
	})

	t.Run("7+ failures locks until after the last failure", func(t *testing.T) {
		last := now.Add(-5 * time.Minute)
		result := audit.CheckFailures(auth.FailureStats{Count: 7, LastFailure: last}, now)
		assert.True(t, result.IsLockedOut)
		assert.Equal(t, 10*time.Minute, result.LockoutRemaining)
		assert.Zero(t, result.Delay)
	})

	t.Run("expired lockout", func(t *testing.T) {
		last := now.Add(-audit.LockoutDuration - time.Second)
		result := audit.CheckFailures(auth.FailureStats{Count: 9, LastFailure: last}, now)
		assert.False(t, result.IsLockedOut)
		assert.Equal(t, 9, result.Failures)
	})
}

type stubAttemptStore struct {
	auth.AttemptStore
	email string
	since time.Time
	stats auth.FailureStats
	err   error
}

func (s *stubAttemptStore) CountFailures(_ context.Context, email string, since time.Time) (auth.FailureStats, error) {
	s.email, s.since = email, since
	return s.stats, s.err
}

func TestThrottle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("queries the window for the normalized email", func(t *testing.T) {
		store := &stubAttemptStore{stats: auth.FailureStats{Count: 2, LastFailure: now}}

		result, err := audit.Throttle(context.Background(), store, " Alice@Example.com ", time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", store.email)
		assert.Equal(t, now.Add(-time.Hour), store.since)
		assert.Equal(t, 2*time.Second, result.Delay)
	})

	t.Run("defaults the window to the lockout duration", func(t *testing.T) {
		store := &stubAttemptStore{}

		_, err := audit.Throttle(context.Background(), store, "a@example.com", 0, now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(-audit.LockoutDuration), store.since)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		store := &stubAttemptStore{err: assert.AnError}

		_, err := audit.Throttle(context.Background(), store, "a@example.com", time.Hour, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})
}
