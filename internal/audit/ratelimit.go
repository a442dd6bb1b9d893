// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package audit

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// Throttling policy derived from recorded failures.
const (
	// LockoutDuration is how long an email stays locked after the last failure.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7

	// CaptchaThreshold is the number of failures after which interactive
	// clients should require a CAPTCHA.
	CaptchaThreshold = 4

	// maxDelay caps the progressive delay.
	maxDelay = 32 * time.Second
)

// RateLimitResult is advice for the layer that calls LogIn. The login state
// machine itself never applies it.
type RateLimitResult struct {
	Failures int `json:"failures" yaml:"failures"`

	// Delay is the time to wait before allowing another attempt.
	Delay time.Duration `json:"delay" yaml:"delay"`

	RequiresCaptcha bool `json:"requires_captcha" yaml:"requires_captcha"`

	IsLockedOut      bool          `json:"locked_out" yaml:"locked_out"`
	LockoutRemaining time.Duration `json:"lockout_remaining" yaml:"lockout_remaining"`
}

// CheckFailures evaluates failure statistics at now. The delay doubles per
// failure from one second; at LockoutThreshold failures the email is locked
// until LockoutDuration after the latest failure.
func CheckFailures(stats auth.FailureStats, now time.Time) RateLimitResult {
	result := RateLimitResult{Failures: stats.Count}
	failures := stats.Count

	if failures >= LockoutThreshold {
		until := stats.LastFailure.Add(LockoutDuration)
		if until.After(now) {
			result.IsLockedOut = true
			result.LockoutRemaining = until.Sub(now)
		}
		return result
	}

	if failures > 0 {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
		if result.Delay > maxDelay {
			result.Delay = maxDelay
		}
	}
	if failures >= CaptchaThreshold {
		result.RequiresCaptcha = true
	}
	return result
}

// Throttle loads failures for email within window and evaluates them.
func Throttle(ctx context.Context, store auth.AttemptStore, email string, window time.Duration, now time.Time) (RateLimitResult, error) {
	if window <= 0 {
		window = LockoutDuration
	}
	stats, err := store.CountFailures(ctx, auth.NormalizeEmail(email), now.Add(-window))
	if err != nil {
		return RateLimitResult{}, oops.Code("AUDIT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return CheckFailures(stats, now), nil
}
