// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/holomush/ethanol/internal/auth"
)

// Compile-time check that Store implements auth.AttemptStore.
var _ auth.AttemptStore = (*Store)(nil)

// Append inserts one attempt. Records are never updated.
func (s *Store) Append(ctx context.Context, attempt auth.LoginAttempt) error {
	rec := attemptRecord{
		ID:        attempt.ID.String(),
		Email:     attempt.Email,
		Status:    string(attempt.Status),
		Driver:    attempt.Driver,
		CreatedAt: attempt.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return oops.Code("ATTEMPT_APPEND_FAILED").With("attempt_id", rec.ID).Wrap(err)
	}
	return nil
}

// ListRecent returns up to limit attempts, newest first.
func (s *Store) ListRecent(ctx context.Context, email string, limit int) ([]auth.LoginAttempt, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if email != "" {
		q = q.Where("email = ?", email)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []attemptRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}

	attempts := make([]auth.LoginAttempt, 0, len(recs))
	for i := range recs {
		a, err := toAttempt(&recs[i])
		if err != nil {
			return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("attempt_id", recs[i].ID).Wrap(err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

// CountFailures counts non-GOOD attempts for email since the given time.
func (s *Store) CountFailures(ctx context.Context, email string, since time.Time) (auth.FailureStats, error) {
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&attemptRecord{}).
			Where("email = ? AND status <> ? AND created_at >= ?", email, string(auth.AttemptGood), since.UTC())
	}

	var count int64
	if err := base().Count(&count).Error; err != nil {
		return auth.FailureStats{}, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	if count == 0 {
		return auth.FailureStats{}, nil
	}

	var last attemptRecord
	err := base().Order("created_at DESC").Order("id DESC").First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.FailureStats{}, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return auth.FailureStats{Count: int(count), LastFailure: last.CreatedAt.UTC()}, nil
}
