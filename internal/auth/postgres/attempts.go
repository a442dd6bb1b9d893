// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

var _ auth.AttemptStore = (*Store)(nil)

// Append inserts one attempt.
func (s *Store) Append(ctx context.Context, attempt auth.LoginAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO login_attempts (id, email, status, driver, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, attempt.ID.String(), attempt.Email, string(attempt.Status), attempt.Driver, attempt.Timestamp.UTC())
	if err != nil {
		return oops.Code("ATTEMPT_APPEND_FAILED").With("attempt_id", attempt.ID.String()).Wrap(err)
	}
	return nil
}

// ListRecent returns up to limit attempts, newest first. limit <= 0 means no
// limit.
func (s *Store) ListRecent(ctx context.Context, email string, limit int) ([]auth.LoginAttempt, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, email, status, driver, created_at FROM login_attempts`)
	if email != "" {
		args = append(args, email)
		fmt.Fprintf(&sb, ` WHERE email = $%d`, len(args))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	defer rows.Close()

	attempts := []auth.LoginAttempt{}
	for rows.Next() {
		var (
			id, status string
			a          auth.LoginAttempt
		)
		if err := rows.Scan(&id, &a.Email, &status, &a.Driver, &a.Timestamp); err != nil {
			return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
		}
		parsed, err := ulid.Parse(id)
		if err != nil {
			return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("attempt_id", id).Wrap(err)
		}
		a.ID = parsed
		a.Status = auth.AttemptStatus(status)
		a.Timestamp = a.Timestamp.UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	return attempts, nil
}

// CountFailures counts non-GOOD attempts for email at or after since.
func (s *Store) CountFailures(ctx context.Context, email string, since time.Time) (auth.FailureStats, error) {
	var (
		count int
		last  *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MAX(created_at)
		FROM login_attempts
		WHERE email = $1 AND status <> 'GOOD' AND created_at >= $2
	`, email, since.UTC()).Scan(&count, &last)
	if err != nil {
		return auth.FailureStats{}, oops.Code("ATTEMPT_QUERY_FAILED").With("email", email).Wrap(err)
	}
	stats := auth.FailureStats{Count: count}
	if last != nil {
		stats.LastFailure = last.UTC()
	}
	return stats, nil
}
