// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection and schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32

	// PingAttempts bounds the startup ping retries.
	PingAttempts uint64

	// PingBackoff is the base of the exponential backoff between pings.
	PingBackoff time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.PingAttempts == 0 {
		o.PingAttempts = 5
	}
	if o.PingBackoff <= 0 {
		o.PingBackoff = 200 * time.Millisecond
	}
	return o
}

// Connect opens a pool and waits until the database answers a ping.
func Connect(ctx context.Context, dsn string, opts ConnectOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(opts.PingAttempts-1, retry.NewExponential(opts.PingBackoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_PING_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
