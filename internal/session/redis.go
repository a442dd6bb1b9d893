// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// DefaultRedisPrefix namespaces session hashes.
const DefaultRedisPrefix = "ethanol:session:"

// RedisBackend hands out sessions stored as Redis hashes.
type RedisBackend struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	tokens auth.TokenGenerator
}

// NewRedisBackend creates a backend. Each write refreshes the hash TTL.
func NewRedisBackend(client redis.UniversalClient, ttl time.Duration, prefix string) (*RedisBackend, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, oops.With("ttl", ttl).Errorf("session ttl must be positive")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, ttl: ttl, prefix: prefix, tokens: auth.NewRandomGenerator()}, nil
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_PING_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// Session returns the session for token. An empty token gets a fresh one.
func (b *RedisBackend) Session(token string) (*Redis, error) {
	if token == "" {
		fresh, err := b.tokens.Generate(auth.DefaultTokenLength)
		if err != nil {
			return nil, err
		}
		token = fresh
	}
	return &Redis{backend: b, token: token}, nil
}

// Redis is one session hash.
type Redis struct {
	backend *RedisBackend
	token   string
}

var _ auth.SessionStore = (*Redis)(nil)

// Token identifies the session to the client.
func (r *Redis) Token() string {
	return r.token
}

func (r *Redis) key() string {
	return r.backend.prefix + r.token
}

// Get returns the ID stored under field key.
func (r *Redis) Get(ctx context.Context, key string) (int64, bool, error) {
	raw, err := r.backend.client.HGet(ctx, r.key(), key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("SESSION_READ_FAILED").With("key", key).Wrap(err)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, oops.Code("SESSION_CORRUPT").With("key", key).Wrap(err)
	}
	return id, true, nil
}

// Set stores id under a freshly generated token so a token seen before the
// write is never reused after it. Existing fields move to the new hash and the
// old hash is removed in the same transaction.
func (r *Redis) Set(ctx context.Context, key string, id int64) error {
	fields, err := r.backend.client.HGetAll(ctx, r.key()).Result()
	if err != nil {
		return oops.Code("SESSION_READ_FAILED").With("key", key).Wrap(err)
	}
	fresh, err := r.backend.tokens.Generate(auth.DefaultTokenLength)
	if err != nil {
		return oops.Code("SESSION_WRITE_FAILED").With("key", key).Wrap(err)
	}

	oldKey, newKey := r.key(), r.backend.prefix+fresh
	values := make([]any, 0, 2*len(fields)+2)
	for field, value := range fields {
		if field != key {
			values = append(values, field, value)
		}
	}
	values = append(values, key, strconv.FormatInt(id, 10))

	_, err = r.backend.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, newKey, values...)
		pipe.Expire(ctx, newKey, r.backend.ttl)
		pipe.Del(ctx, oldKey)
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_WRITE_FAILED").With("key", key).Wrap(err)
	}
	r.token = fresh
	return nil
}

// Delete removes field key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.backend.client.HDel(ctx, r.key(), key).Err(); err != nil {
		return oops.Code("SESSION_WRITE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}
