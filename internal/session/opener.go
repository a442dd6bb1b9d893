// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"

	"github.com/alexedwards/scs/v2"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// Handle is a session opened from a client-held token.
type Handle interface {
	auth.SessionStore

	// Commit persists pending writes and returns the token the client
	// presents next time. The token may differ from the one opened.
	Commit(ctx context.Context) (string, error)
}

// Opener resumes sessions from tokens. An empty token opens a new session.
type Opener interface {
	Open(ctx context.Context, token string) (Handle, error)
}

// Open implements Opener.
func (s *TokenSigner) Open(_ context.Context, token string) (Handle, error) {
	t, err := s.Session(token)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Commit returns the current signed token.
func (t *Token) Commit(context.Context) (string, error) {
	return t.raw, nil
}

// Open implements Opener.
func (b *RedisBackend) Open(_ context.Context, token string) (Handle, error) {
	r, err := b.Session(token)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Commit returns the session token. Writes are already persisted.
func (r *Redis) Commit(context.Context) (string, error) {
	return r.token, nil
}

// SCSOpener opens scs sessions outside an HTTP request.
type SCSOpener struct {
	store *SCS
}

// NewSCSOpener wraps manager.
func NewSCSOpener(manager *scs.SessionManager) (*SCSOpener, error) {
	store, err := NewSCS(manager)
	if err != nil {
		return nil, err
	}
	return &SCSOpener{store: store}, nil
}

// Open loads the session named by token.
func (o *SCSOpener) Open(ctx context.Context, token string) (Handle, error) {
	loaded, err := o.store.manager.Load(ctx, token)
	if err != nil {
		return nil, oops.Code("SESSION_READ_FAILED").Wrap(err)
	}
	return &scsHandle{store: o.store, ctx: loaded}, nil
}

// scsHandle binds an SCS store to the context its session was loaded into.
type scsHandle struct {
	store *SCS
	ctx   context.Context //nolint:containedctx // scs keeps session data in the context
}

func (h *scsHandle) Get(_ context.Context, key string) (int64, bool, error) {
	return h.store.Get(h.ctx, key)
}

func (h *scsHandle) Set(_ context.Context, key string, id int64) error {
	return h.store.Set(h.ctx, key, id)
}

func (h *scsHandle) Delete(_ context.Context, key string) error {
	return h.store.Delete(h.ctx, key)
}

func (h *scsHandle) Commit(context.Context) (string, error) {
	token, _, err := h.store.manager.Commit(h.ctx)
	if err != nil {
		return "", oops.Code("SESSION_WRITE_FAILED").Wrap(err)
	}
	return token, nil
}
