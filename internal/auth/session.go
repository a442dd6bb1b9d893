// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// SessionKey names the session slot holding the authenticated user's ID.
const SessionKey = "ethanol_user"

// SessionStore is one caller's session, e.g. the session bound to a single
// HTTP request. Get reports false when the key is absent.
type SessionStore interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, id int64) error
	Delete(ctx context.Context, key string) error
}

// SessionResolver maps a session to the user it holds.
type SessionResolver struct {
	dir    *Directory
	logger *slog.Logger
}

// NewSessionResolver creates a resolver reading users from dir.
func NewSessionResolver(dir *Directory, logger *slog.Logger) (*SessionResolver, error) {
	if dir == nil {
		return nil, oops.Errorf("directory is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &SessionResolver{dir: dir, logger: logger}, nil
}

// CurrentUser returns the user held by sess, or the guest user when the slot
// is absent. A slot naming a user that no longer exists is cleared.
func (r *SessionResolver) CurrentUser(ctx context.Context, sess SessionStore) (*User, error) {
	id, ok, err := sess.Get(ctx, SessionKey)
	if err != nil {
		return nil, oops.Code("SESSION_READ_FAILED").Wrap(err)
	}
	if !ok || id == GuestID {
		return GuestUser(), nil
	}

	user, err := r.dir.GetUser(ctx, id)
	if errors.Is(err, ErrNoSuchUser) {
		r.logger.Warn("session references missing user, clearing", "user_id", id)
		if delErr := sess.Delete(ctx, SessionKey); delErr != nil {
			return nil, oops.Code("SESSION_WRITE_FAILED").Wrap(delErr)
		}
		return GuestUser(), nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// LoggedIn reports whether sess holds a non-guest user.
func (r *SessionResolver) LoggedIn(ctx context.Context, sess SessionStore) (bool, error) {
	user, err := r.CurrentUser(ctx, sess)
	if err != nil {
		return false, err
	}
	return user.ID != GuestID, nil
}

// Remember stores user in sess.
func (r *SessionResolver) Remember(ctx context.Context, sess SessionStore, user *User) error {
	if user.IsGuest() {
		return oops.Code("SESSION_GUEST").Errorf("the guest user cannot be stored in a session")
	}
	if err := sess.Set(ctx, SessionKey, user.ID); err != nil {
		return oops.Code("SESSION_WRITE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

// LogOut clears the session slot.
func (r *SessionResolver) LogOut(ctx context.Context, sess SessionStore) error {
	if err := sess.Delete(ctx, SessionKey); err != nil {
		return oops.Code("SESSION_WRITE_FAILED").Wrap(err)
	}
	return nil
}
