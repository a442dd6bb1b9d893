// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// SQLiteSchema creates the table sqlite3store reads and writes.
const SQLiteSchema = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

// SCS adapts an scs session manager. The context passed to each method must
// carry session data, i.e. come from LoadAndSave middleware or Manager.Load.
type SCS struct {
	manager *scs.SessionManager
}

var _ auth.SessionStore = (*SCS)(nil)

// NewSCS wraps manager.
func NewSCS(manager *scs.SessionManager) (*SCS, error) {
	if manager == nil {
		return nil, oops.Errorf("session manager is required")
	}
	return &SCS{manager: manager}, nil
}

// NewSQLiteManager returns a session manager persisting to db. The sessions
// table is created if missing. cleanup of zero disables the background
// expiry sweep.
func NewSQLiteManager(ctx context.Context, db *sql.DB, lifetime, cleanup time.Duration) (*scs.SessionManager, error) {
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		return nil, oops.Code("SESSION_SCHEMA_FAILED").Wrap(err)
	}
	manager := scs.New()
	manager.Store = sqlite3store.NewWithCleanupInterval(db, cleanup)
	if lifetime > 0 {
		manager.Lifetime = lifetime
		manager.IdleTimeout = lifetime / 2
	}
	manager.Cookie.Name = "ethanol_session"
	manager.Cookie.HttpOnly = true
	return manager, nil
}

// Manager returns the wrapped session manager.
func (s *SCS) Manager() *scs.SessionManager {
	return s.manager
}

// Get returns the ID stored under key.
func (s *SCS) Get(ctx context.Context, key string) (int64, bool, error) {
	if !s.manager.Exists(ctx, key) {
		return 0, false, nil
	}
	id, ok := s.manager.Get(ctx, key).(int64)
	if !ok {
		return 0, false, oops.Code("SESSION_CORRUPT").With("key", key).Errorf("session slot does not hold an id")
	}
	return id, true, nil
}

// Set stores id under key. The token is renewed first so a session id seen
// before login is never reused after it.
func (s *SCS) Set(ctx context.Context, key string, id int64) error {
	if err := s.manager.RenewToken(ctx); err != nil {
		return oops.With("key", key).Wrap(err)
	}
	s.manager.Put(ctx, key, id)
	return nil
}

// Delete removes key.
func (s *SCS) Delete(ctx context.Context, key string) error {
	s.manager.Remove(ctx, key)
	return nil
}
