// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides in-process collaborators for exercising the auth
// facade in tests.
package authtest

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/auth/sqlite"
)

// FastHasher returns an argon2id hasher with parameters small enough for
// tests.
func FastHasher() auth.CredentialHasher {
	return auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32})
}

// MemorySession is a map-backed auth.SessionStore.
type MemorySession struct {
	mu    sync.Mutex
	slots map[string]int64
}

// NewMemorySession returns an empty session.
func NewMemorySession() *MemorySession {
	return &MemorySession{slots: make(map[string]int64)}
}

// Get implements auth.SessionStore.
func (s *MemorySession) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.slots[key]
	return id, ok, nil
}

// Set implements auth.SessionStore.
func (s *MemorySession) Set(_ context.Context, key string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = id
	return nil
}

// Delete implements auth.SessionStore.
func (s *MemorySession) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
	return nil
}

// Snapshot returns a copy of the session contents.
func (s *MemorySession) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// RecordingAuditor keeps every recorded attempt in memory.
type RecordingAuditor struct {
	mu       sync.Mutex
	attempts []auth.LoginAttempt
	err      error
}

// Record implements auth.Auditor.
func (a *RecordingAuditor) Record(_ context.Context, attempt auth.LoginAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.attempts = append(a.attempts, attempt)
	return nil
}

// FailWith makes subsequent Record calls return err. A nil err restores
// normal recording.
func (a *RecordingAuditor) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Attempts returns the recorded attempts in order.
func (a *RecordingAuditor) Attempts() []auth.LoginAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auth.LoginAttempt{}, a.attempts...)
}

// Env is a facade wired over a temporary SQLite database.
type Env struct {
	Store   *sqlite.Store
	Local   *auth.LocalDriver
	Drivers *auth.DriverSet
	Service *auth.Service
	Auditor *RecordingAuditor
	Logs    *bytes.Buffer
	Logger  *slog.Logger
}

// Option adjusts an Env before the facade is built.
type Option func(*envConfig)

type envConfig struct {
	policy auth.ProvisionPolicy
	extra  []func(store auth.DirectoryStore, logger *slog.Logger) auth.Driver
}

// WithPolicy sets the provisioning policy of the local driver.
func WithPolicy(policy auth.ProvisionPolicy) Option {
	return func(c *envConfig) { c.policy = policy }
}

// WithDriver registers an additional driver after the local driver.
func WithDriver(build func(store auth.DirectoryStore, logger *slog.Logger) auth.Driver) Option {
	return func(c *envConfig) { c.extra = append(c.extra, build) }
}

// NewEnv builds an Env whose active driver is the local driver.
func NewEnv(t testing.TB, opts ...Option) *Env {
	t.Helper()
	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hasher := FastHasher()
	local, err := auth.NewLocalDriver(store, hasher, auth.NewRandomGenerator(), cfg.policy, logger)
	require.NoError(t, err)

	drivers := []auth.Driver{local}
	for _, build := range cfg.extra {
		drivers = append(drivers, build(store, logger))
	}
	set, err := auth.NewDriverSet(logger, drivers...)
	require.NoError(t, err)

	dir, err := auth.NewDirectory(store)
	require.NoError(t, err)
	perms, err := auth.NewPermissionChecker(0)
	require.NoError(t, err)

	auditor := &RecordingAuditor{}
	svc, err := auth.NewService(local, set, dir, hasher, auditor, perms, logger)
	require.NoError(t, err)

	return &Env{
		Store:   store,
		Local:   local,
		Drivers: set,
		Service: svc,
		Auditor: auditor,
		Logs:    logs,
		Logger:  logger,
	}
}

// CreateUser provisions an account through the facade and fails the test on
// error.
func (e *Env) CreateUser(t testing.TB, email, password string) *auth.User {
	t.Helper()
	user, err := e.Service.CreateUser(context.Background(), email, auth.NewUser{Password: password})
	require.NoError(t, err)
	return user
}
