// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/auth/authtest"
	"github.com/holomush/ethanol/internal/auth/mocks"
	"github.com/holomush/ethanol/pkg/errutil"
)

func TestNewLocalDriver_NilDependencies(t *testing.T) {
	store := mocks.NewMockDirectoryStore(t)
	hasher := authtest.FastHasher()
	random := auth.NewRandomGenerator()
	logger := discardLogger()

	tests := []struct {
		name    string
		build   func() (*auth.LocalDriver, error)
		wantErr string
	}{
		{"nil store", func() (*auth.LocalDriver, error) {
			return auth.NewLocalDriver(nil, hasher, random, auth.ProvisionPolicy{}, logger)
		}, "directory store is required"},
		{"nil hasher", func() (*auth.LocalDriver, error) {
			return auth.NewLocalDriver(store, nil, random, auth.ProvisionPolicy{}, logger)
		}, "credential hasher is required"},
		{"nil random", func() (*auth.LocalDriver, error) {
			return auth.NewLocalDriver(store, hasher, nil, auth.ProvisionPolicy{}, logger)
		}, "token generator is required"},
		{"nil logger", func() (*auth.LocalDriver, error) {
			return auth.NewLocalDriver(store, hasher, random, auth.ProvisionPolicy{}, nil)
		}, "logger is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, d)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocalDriver_CreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("stores salt and digest, never the password", func(t *testing.T) {
		env := authtest.NewEnv(t)

		user, err := env.Local.CreateUser(ctx, " Alice@Example.com ", auth.NewUser{Password: "hunter2"})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, auth.DefaultDriverName, user.Driver)
		assert.True(t, user.Activated)
		assert.Empty(t, user.ActivationKey)
		assert.NotEmpty(t, user.Salt)
		assert.NotEqual(t, "hunter2", user.Password)

		digest, err := authtest.FastHasher().Hash("hunter2", user.Salt)
		require.NoError(t, err)
		assert.Equal(t, digest, user.Password)

		stored, err := env.Store.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.Salt, stored.Salt)
		assert.Equal(t, user.Password, stored.Password)
	})

	t.Run("explicit username and meta", func(t *testing.T) {
		env := authtest.NewEnv(t)

		user, err := env.Local.CreateUser(ctx, "bob@example.com", auth.NewUser{
			Username: "Bobby",
			Password: "pw",
			Meta:     auth.UserMeta{DisplayName: "Bob", Attributes: map[string]string{"lang": "de"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bobby", user.Username)

		stored, err := env.Store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Bob", stored.Meta.DisplayName)
		assert.Equal(t, "de", stored.Meta.Attributes["lang"])
	})

	t.Run("activation key when emails must be activated", func(t *testing.T) {
		env := authtest.NewEnv(t, authtest.WithPolicy(auth.ProvisionPolicy{ActivateEmails: true, ActivationKeyLength: 12}))

		user, err := env.Local.CreateUser(ctx, "carol@example.com", auth.NewUser{Password: "pw"})
		require.NoError(t, err)
		assert.False(t, user.Activated)
		assert.Len(t, user.ActivationKey, 12)
		assert.True(t, user.PendingActivation())
	})

	t.Run("duplicate email", func(t *testing.T) {
		env := authtest.NewEnv(t)
		env.CreateUser(t, "dave@example.com", "pw")

		_, err := env.Local.CreateUser(ctx, "DAVE@example.com", auth.NewUser{Password: "other"})
		errutil.AssertTypedError(t, err, auth.ErrColumnNotUnique, auth.CodeColumnNotUnique)
		errutil.AssertErrorContext(t, err, "column", "email")
	})

	t.Run("invalid input", func(t *testing.T) {
		env := authtest.NewEnv(t)

		_, err := env.Local.CreateUser(ctx, "not-an-email", auth.NewUser{Password: "pw"})
		errutil.AssertErrorCode(t, err, "INVALID_EMAIL")

		_, err = env.Local.CreateUser(ctx, "erin@example.com", auth.NewUser{})
		assert.ErrorIs(t, err, auth.ErrEmptySecret)
	})
}

func TestLocalDriver_ValidateUser(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	env.CreateUser(t, "alice@example.com", "hunter2")

	t.Run("correct password", func(t *testing.T) {
		user, err := env.Local.ValidateUser(ctx, "ALICE@example.com", auth.Credentials{Secret: "hunter2"})
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "alice@example.com", user.Email)
	})

	t.Run("no match", func(t *testing.T) {
		for _, tc := range []struct{ email, secret string }{
			{"alice@example.com", "wrong"},
			{"alice@example.com", ""},
			{"nobody@example.com", "hunter2"},
		} {
			user, err := env.Local.ValidateUser(ctx, tc.email, auth.Credentials{Secret: tc.secret})
			require.NoError(t, err)
			assert.Nil(t, user, "%s/%s", tc.email, tc.secret)
		}
	})

	t.Run("pending activation never validates", func(t *testing.T) {
		pending := authtest.NewEnv(t, authtest.WithPolicy(auth.ProvisionPolicy{ActivateEmails: true}))
		pending.CreateUser(t, "bob@example.com", "pw")

		user, err := pending.Local.ValidateUser(ctx, "bob@example.com", auth.Credentials{Secret: "pw"})
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("store failure is an error", func(t *testing.T) {
		store := mocks.NewMockDirectoryStore(t)
		store.On("GetUserByEmail", mock.Anything, "x@example.com").Return(nil, assert.AnError)
		d, err := auth.NewLocalDriver(store, authtest.FastHasher(), auth.NewRandomGenerator(), auth.ProvisionPolicy{}, discardLogger())
		require.NoError(t, err)

		_, err = d.ValidateUser(ctx, "x@example.com", auth.Credentials{Secret: "pw"})
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestLocalDriver_ValidateUser_UpgradesDigest(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	user := env.CreateUser(t, "alice@example.com", "hunter2")

	weak := auth.NewArgon2idHasher(auth.Argon2Params{Time: 1, MemoryKiB: 32, Threads: 1, KeyLen: 32})
	old, err := weak.Hash("hunter2", user.Salt)
	require.NoError(t, err)
	user.Password = old
	require.NoError(t, env.Store.UpdateUser(ctx, user))

	validated, err := env.Local.ValidateUser(ctx, "alice@example.com", auth.Credentials{Secret: "hunter2"})
	require.NoError(t, err)
	require.NotNil(t, validated)

	stored, err := env.Store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old, stored.Password)
	assert.False(t, authtest.FastHasher().NeedsUpgrade(stored.Password))
	assert.True(t, strings.Contains(env.Logs.String(), "upgraded credential digest"))
}

func TestLocalDriver_UserExists(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	env.CreateUser(t, "alice@example.com", "hunter2")

	require.NoError(t, env.Store.CreateUser(ctx, &auth.User{
		Username: "ext", Email: "ext@example.com", Salt: "ext-salt", Activated: true, Driver: "oidc",
	}))

	exists, err := env.Local.UserExists(ctx, "Alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = env.Local.UserExists(ctx, "ext@example.com")
	require.NoError(t, err)
	assert.False(t, exists, "accounts without a local password are not claimed")

	exists, err = env.Local.UserExists(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalDriver_ActivateUser(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t, authtest.WithPolicy(auth.ProvisionPolicy{ActivateEmails: true}))
	user := env.CreateUser(t, "alice@example.com", "hunter2")

	ok, err := env.Local.ActivateUser(ctx, auth.Activation{Email: "alice@example.com", Key: "wrong"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.Local.ActivateUser(ctx, auth.Activation{Email: "nobody@example.com", Key: user.ActivationKey})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.Local.ActivateUser(ctx, auth.Activation{Email: "alice@example.com", Key: user.ActivationKey})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := env.Store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Activated)
	assert.Empty(t, stored.ActivationKey)

	ok, err = env.Local.ActivateUser(ctx, auth.Activation{Email: "alice@example.com", Key: user.ActivationKey})
	require.NoError(t, err)
	assert.False(t, ok, "a key is redeemed once")
}

func TestLocalDriver_ChangePassword(t *testing.T) {
	ctx := context.Background()
	env := authtest.NewEnv(t)
	user := env.CreateUser(t, "alice@example.com", "hunter2")
	salt := user.Salt

	err := env.Local.ChangePassword(ctx, user, auth.Credentials{Secret: "wrong"}, auth.Credentials{Secret: "new"})
	errutil.AssertTypedError(t, err, auth.ErrLogInFailed, auth.CodeLogInFailed)

	require.NoError(t, env.Local.ChangePassword(ctx, user, auth.Credentials{Secret: "hunter2"}, auth.Credentials{Secret: "new"}))

	validated, err := env.Local.ValidateUser(ctx, "alice@example.com", auth.Credentials{Secret: "new"})
	require.NoError(t, err)
	require.NotNil(t, validated)
	assert.Equal(t, salt, validated.Salt, "the salt is never regenerated")

	external := &auth.User{ID: 99, Driver: "oidc"}
	err = env.Local.ChangePassword(ctx, external, auth.Credentials{}, auth.Credentials{Secret: "x"})
	errutil.AssertErrorCode(t, err, "DRIVER_READ_ONLY")
}
