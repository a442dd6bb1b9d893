// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/auth/authtest"
	"github.com/holomush/ethanol/internal/auth/mocks"
	"github.com/holomush/ethanol/pkg/errutil"
)

func newTestRegistry(t *testing.T, builds *atomic.Int32) (*auth.Registry, *authtest.Env) {
	t.Helper()
	env := authtest.NewEnv(t)
	extra := mocks.NewMockDriver(t, "external")
	set, err := auth.NewDriverSet(env.Logger, env.Local, extra)
	require.NoError(t, err)
	perms, err := auth.NewPermissionChecker(0)
	require.NoError(t, err)

	reg, err := auth.NewRegistry(set, "", func(active auth.Driver) (*auth.Service, error) {
		builds.Add(1)
		return auth.NewService(active, set, env.Service.Directory(), authtest.FastHasher(), env.Auditor, perms, env.Logger)
	})
	require.NoError(t, err)
	return reg, env
}

func TestNewRegistry(t *testing.T) {
	env := authtest.NewEnv(t)
	build := func(auth.Driver) (*auth.Service, error) { return env.Service, nil }

	_, err := auth.NewRegistry(nil, "", build)
	assert.ErrorContains(t, err, "driver set is required")

	_, err = auth.NewRegistry(env.Drivers, "", nil)
	assert.ErrorContains(t, err, "facade factory is required")

	_, err = auth.NewRegistry(env.Drivers, "ldap", build)
	errutil.AssertErrorCode(t, err, "DRIVER_NOT_REGISTERED")

	reg, err := auth.NewRegistry(env.Drivers, "", build)
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultDriverName, reg.DefaultName())
	assert.Same(t, env.Drivers, reg.Drivers())
}

func TestRegistry_Facade(t *testing.T) {
	var builds atomic.Int32
	reg, _ := newTestRegistry(t, &builds)

	def, err := reg.Facade("")
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultDriverName, def.DriverName())

	again, err := reg.Facade(auth.DefaultDriverName)
	require.NoError(t, err)
	assert.Same(t, def, again)

	ext, err := reg.Facade("external")
	require.NoError(t, err)
	assert.Equal(t, "external", ext.DriverName())
	assert.NotSame(t, def, ext)
	assert.Equal(t, int32(2), builds.Load())

	_, err = reg.Facade("ldap")
	errutil.AssertErrorCode(t, err, "DRIVER_NOT_REGISTERED")
	assert.Equal(t, int32(2), builds.Load())
}

func TestRegistry_CachesBuildFailures(t *testing.T) {
	env := authtest.NewEnv(t)
	var builds atomic.Int32
	reg, err := auth.NewRegistry(env.Drivers, "", func(auth.Driver) (*auth.Service, error) {
		builds.Add(1)
		return nil, assert.AnError
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := reg.Facade("")
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Equal(t, int32(1), builds.Load())
}

func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	// The SQLite pool is closed in t.Cleanup, after this check runs.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	var builds atomic.Int32
	reg, _ := newTestRegistry(t, &builds)

	const workers = 64
	results := make([]*auth.Service, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := auth.DefaultDriverName
			if i%2 == 1 {
				name = "external"
			}
			svc, err := reg.Facade(name)
			assert.NoError(t, err)
			results[i] = svc
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(2), builds.Load(), "one facade per driver name")
	for i := 2; i < workers; i++ {
		assert.Same(t, results[i%2], results[i])
	}
}
