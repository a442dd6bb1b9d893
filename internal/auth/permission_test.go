// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/auth"
)

func TestValidatePermission(t *testing.T) {
	for _, p := range []string{"user:read", "user:*", "admin:**", "group:{read,write}"} {
		assert.NoError(t, auth.ValidatePermission(p), p)
	}
	assert.Error(t, auth.ValidatePermission("user:["))
}

func TestPermissionChecker_Allowed(t *testing.T) {
	checker, err := auth.NewPermissionChecker(2)
	require.NoError(t, err)

	user := &auth.User{
		ID: 1,
		Groups: []auth.UserGroup{
			{ID: 1, Name: "editors", Permissions: []string{"post:*", "comment:{read,write}"}},
			{ID: 2, Name: "ops", Permissions: []string{"server:**", "broken:["}},
		},
	}

	tests := []struct {
		perm string
		want bool
	}{
		{"post:edit", true},
		{"post:edit:draft", false},
		{"comment:write", true},
		{"comment:delete", false},
		{"server:restart:now", true},
		{"user:delete", false},
		{"broken:[", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.perm, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.Allowed(user, tt.perm))
		})
	}

	t.Run("cache eviction does not change answers", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.True(t, checker.Allowed(user, "post:edit"))
			assert.True(t, checker.Allowed(user, "server:x"))
		}
	})

	t.Run("guest holds nothing", func(t *testing.T) {
		guest := auth.GuestUser()
		guest.Groups = user.Groups
		assert.False(t, checker.Allowed(guest, "post:edit"))
	})
}
