// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/auth"
)

func TestNewLoginAttempt(t *testing.T) {
	before := time.Now().UTC()
	a := auth.NewLoginAttempt("a@example.com", auth.AttemptGood, auth.DefaultDriverName)
	b := auth.NewLoginAttempt("a@example.com", auth.AttemptNoSuchUser, "")

	assert.NotEqual(t, a.ID, b.ID)
	assert.LessOrEqual(t, a.ID.Compare(b.ID), 0, "ids are time ordered")
	assert.Equal(t, time.UTC, a.Timestamp.Location())
	assert.False(t, a.Timestamp.Before(before.Truncate(time.Millisecond)))

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"driver"`)
	assert.Contains(t, string(data), `"status":"NO_SUCH_USER"`)
}

func TestAttemptStatus_Valid(t *testing.T) {
	for _, s := range []auth.AttemptStatus{auth.AttemptGood, auth.AttemptNoSuchUser, auth.AttemptBadCredentials} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, auth.AttemptStatus("MAYBE").Valid())
}
