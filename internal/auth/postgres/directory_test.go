// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/pkg/errutil"
)

var userCols = []string{
	"id", "username", "email", "password", "salt", "activation_key", "activated", "driver",
	"created_at", "updated_at", "display_name", "attributes",
}

var groupCols = []string{"id", "name", "permissions", "created_at"}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock, New(mock)
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraint}
}

func TestStore_GetUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("loads user, metadata and groups", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`FROM users u LEFT JOIN user_meta m`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(
				int64(7), "alice", "alice@example.com", "digest", "salt", "", true, "local",
				now, now, "Alice", []byte(`{"tz":"UTC"}`),
			))
		mock.ExpectQuery(`JOIN user_group_members ug`).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(groupCols).
				AddRow(int64(1), "admins", []string{"*"}, now).
				AddRow(int64(2), "staff", []string(nil), now))

		user, err := store.GetUser(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice", user.Meta.DisplayName)
		assert.Equal(t, map[string]string{"tz": "UTC"}, user.Meta.Attributes)
		require.Len(t, user.Groups, 2)
		assert.Equal(t, "admins", user.Groups[0].Name)
		assert.Equal(t, []string{}, user.Groups[1].Permissions)
	})

	t.Run("missing user wraps ErrNotFound", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`FROM users u LEFT JOIN user_meta m`).
			WithArgs(int64(99)).
			WillReturnError(pgx.ErrNoRows)

		_, err := store.GetUser(context.Background(), 99)
		errutil.AssertTypedError(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
		errutil.AssertErrorContext(t, err, "user_id", int64(99))
	})

	t.Run("query failure", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`FROM users u LEFT JOIN user_meta m`).
			WithArgs("bob@example.com").
			WillReturnError(errors.New("connection refused"))

		_, err := store.GetUserByEmail(context.Background(), "bob@example.com")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "USER_QUERY_FAILED")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestStore_ListUsers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock, store := newMock(t)

	mock.ExpectQuery(`ORDER BY u.id`).
		WillReturnRows(pgxmock.NewRows(userCols).
			AddRow(int64(1), "alice", "alice@example.com", "", "s1", "", true, "local", now, now, "", []byte(`{}`)).
			AddRow(int64(2), "bob", "bob@example.com", "", "s2", "", true, "local", now, now, "", []byte(`{}`)))
	mock.ExpectQuery(`SELECT ug.user_id`).
		WillReturnRows(pgxmock.NewRows(append([]string{"user_id"}, groupCols...)).
			AddRow(int64(2), int64(5), "staff", []string{"user:*"}, now))

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Empty(t, users[0].Groups)
	require.Len(t, users[1].Groups, 1)
	assert.Equal(t, "staff", users[1].Groups[0].Name)
}

func TestStore_CreateUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newUser := func() *auth.User {
		return &auth.User{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "digest",
			Salt:     "salt",
			Driver:   "local",
			Meta:     auth.UserMeta{DisplayName: "Alice"},
		}
	}

	t.Run("inserts user and metadata", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("alice", "alice@example.com", "digest", "salt", "", false, "local").
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))
		mock.ExpectExec(`INSERT INTO user_meta`).
			WithArgs(int64(3), "Alice", []byte(`{}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		user := newUser()
		require.NoError(t, store.CreateUser(context.Background(), user))
		assert.Equal(t, int64(3), user.ID)
		assert.Equal(t, now, user.CreatedAt)
	})

	t.Run("unique violation wraps ErrDuplicate", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(uniqueViolation("users_email_key"))
		mock.ExpectRollback()

		user := newUser()
		err := store.CreateUser(context.Background(), user)
		require.ErrorIs(t, err, auth.ErrDuplicate)
		errutil.AssertErrorContext(t, err, "constraint", "users_email_key")
		assert.Zero(t, user.ID)
	})

	t.Run("metadata failure rolls back", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))
		mock.ExpectExec(`INSERT INTO user_meta`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		user := newUser()
		err := store.CreateUser(context.Background(), user)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
		assert.Zero(t, user.ID)
	})
}

func TestStore_UpdateUser(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("updates and upserts metadata", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE users SET`).
			WithArgs(int64(3), "alice", "alice@example.com", "new", "", true).
			WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(now))
		mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE`).
			WithArgs(int64(3), "", []byte(`{"k":"v"}`)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		user := &auth.User{
			ID: 3, Username: "alice", Email: "alice@example.com", Password: "new", Activated: true,
			Meta: auth.UserMeta{Attributes: map[string]string{"k": "v"}},
		}
		require.NoError(t, store.UpdateUser(context.Background(), user))
		assert.Equal(t, now, user.UpdatedAt)
	})

	t.Run("missing user", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE users SET`).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := store.UpdateUser(context.Background(), &auth.User{ID: 3})
		errutil.AssertTypedError(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
	})
}

func TestStore_ReplaceUserGroups(t *testing.T) {
	t.Run("locks, clears and inserts existing groups", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
		mock.ExpectExec(`DELETE FROM user_group_members`).
			WithArgs(int64(4)).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(`INSERT INTO user_group_members`).
			WithArgs(int64(4), []int64{1, 2, 99}).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceUserGroups(context.Background(), 4, []int64{1, 2, 99}))
	})

	t.Run("empty set only clears", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
		mock.ExpectExec(`DELETE FROM user_group_members`).
			WithArgs(int64(4)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceUserGroups(context.Background(), 4, nil))
	})

	t.Run("missing user", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(4)).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		err := store.ReplaceUserGroups(context.Background(), 4, []int64{1})
		errutil.AssertTypedError(t, err, auth.ErrNotFound, "USER_NOT_FOUND")
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(int64(4)).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))
		mock.ExpectExec(`DELETE FROM user_group_members`).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec(`INSERT INTO user_group_members`).
			WillReturnError(errors.New("serialization failure"))
		mock.ExpectRollback()

		err := store.ReplaceUserGroups(context.Background(), 4, []int64{1})
		errutil.AssertErrorCode(t, err, "MEMBERSHIP_REPLACE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "insert")
	})
}

func TestStore_Groups(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`INSERT INTO user_groups`).
			WithArgs("admins", []string{}).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

		group := &auth.UserGroup{Name: "admins"}
		require.NoError(t, store.CreateGroup(context.Background(), group))
		assert.Equal(t, int64(1), group.ID)
		assert.Equal(t, []string{}, group.Permissions)
	})

	t.Run("create duplicate", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`INSERT INTO user_groups`).
			WillReturnError(uniqueViolation("user_groups_name_key"))

		err := store.CreateGroup(context.Background(), &auth.UserGroup{Name: "admins"})
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("get by name missing", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`WHERE g.name = \$1`).WithArgs("ghosts").WillReturnError(pgx.ErrNoRows)

		_, err := store.GetGroupByName(context.Background(), "ghosts")
		errutil.AssertTypedError(t, err, auth.ErrNotFound, "GROUP_NOT_FOUND")
	})

	t.Run("list", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectQuery(`FROM user_groups g ORDER BY g.id`).
			WillReturnRows(pgxmock.NewRows(groupCols).
				AddRow(int64(1), "admins", []string{"*"}, now).
				AddRow(int64(2), "staff", []string{"user:read"}, now))

		groups, err := store.ListGroups(context.Background())
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, "staff", groups[1].Name)
	})

	t.Run("rename missing", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE user_groups SET name`).
			WithArgs(int64(9), "x").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := store.UpdateGroup(context.Background(), &auth.UserGroup{ID: 9, Name: "x"})
		errutil.AssertTypedError(t, err, auth.ErrNotFound, "GROUP_NOT_FOUND")
	})

	t.Run("rename duplicate", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE user_groups SET name`).
			WillReturnError(uniqueViolation("user_groups_name_key"))

		err := store.UpdateGroup(context.Background(), &auth.UserGroup{ID: 2, Name: "admins"})
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("delete", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`DELETE FROM user_groups`).
			WithArgs(int64(2)).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, store.DeleteGroup(context.Background(), 2))
	})

	t.Run("set permissions", func(t *testing.T) {
		mock, store := newMock(t)
		mock.ExpectExec(`UPDATE user_groups SET permissions`).
			WithArgs(int64(2), []string{}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, store.SetGroupPermissions(context.Background(), 2, nil))
	})
}
