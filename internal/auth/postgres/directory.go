// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

var _ auth.DirectoryStore = (*Store)(nil)

const userColumns = `u.id, u.username, u.email, u.password, u.salt, u.activation_key, u.activated, u.driver,
	u.created_at, u.updated_at, COALESCE(m.display_name, ''), COALESCE(m.attributes, '{}'::jsonb)`

const userFrom = `FROM users u LEFT JOIN user_meta m ON m.user_id = u.id`

const groupColumns = `g.id, g.name, g.permissions, g.created_at`

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		attrs []byte
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Salt, &u.ActivationKey,
		&u.Activated, &u.Driver, &u.CreatedAt, &u.UpdatedAt, &u.Meta.DisplayName, &attrs)
	if err != nil {
		return nil, err
	}
	u.Meta.Attributes = map[string]string{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.Meta.Attributes); err != nil {
			return nil, oops.With("user_id", u.ID).With("operation", "decode attributes").Wrap(err)
		}
	}
	u.Groups = []auth.UserGroup{}
	return &u, nil
}

func scanGroup(row pgx.Row) (*auth.UserGroup, error) {
	var g auth.UserGroup
	if err := row.Scan(&g.ID, &g.Name, &g.Permissions, &g.CreatedAt); err != nil {
		return nil, err
	}
	if g.Permissions == nil {
		g.Permissions = []string{}
	}
	return &g, nil
}

func encodeAttributes(attrs map[string]string) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, oops.With("operation", "encode attributes").Wrap(err)
	}
	return data, nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any, key string) (*auth.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, arg).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With(key, arg).Wrap(err)
	}

	groups, err := s.userGroups(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Groups = groups
	return user, nil
}

func (s *Store) userGroups(ctx context.Context, userID int64) ([]auth.UserGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+groupColumns+`
		FROM user_groups g
		JOIN user_group_members ug ON ug.group_id = g.id
		WHERE ug.user_id = $1
		ORDER BY g.id
	`, userID)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	groups := []auth.UserGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("user_id", userID).Wrap(err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("user_id", userID).Wrap(err)
	}
	return groups, nil
}

// GetUser retrieves a user by ID with groups and metadata.
func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.getUser(ctx, `u.id = $1`, id, "user_id")
}

// GetUserByEmail retrieves a user by email with groups and metadata.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, `u.email = $1`, email, "email")
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` `+userFrom+` ORDER BY u.id`)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	users := []*auth.User{}
	byID := map[int64]*auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	if len(users) == 0 {
		return users, nil
	}

	rows, err = s.pool.Query(ctx, `
		SELECT ug.user_id, `+groupColumns+`
		FROM user_group_members ug
		JOIN user_groups g ON g.id = ug.group_id
		ORDER BY ug.user_id, g.id
	`)
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list memberships").Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID int64
			g      auth.UserGroup
		)
		if err := rows.Scan(&userID, &g.ID, &g.Name, &g.Permissions, &g.CreatedAt); err != nil {
			return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list memberships").Wrap(err)
		}
		if g.Permissions == nil {
			g.Permissions = []string{}
		}
		if u, ok := byID[userID]; ok {
			u.Groups = append(u.Groups, g)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "list memberships").Wrap(err)
	}
	return users, nil
}

// CreateUser inserts the user and its metadata row in one transaction.
func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	attrs, err := encodeAttributes(user.Meta.Attributes)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, email, password, salt, activation_key, activated, driver)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, user.Username, user.Email, user.Password, user.Salt, user.ActivationKey, user.Activated, user.Driver,
	).Scan(&user.ID, &createdAt, &updatedAt)
	if isUniqueViolation(err) {
		user.ID = 0
		return oops.With("email", user.Email).With("constraint", constraintName(err)).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		user.ID = 0
		return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_meta (user_id, display_name, attributes)
		VALUES ($1, $2, $3)
	`, user.ID, user.Meta.DisplayName, attrs)
	if err != nil {
		id := user.ID
		user.ID = 0
		return oops.Code("USER_CREATE_FAILED").With("user_id", id).With("operation", "insert meta").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		user.ID = 0
		return oops.Code("USER_CREATE_FAILED").With("email", user.Email).With("operation", "commit").Wrap(err)
	}
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return nil
}

// UpdateUser persists mutable user fields and upserts metadata.
func (s *Store) UpdateUser(ctx context.Context, user *auth.User) error {
	attrs, err := encodeAttributes(user.Meta.Attributes)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var updatedAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE users SET
			username = $2,
			email = $3,
			password = $4,
			activation_key = $5,
			activated = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, user.ID, user.Username, user.Email, user.Password, user.ActivationKey, user.Activated,
	).Scan(&updatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return oops.Code("USER_NOT_FOUND").With("user_id", user.ID).Wrap(auth.ErrNotFound)
	case isUniqueViolation(err):
		return oops.With("user_id", user.ID).With("constraint", constraintName(err)).Wrap(auth.ErrDuplicate)
	case err != nil:
		return oops.Code("USER_UPDATE_FAILED").With("user_id", user.ID).Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_meta (user_id, display_name, attributes)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, attributes = EXCLUDED.attributes
	`, user.ID, user.Meta.DisplayName, attrs)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", user.ID).With("operation", "upsert meta").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("user_id", user.ID).With("operation", "commit").Wrap(err)
	}
	user.UpdatedAt = updatedAt
	return nil
}

// ReplaceUserGroups swaps the user's memberships for the existing subset of
// groupIDs. The user row is locked for the duration, so concurrent
// replacements serialize and never interleave.
func (s *Store) ReplaceUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if groupIDs == nil {
		groupIDs = []int64{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").With("user_id", userID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).With("operation", "lock user").Wrap(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM user_group_members WHERE user_id = $1`, userID); err != nil {
		return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).With("operation", "clear").Wrap(err)
	}

	if len(groupIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_group_members (user_id, group_id)
			SELECT $1, id FROM user_groups WHERE id = ANY($2)
		`, userID, groupIDs)
		if err != nil {
			return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).With("operation", "insert").Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).With("operation", "commit").Wrap(err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id int64) (*auth.UserGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_groups g WHERE g.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("GROUP_NOT_FOUND").With("group_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").With("group_id", id).Wrap(err)
	}
	return g, nil
}

// GetGroupByName retrieves a group by its unique name.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*auth.UserGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM user_groups g WHERE g.name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("GROUP_NOT_FOUND").With("group_name", name).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").With("group_name", name).Wrap(err)
	}
	return g, nil
}

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]*auth.UserGroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+groupColumns+` FROM user_groups g ORDER BY g.id`)
	if err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()

	groups := []*auth.UserGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, oops.Code("GROUP_QUERY_FAILED").Wrap(err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").Wrap(err)
	}
	return groups, nil
}

// CreateGroup inserts a group. The user_groups_name_key constraint rejects
// duplicate names.
func (s *Store) CreateGroup(ctx context.Context, group *auth.UserGroup) error {
	perms := group.Permissions
	if perms == nil {
		perms = []string{}
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_groups (name, permissions)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, group.Name, perms).Scan(&group.ID, &group.CreatedAt)
	if isUniqueViolation(err) {
		return oops.With("group_name", group.Name).With("constraint", constraintName(err)).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("GROUP_CREATE_FAILED").With("group_name", group.Name).Wrap(err)
	}
	group.Permissions = perms
	return nil
}

// UpdateGroup renames a group.
func (s *Store) UpdateGroup(ctx context.Context, group *auth.UserGroup) error {
	tag, err := s.pool.Exec(ctx, `UPDATE user_groups SET name = $2 WHERE id = $1`, group.ID, group.Name)
	if isUniqueViolation(err) {
		return oops.With("group_name", group.Name).With("constraint", constraintName(err)).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("GROUP_UPDATE_FAILED").With("group_id", group.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("GROUP_NOT_FOUND").With("group_id", group.ID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a group. Memberships go with it through ON DELETE
// CASCADE.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_groups WHERE id = $1`, id)
	if err != nil {
		return oops.Code("GROUP_DELETE_FAILED").With("group_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("GROUP_NOT_FOUND").With("group_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetGroupPermissions replaces a group's permission patterns.
func (s *Store) SetGroupPermissions(ctx context.Context, id int64, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	tag, err := s.pool.Exec(ctx, `UPDATE user_groups SET permissions = $2 WHERE id = $1`, id, permissions)
	if err != nil {
		return oops.Code("GROUP_UPDATE_FAILED").With("group_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("GROUP_NOT_FOUND").With("group_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}
