// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"
)

// DirectoryStore persists users, groups and memberships.
//
// Lookups return an error wrapping ErrNotFound when the entity does not
// exist. Writes that collide with a unique column return an error wrapping
// ErrDuplicate.
type DirectoryStore interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// CreateUser inserts user and sets its ID and timestamps.
	CreateUser(ctx context.Context, user *User) error

	// UpdateUser persists mutable user fields and metadata. Memberships are
	// left untouched.
	UpdateUser(ctx context.Context, user *User) error

	// ReplaceUserGroups atomically replaces the user's memberships with the
	// subset of groupIDs that exist.
	ReplaceUserGroups(ctx context.Context, userID int64, groupIDs []int64) error

	GetGroup(ctx context.Context, id int64) (*UserGroup, error)
	GetGroupByName(ctx context.Context, name string) (*UserGroup, error)
	ListGroups(ctx context.Context) ([]*UserGroup, error)

	// CreateGroup inserts group and sets its ID.
	CreateGroup(ctx context.Context, group *UserGroup) error

	// UpdateGroup renames the group.
	UpdateGroup(ctx context.Context, group *UserGroup) error

	// DeleteGroup removes the group and every membership referencing it.
	DeleteGroup(ctx context.Context, id int64) error

	SetGroupPermissions(ctx context.Context, id int64, permissions []string) error
}

// Directory is the persistence-facing manager for users and groups. It turns
// store sentinels into typed failures.
type Directory struct {
	store DirectoryStore
}

// NewDirectory creates a Directory over store.
func NewDirectory(store DirectoryStore) (*Directory, error) {
	if store == nil {
		return nil, oops.Errorf("directory store is required")
	}
	return &Directory{store: store}, nil
}

// Store returns the underlying store.
func (d *Directory) Store() DirectoryStore {
	return d.store
}

// GetUser returns the user with id, with groups and metadata populated.
func (d *Directory) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := d.store.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, noSuchUser("user_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "get user").With("user_id", id).Wrap(err)
	}
	return user, nil
}

// GetUserByEmail returns the user registered under email.
func (d *Directory) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	user, err := d.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, noSuchUser("email", email)
	}
	if err != nil {
		return nil, oops.With("operation", "get user by email").With("email", email).Wrap(err)
	}
	return user, nil
}

// GetUsers returns all users ordered by ID. An empty directory is a NO_USERS
// failure.
func (d *Directory) GetUsers(ctx context.Context) ([]*User, error) {
	users, err := d.store.ListUsers(ctx)
	if err != nil {
		return nil, oops.With("operation", "list users").Wrap(err)
	}
	if len(users) == 0 {
		return nil, noUsers()
	}
	return users, nil
}

// UpdateUser persists changes to user's fields and metadata.
func (d *Directory) UpdateUser(ctx context.Context, user *User) error {
	err := d.store.UpdateUser(ctx, user)
	if errors.Is(err, ErrNotFound) {
		return noSuchUser("user_id", user.ID)
	}
	if err != nil {
		return oops.With("operation", "update user").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

// SetUserGroups makes user's stored memberships equal the groups listed in
// user.Groups and returns the reloaded user. Groups that no longer exist are
// skipped.
func (d *Directory) SetUserGroups(ctx context.Context, user *User) (*User, error) {
	return d.SetUserGroupsByID(ctx, user.ID, user.GroupIDs())
}

// SetUserGroupsByID replaces the memberships of the user with id. Unknown
// group identifiers are ignored.
func (d *Directory) SetUserGroupsByID(ctx context.Context, id int64, groupIDs []int64) (*User, error) {
	err := d.store.ReplaceUserGroups(ctx, id, dedupeIDs(groupIDs))
	if errors.Is(err, ErrNotFound) {
		return nil, noSuchUser("user_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "set user groups").With("user_id", id).Wrap(err)
	}
	return d.GetUser(ctx, id)
}

// GetGroup returns the group with id.
func (d *Directory) GetGroup(ctx context.Context, id int64) (*UserGroup, error) {
	group, err := d.store.GetGroup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, groupNotFound("group_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "get group").With("group_id", id).Wrap(err)
	}
	return group, nil
}

// GetGroupByName returns the group called name.
func (d *Directory) GetGroupByName(ctx context.Context, name string) (*UserGroup, error) {
	group, err := d.store.GetGroupByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, groupNotFound("group_name", name)
	}
	if err != nil {
		return nil, oops.With("operation", "get group by name").With("group_name", name).Wrap(err)
	}
	return group, nil
}

// GroupList returns all groups ordered by ID. The list may be empty.
func (d *Directory) GroupList(ctx context.Context) ([]*UserGroup, error) {
	groups, err := d.store.ListGroups(ctx)
	if err != nil {
		return nil, oops.With("operation", "list groups").Wrap(err)
	}
	return groups, nil
}

// AddGroup creates a group called name with no permissions.
func (d *Directory) AddGroup(ctx context.Context, name string) (*UserGroup, error) {
	name, err := validGroupName(name)
	if err != nil {
		return nil, err
	}
	group := &UserGroup{Name: name, Permissions: []string{}}
	err = d.store.CreateGroup(ctx, group)
	if errors.Is(err, ErrDuplicate) {
		return nil, ColumnNotUnique("name", name)
	}
	if err != nil {
		return nil, oops.With("operation", "add group").With("group_name", name).Wrap(err)
	}
	return group, nil
}

// UpdateGroup renames group.
func (d *Directory) UpdateGroup(ctx context.Context, group *UserGroup) error {
	name, err := validGroupName(group.Name)
	if err != nil {
		return err
	}
	group.Name = name
	err = d.store.UpdateGroup(ctx, group)
	switch {
	case errors.Is(err, ErrDuplicate):
		return ColumnNotUnique("name", name)
	case errors.Is(err, ErrNotFound):
		return groupNotFound("group_id", group.ID)
	case err != nil:
		return oops.With("operation", "update group").With("group_id", group.ID).Wrap(err)
	}
	return nil
}

// DeleteGroup removes the group with id and all memberships referencing it.
func (d *Directory) DeleteGroup(ctx context.Context, id int64) error {
	err := d.store.DeleteGroup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return groupNotFound("group_id", id)
	}
	if err != nil {
		return oops.With("operation", "delete group").With("group_id", id).Wrap(err)
	}
	return nil
}

// SetGroupPermissions replaces the permission patterns of the group with id.
// Every pattern must compile.
func (d *Directory) SetGroupPermissions(ctx context.Context, id int64, permissions []string) (*UserGroup, error) {
	cleaned := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := ValidatePermission(p); err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		cleaned = append(cleaned, p)
	}

	err := d.store.SetGroupPermissions(ctx, id, cleaned)
	if errors.Is(err, ErrNotFound) {
		return nil, groupNotFound("group_id", id)
	}
	if err != nil {
		return nil, oops.With("operation", "set group permissions").With("group_id", id).Wrap(err)
	}
	return d.GetGroup(ctx, id)
}

func validGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", oops.Code("INVALID_GROUP_NAME").Errorf("group name cannot be empty")
	}
	return name, nil
}

func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
