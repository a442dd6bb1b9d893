// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/holomush/ethanol/internal/auth"
)

// Compile-time check that Store implements auth.DirectoryStore.
var _ auth.DirectoryStore = (*Store)(nil)

func (s *Store) loadUser(ctx context.Context, query any, args ...any) (*auth.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).
		Preload("Meta").
		Preload("Groups").
		Where(query, args...).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.With("query", query).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	return toUser(&rec), nil
}

// GetUser retrieves a user by ID with groups and metadata.
func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.loadUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email with groups and metadata.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.loadUser(ctx, "email = ?", email)
}

// ListUsers returns every user ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	var recs []userRecord
	err := s.db.WithContext(ctx).
		Preload("Meta").
		Preload("Groups").
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	users := make([]*auth.User, 0, len(recs))
	for i := range recs {
		users = append(users, toUser(&recs[i]))
	}
	return users, nil
}

// CreateUser inserts the user and its metadata in one transaction.
func (s *Store) CreateUser(ctx context.Context, user *auth.User) error {
	rec := userRecord{
		Username:      user.Username,
		Email:         user.Email,
		Password:      user.Password,
		Salt:          user.Salt,
		ActivationKey: user.ActivationKey,
		Activated:     user.Activated,
		Driver:        user.Driver,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&rec).Error; err != nil {
			return err
		}
		meta := metaRecord{
			UserID:      rec.ID,
			DisplayName: user.Meta.DisplayName,
			Attributes:  user.Meta.Attributes,
		}
		return tx.Create(&meta).Error
	})
	if isDuplicate(err) {
		return oops.With("email", user.Email).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("email", user.Email).Wrap(err)
	}

	user.ID = rec.ID
	user.CreatedAt = rec.CreatedAt
	user.UpdatedAt = rec.UpdatedAt
	return nil
}

// UpdateUser persists mutable user fields and metadata.
func (s *Store) UpdateUser(ctx context.Context, user *auth.User) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRecord{}).Where("id = ?", user.ID).Updates(map[string]any{
			"username":       user.Username,
			"email":          user.Email,
			"password":       user.Password,
			"activation_key": user.ActivationKey,
			"activated":      user.Activated,
			"updated_at":     now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return auth.ErrNotFound
		}
		return tx.Save(&metaRecord{
			UserID:      user.ID,
			DisplayName: user.Meta.DisplayName,
			Attributes:  user.Meta.Attributes,
		}).Error
	})
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return oops.With("user_id", user.ID).Wrap(auth.ErrNotFound)
	case isDuplicate(err):
		return oops.With("email", user.Email).Wrap(auth.ErrDuplicate)
	case err != nil:
		return oops.Code("USER_UPDATE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	user.UpdatedAt = now
	return nil
}

// ReplaceUserGroups swaps the user's memberships for the existing subset of
// groupIDs in a single transaction.
func (s *Store) ReplaceUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner userRecord
		if err := tx.Select("id").First(&owner, userID).Error; err != nil {
			return err
		}

		var existing []int64
		if len(groupIDs) > 0 {
			if err := tx.Model(&groupRecord{}).Where("id IN ?", groupIDs).Order("id").Pluck("id", &existing).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ?", userID).Delete(&memberRecord{}).Error; err != nil {
			return err
		}
		if len(existing) == 0 {
			return nil
		}
		members := make([]memberRecord, 0, len(existing))
		for _, gid := range existing {
			members = append(members, memberRecord{UserID: userID, GroupID: gid})
		}
		return tx.Create(&members).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return oops.With("user_id", userID).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("MEMBERSHIP_REPLACE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id int64) (*auth.UserGroup, error) {
	var rec groupRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.With("group_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").With("group_id", id).Wrap(err)
	}
	return toGroup(&rec), nil
}

// GetGroupByName retrieves a group by its unique name.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*auth.UserGroup, error) {
	var rec groupRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.With("group_name", name).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").With("group_name", name).Wrap(err)
	}
	return toGroup(&rec), nil
}

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]*auth.UserGroup, error) {
	var recs []groupRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, oops.Code("GROUP_QUERY_FAILED").Wrap(err)
	}
	groups := make([]*auth.UserGroup, 0, len(recs))
	for i := range recs {
		groups = append(groups, toGroup(&recs[i]))
	}
	return groups, nil
}

// CreateGroup inserts a group. The unique index on name rejects duplicates.
func (s *Store) CreateGroup(ctx context.Context, group *auth.UserGroup) error {
	rec := groupRecord{Name: group.Name, Permissions: group.Permissions}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if isDuplicate(err) {
		return oops.With("group_name", group.Name).Wrap(auth.ErrDuplicate)
	}
	if err != nil {
		return oops.Code("GROUP_CREATE_FAILED").With("group_name", group.Name).Wrap(err)
	}
	group.ID = rec.ID
	group.CreatedAt = rec.CreatedAt
	return nil
}

// UpdateGroup renames a group.
func (s *Store) UpdateGroup(ctx context.Context, group *auth.UserGroup) error {
	res := s.db.WithContext(ctx).Model(&groupRecord{}).Where("id = ?", group.ID).Update("name", group.Name)
	if isDuplicate(res.Error) {
		return oops.With("group_name", group.Name).Wrap(auth.ErrDuplicate)
	}
	if res.Error != nil {
		return oops.Code("GROUP_UPDATE_FAILED").With("group_id", group.ID).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.With("group_id", group.ID).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a group and its memberships.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&memberRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&groupRecord{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return auth.ErrNotFound
		}
		return nil
	})
	if errors.Is(err, auth.ErrNotFound) {
		return oops.With("group_id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("GROUP_DELETE_FAILED").With("group_id", id).Wrap(err)
	}
	return nil
}

// SetGroupPermissions replaces a group's permission patterns.
func (s *Store) SetGroupPermissions(ctx context.Context, id int64, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	res := s.db.WithContext(ctx).
		Model(&groupRecord{ID: id}).
		Select("permissions").
		Updates(&groupRecord{Permissions: permissions})
	if res.Error != nil {
		return oops.Code("GROUP_UPDATE_FAILED").With("group_id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.With("group_id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}
