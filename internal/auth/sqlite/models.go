// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/ethanol/internal/auth"
)

type userRecord struct {
	ID            int64         `gorm:"primaryKey"`
	Username      string        `gorm:"size:100;not null"`
	Email         string        `gorm:"size:255;not null;uniqueIndex"`
	Password      string        `gorm:"not null;default:''"`
	Salt          string        `gorm:"not null;uniqueIndex"`
	ActivationKey string        `gorm:"not null;default:''"`
	Activated     bool          `gorm:"not null;default:false"`
	Driver        string        `gorm:"size:64;not null"`
	Meta          metaRecord    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Groups        []groupRecord `gorm:"many2many:user_group_members;joinForeignKey:UserID;joinReferences:GroupID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (userRecord) TableName() string { return "users" }

type metaRecord struct {
	UserID      int64             `gorm:"primaryKey;autoIncrement:false"`
	DisplayName string            `gorm:"not null;default:''"`
	Attributes  map[string]string `gorm:"type:text;serializer:json"`
}

func (metaRecord) TableName() string { return "user_meta" }

type groupRecord struct {
	ID          int64    `gorm:"primaryKey"`
	Name        string   `gorm:"size:100;not null;uniqueIndex"`
	Permissions []string `gorm:"type:text;serializer:json"`
	CreatedAt   time.Time
}

func (groupRecord) TableName() string { return "user_groups" }

type memberRecord struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	GroupID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (memberRecord) TableName() string { return "user_group_members" }

type attemptRecord struct {
	ID        string    `gorm:"primaryKey;size:26"`
	Email     string    `gorm:"size:255;not null;index:idx_login_attempts_email_created"`
	Status    string    `gorm:"size:20;not null"`
	Driver    string    `gorm:"size:64;not null;default:''"`
	CreatedAt time.Time `gorm:"not null;index:idx_login_attempts_email_created"`
}

func (attemptRecord) TableName() string { return "login_attempts" }

func toUser(rec *userRecord) *auth.User {
	groups := make([]auth.UserGroup, 0, len(rec.Groups))
	for i := range rec.Groups {
		groups = append(groups, *toGroup(&rec.Groups[i]))
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

	attrs := rec.Meta.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &auth.User{
		ID:            rec.ID,
		Username:      rec.Username,
		Email:         rec.Email,
		Password:      rec.Password,
		Salt:          rec.Salt,
		ActivationKey: rec.ActivationKey,
		Activated:     rec.Activated,
		Driver:        rec.Driver,
		Groups:        groups,
		Meta:          auth.UserMeta{DisplayName: rec.Meta.DisplayName, Attributes: attrs},
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func toGroup(rec *groupRecord) *auth.UserGroup {
	perms := rec.Permissions
	if perms == nil {
		perms = []string{}
	}
	return &auth.UserGroup{
		ID:          rec.ID,
		Name:        rec.Name,
		Permissions: perms,
		CreatedAt:   rec.CreatedAt,
	}
}

func toAttempt(rec *attemptRecord) (auth.LoginAttempt, error) {
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return auth.LoginAttempt{}, err
	}
	return auth.LoginAttempt{
		ID:        id,
		Email:     rec.Email,
		Status:    auth.AttemptStatus(rec.Status),
		Driver:    rec.Driver,
		Timestamp: rec.CreatedAt.UTC(),
	}, nil
}
