// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"strings"
	"time"
)

// GuestID is the identifier carried by the guest user. Stored users always
// have a positive identifier.
const GuestID int64 = 0

// GuestUsername is the username of the guest user.
const GuestUsername = "guest"

// User is a persisted account.
type User struct {
	ID            int64
	Username      string
	Email         string
	Password      string // credential digest; empty for externally verified accounts
	Salt          string
	ActivationKey string
	Activated     bool
	Driver        string
	Groups        []UserGroup
	Meta          UserMeta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserMeta holds per-user profile data.
type UserMeta struct {
	DisplayName string
	Attributes  map[string]string
}

// UserGroup is a named collection of permission patterns.
type UserGroup struct {
	ID          int64
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// GuestUser returns a fresh guest user. Callers may mutate the result.
func GuestUser() *User {
	return &User{
		ID:        GuestID,
		Username:  GuestUsername,
		Activated: true,
		Meta:      UserMeta{Attributes: map[string]string{}},
	}
}

// IsGuest reports whether u is the guest user.
func (u *User) IsGuest() bool {
	return u == nil || u.ID == GuestID
}

// PendingActivation reports whether u still has to redeem an activation key.
func (u *User) PendingActivation() bool {
	return !u.Activated && u.ActivationKey != ""
}

// GroupIDs returns the identifiers of u's groups in membership order.
func (u *User) GroupIDs() []int64 {
	ids := make([]int64, 0, len(u.Groups))
	for _, g := range u.Groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// GroupNames returns the names of u's groups in membership order.
func (u *User) GroupNames() []string {
	names := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		names = append(names, g.Name)
	}
	return names
}

// InGroup reports whether u belongs to a group with the given name.
func (u *User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// LogValue keeps credential material out of structured logs.
func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.Int64("id", u.ID),
		slog.String("username", u.Username),
		slog.String("driver", u.Driver),
	)
}

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// write keyed by email goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
