// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store-level sentinels. Storage adapters wrap these; the Directory translates
// them into the typed failures below.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate value")
)

// Error codes carried by typed failures.
const (
	CodeLogInFailed     = "LOGIN_FAILED"
	CodeNoSuchUser      = "NO_SUCH_USER"
	CodeNoUsers         = "NO_USERS"
	CodeGroupNotFound   = "GROUP_NOT_FOUND"
	CodeColumnNotUnique = "COLUMN_NOT_UNIQUE"
)

// Typed failures surfaced to callers. Each maps to one user-facing message key.
var (
	ErrLogInFailed     = errors.New("invalid email or credentials")
	ErrNoSuchUser      = errors.New("no such user")
	ErrNoUsers         = errors.New("no users")
	ErrGroupNotFound   = errors.New("group not found")
	ErrColumnNotUnique = errors.New("column not unique")
)

// Message keys used to localize typed failures.
const (
	MsgLoginInvalid    = "loginInvalid"
	MsgNoSuchUser      = "noSuchUser"
	MsgNoUsers         = "noUsers"
	MsgGroupNotFound   = "groupNotFound"
	MsgColumnNotUnique = "columnNotUnique"
)

var messageKeys = []struct {
	err error
	key string
}{
	{ErrLogInFailed, MsgLoginInvalid},
	{ErrNoSuchUser, MsgNoSuchUser},
	{ErrNoUsers, MsgNoUsers},
	{ErrGroupNotFound, MsgGroupNotFound},
	{ErrColumnNotUnique, MsgColumnNotUnique},
}

// MessageKey returns the message key for a typed failure, or "" when err is
// not one of them.
func MessageKey(err error) string {
	for _, mk := range messageKeys {
		if errors.Is(err, mk.err) {
			return mk.key
		}
	}
	return ""
}

func logInFailed() error {
	return oops.Code(CodeLogInFailed).
		With("message_key", MsgLoginInvalid).
		Wrap(ErrLogInFailed)
}

func noSuchUser(key string, value any) error {
	return oops.Code(CodeNoSuchUser).
		With("message_key", MsgNoSuchUser).
		With(key, value).
		Wrap(ErrNoSuchUser)
}

func noUsers() error {
	return oops.Code(CodeNoUsers).
		With("message_key", MsgNoUsers).
		Wrap(ErrNoUsers)
}

func groupNotFound(key string, value any) error {
	return oops.Code(CodeGroupNotFound).
		With("message_key", MsgGroupNotFound).
		With(key, value).
		Wrap(ErrGroupNotFound)
}

// ColumnNotUnique reports a write rejected by a uniqueness constraint on
// column.
func ColumnNotUnique(column string, value any) error {
	return oops.Code(CodeColumnNotUnique).
		With("message_key", MsgColumnNotUnique).
		With("column", column).
		With("value", value).
		Wrap(ErrColumnNotUnique)
}
