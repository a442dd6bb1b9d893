// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/oops"
)

// PermissionSeparator splits permission strings into segments. "*" matches
// within one segment and "**" matches across segments.
const PermissionSeparator = ':'

// DefaultPermissionCacheSize bounds the number of compiled patterns kept.
const DefaultPermissionCacheSize = 1024

// ValidatePermission reports whether pattern is a well-formed permission
// pattern.
func ValidatePermission(pattern string) error {
	if _, err := glob.Compile(pattern, PermissionSeparator); err != nil {
		return oops.Code("INVALID_PERMISSION").With("pattern", pattern).Wrap(err)
	}
	return nil
}

// PermissionChecker evaluates a user's group permissions against a requested
// permission string. Compiled patterns are cached.
type PermissionChecker struct {
	compiled *lru.Cache[string, glob.Glob]
}

// NewPermissionChecker creates a checker caching up to size compiled patterns.
func NewPermissionChecker(size int) (*PermissionChecker, error) {
	if size <= 0 {
		size = DefaultPermissionCacheSize
	}
	cache, err := lru.New[string, glob.Glob](size)
	if err != nil {
		return nil, oops.With("size", size).Wrap(err)
	}
	return &PermissionChecker{compiled: cache}, nil
}

// Allowed reports whether any of user's groups grants permission. The guest
// user holds no permissions. Malformed patterns grant nothing.
func (c *PermissionChecker) Allowed(user *User, permission string) bool {
	if user.IsGuest() || permission == "" {
		return false
	}
	for _, group := range user.Groups {
		for _, pattern := range group.Permissions {
			g, ok := c.compile(pattern)
			if ok && g.Match(permission) {
				return true
			}
		}
	}
	return false
}

func (c *PermissionChecker) compile(pattern string) (glob.Glob, bool) {
	if g, ok := c.compiled.Get(pattern); ok {
		return g, true
	}
	g, err := glob.Compile(pattern, PermissionSeparator)
	if err != nil {
		return nil, false
	}
	c.compiled.Add(pattern, g)
	return g, true
}
