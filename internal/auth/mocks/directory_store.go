// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/ethanol/internal/auth"
)

// MockDirectoryStore is a mock of auth.DirectoryStore.
type MockDirectoryStore struct {
	mock.Mock
}

// NewMockDirectoryStore creates a MockDirectoryStore whose expectations are
// asserted when the test ends.
func NewMockDirectoryStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockDirectoryStore {
	m := &MockDirectoryStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userOf(ret mock.Arguments) *auth.User {
	if v := ret.Get(0); v != nil {
		return v.(*auth.User)
	}
	return nil
}

func groupOf(ret mock.Arguments) *auth.UserGroup {
	if v := ret.Get(0); v != nil {
		return v.(*auth.UserGroup)
	}
	return nil
}

// GetUser provides a mock function.
func (m *MockDirectoryStore) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return userOf(ret), ret.Error(1)
}

// GetUserByEmail provides a mock function.
func (m *MockDirectoryStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	return userOf(ret), ret.Error(1)
}

// ListUsers provides a mock function.
func (m *MockDirectoryStore) ListUsers(ctx context.Context) ([]*auth.User, error) {
	ret := m.Called(ctx)
	var users []*auth.User
	if v := ret.Get(0); v != nil {
		users = v.([]*auth.User)
	}
	return users, ret.Error(1)
}

// CreateUser provides a mock function.
func (m *MockDirectoryStore) CreateUser(ctx context.Context, user *auth.User) error {
	ret := m.Called(ctx, user)
	return ret.Error(0)
}

// UpdateUser provides a mock function.
func (m *MockDirectoryStore) UpdateUser(ctx context.Context, user *auth.User) error {
	ret := m.Called(ctx, user)
	return ret.Error(0)
}

// ReplaceUserGroups provides a mock function.
func (m *MockDirectoryStore) ReplaceUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	ret := m.Called(ctx, userID, groupIDs)
	return ret.Error(0)
}

// GetGroup provides a mock function.
func (m *MockDirectoryStore) GetGroup(ctx context.Context, id int64) (*auth.UserGroup, error) {
	ret := m.Called(ctx, id)
	return groupOf(ret), ret.Error(1)
}

// GetGroupByName provides a mock function.
func (m *MockDirectoryStore) GetGroupByName(ctx context.Context, name string) (*auth.UserGroup, error) {
	ret := m.Called(ctx, name)
	return groupOf(ret), ret.Error(1)
}

// ListGroups provides a mock function.
func (m *MockDirectoryStore) ListGroups(ctx context.Context) ([]*auth.UserGroup, error) {
	ret := m.Called(ctx)
	var groups []*auth.UserGroup
	if v := ret.Get(0); v != nil {
		groups = v.([]*auth.UserGroup)
	}
	return groups, ret.Error(1)
}

// CreateGroup provides a mock function.
func (m *MockDirectoryStore) CreateGroup(ctx context.Context, group *auth.UserGroup) error {
	ret := m.Called(ctx, group)
	return ret.Error(0)
}

// UpdateGroup provides a mock function.
func (m *MockDirectoryStore) UpdateGroup(ctx context.Context, group *auth.UserGroup) error {
	ret := m.Called(ctx, group)
	return ret.Error(0)
}

// DeleteGroup provides a mock function.
func (m *MockDirectoryStore) DeleteGroup(ctx context.Context, id int64) error {
	ret := m.Called(ctx, id)
	return ret.Error(0)
}

// SetGroupPermissions provides a mock function.
func (m *MockDirectoryStore) SetGroupPermissions(ctx context.Context, id int64, permissions []string) error {
	ret := m.Called(ctx, id, permissions)
	return ret.Error(0)
}
