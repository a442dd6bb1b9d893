// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/ethanol/internal/auth"
)

// MockDriver is a mock of auth.Driver.
type MockDriver struct {
	mock.Mock
}

// NewMockDriver creates a MockDriver named name whose expectations are
// asserted when the test ends.
func NewMockDriver(t interface {
	mock.TestingT
	Cleanup(func())
}, name string,
) *MockDriver {
	m := &MockDriver{}
	m.Mock.Test(t)
	m.On("Name").Return(name).Maybe()
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Name provides a mock function.
func (m *MockDriver) Name() string {
	ret := m.Called()
	return ret.String(0)
}

// UserExists provides a mock function.
func (m *MockDriver) UserExists(ctx context.Context, email string) (bool, error) {
	ret := m.Called(ctx, email)
	return ret.Bool(0), ret.Error(1)
}

// ValidateUser provides a mock function.
func (m *MockDriver) ValidateUser(ctx context.Context, email string, creds auth.Credentials) (*auth.User, error) {
	ret := m.Called(ctx, email, creds)
	var user *auth.User
	if v := ret.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, ret.Error(1)
}

// CreateUser provides a mock function.
func (m *MockDriver) CreateUser(ctx context.Context, email string, data auth.NewUser) (*auth.User, error) {
	ret := m.Called(ctx, email, data)
	var user *auth.User
	if v := ret.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, ret.Error(1)
}

// ActivateUser provides a mock function.
func (m *MockDriver) ActivateUser(ctx context.Context, activation auth.Activation) (bool, error) {
	ret := m.Called(ctx, activation)
	return ret.Bool(0), ret.Error(1)
}
