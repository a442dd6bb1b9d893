// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSessionStore is a mock of auth.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

// NewMockSessionStore creates a MockSessionStore whose expectations are
// asserted when the test ends.
func NewMockSessionStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionStore {
	m := &MockSessionStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Get provides a mock function.
func (m *MockSessionStore) Get(ctx context.Context, key string) (int64, bool, error) {
	ret := m.Called(ctx, key)
	return ret.Get(0).(int64), ret.Bool(1), ret.Error(2)
}

// Set provides a mock function.
func (m *MockSessionStore) Set(ctx context.Context, key string, id int64) error {
	ret := m.Called(ctx, key, id)
	return ret.Error(0)
}

// Delete provides a mock function.
func (m *MockSessionStore) Delete(ctx context.Context, key string) error {
	ret := m.Called(ctx, key)
	return ret.Error(0)
}
