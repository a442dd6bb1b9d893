// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockCredentialHasher is a mock of auth.CredentialHasher.
type MockCredentialHasher struct {
	mock.Mock
}

// NewMockCredentialHasher creates a MockCredentialHasher whose expectations
// are asserted when the test ends.
func NewMockCredentialHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCredentialHasher {
	m := &MockCredentialHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockCredentialHasher) Hash(secret, salt string) (string, error) {
	ret := m.Called(secret, salt)
	return ret.String(0), ret.Error(1)
}

// Verify provides a mock function.
func (m *MockCredentialHasher) Verify(secret, salt, digest string) (bool, error) {
	ret := m.Called(secret, salt, digest)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade provides a mock function.
func (m *MockCredentialHasher) NeedsUpgrade(digest string) bool {
	ret := m.Called(digest)
	return ret.Bool(0)
}
