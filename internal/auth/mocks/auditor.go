// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/ethanol/internal/auth"
)

// MockAuditor is a mock of auth.Auditor.
type MockAuditor struct {
	mock.Mock
}

// NewMockAuditor creates a MockAuditor whose expectations are asserted when
// the test ends.
func NewMockAuditor(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAuditor {
	m := &MockAuditor{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Record provides a mock function.
func (m *MockAuditor) Record(ctx context.Context, attempt auth.LoginAttempt) error {
	ret := m.Called(ctx, attempt)
	return ret.Error(0)
}
