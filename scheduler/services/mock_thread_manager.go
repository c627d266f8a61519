// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	mock "github.com/stretchr/testify/mock"
)

type MockThreadManager struct {
	mock.Mock
}

func (_m *MockThreadManager) AddThread() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for AddThread")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func (_m *MockThreadManager) Exited(thread *MultiClientEmbeddedThread) {
	_m.Called(thread)
}

func (_m *MockThreadManager) Retire(thread *MultiClientEmbeddedThread) bool {
	ret := _m.Called(thread)

	if len(ret) == 0 {
		panic("no return value specified for Retire")
	}

	var r0 bool
	if rf, ok := ret.Get(0).(func(*MultiClientEmbeddedThread) bool); ok {
		r0 = rf(thread)
	} else {
		r0 = ret.Get(0).(bool)
	}

	return r0
}

func NewMockThreadManager(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockThreadManager {
	mock := &MockThreadManager{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
