// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hostthread

import (
	mock "github.com/stretchr/testify/mock"
)

type MockHandle struct {
	mock.Mock
}

func (_m *MockHandle) Alive() bool {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Alive")
	}

	var r0 bool
	if rf, ok := ret.Get(0).(func() bool); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(bool)
	}

	return r0
}

func (_m *MockHandle) Done() <-chan struct{} {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Done")
	}

	var r0 <-chan struct{}
	if rf, ok := ret.Get(0).(func() <-chan struct{}); ok {
		r0 = rf()
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(<-chan struct{})
	}

	return r0
}

func (_m *MockHandle) ID() ThreadIdentifier {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for ID")
	}

	var r0 ThreadIdentifier
	if rf, ok := ret.Get(0).(func() ThreadIdentifier); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(ThreadIdentifier)
	}

	return r0
}

func (_m *MockHandle) Kill() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Kill")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

func NewMockHandle(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockHandle {
	mock := &MockHandle{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
