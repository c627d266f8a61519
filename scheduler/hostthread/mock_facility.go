// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hostthread

import (
	context "context"
	time "time"

	mock "github.com/stretchr/testify/mock"
)

type MockFacility struct {
	mock.Mock
}

func (_m *MockFacility) Now() time.Time {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Now")
	}

	var r0 time.Time
	if rf, ok := ret.Get(0).(func() time.Time); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(time.Time)
	}

	return r0
}

func (_m *MockFacility) Spawn(cfg Config, body func(context.Context)) (Handle, error) {
	ret := _m.Called(cfg, body)

	if len(ret) == 0 {
		panic("no return value specified for Spawn")
	}

	var r0 Handle
	var r1 error
	if rf, ok := ret.Get(0).(func(Config, func(context.Context)) (Handle, error)); ok {
		return rf(cfg, body)
	}
	if rf, ok := ret.Get(0).(func(Config, func(context.Context)) Handle); ok {
		r0 = rf(cfg, body)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(Handle)
	}

	if rf, ok := ret.Get(1).(func(Config, func(context.Context)) error); ok {
		r1 = rf(cfg, body)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

func NewMockFacility(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFacility {
	mock := &MockFacility{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
