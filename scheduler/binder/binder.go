// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package binder binds user code to the single callback signature invoked by
// the embedded services.
package binder

import (
	"fmt"

	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/execinfo"
)

// MethodBinder is the callback driven by an embedded thread. The returned
// error is interpreted as follows:
//   - nil: keep going
//   - errorkind.ErrTimeout: keep going, no request arrived yet (WaitRequest)
//   - errorkind.ErrCompleted: end the episode cleanly
//   - any other error: end the episode with a BadTermination
type MethodBinder interface {
	Execute(info *execinfo.ExecutionInfo) error
}

// Func adapts a free function to a MethodBinder.
type Func func(info *execinfo.ExecutionInfo) error

// Execute calls f(info).
func (f Func) Execute(info *execinfo.ExecutionInfo) error {
	return f(info)
}

// Method binds an object to one of its methods, given as a method expression:
//
//	binder.NewMethod(server, (*Server).Serve)
type Method[T any] struct {
	object T
	method func(T, *execinfo.ExecutionInfo) error
}

// NewMethod returns a MethodBinder calling method on object.
func NewMethod[T any](object T, method func(T, *execinfo.ExecutionInfo) error) *Method[T] {
	return &Method[T]{object: object, method: method}
}

// Execute calls the bound method.
func (m *Method[T]) Execute(info *execinfo.ExecutionInfo) error {
	return m.method(m.object, info)
}

// Object returns the bound object.
func (m *Method[T]) Object() T {
	return m.object
}

// Safe executes b and turns a panic into an errorkind.ErrFatal error so that a
// misbehaving callback cannot take the process down.
func Safe(b MethodBinder, info *execinfo.ExecutionInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked in %s stage: %v: %w", info.Stage(), r, errorkind.ErrFatal)
		}
	}()
	return b.Execute(info)
}
