// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package binder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/execinfo"
)

type counter struct {
	calls int
}

func (c *counter) Callback(info *execinfo.ExecutionInfo) error {
	c.calls++
	if info.Stage() == execinfo.MainStage {
		return errorkind.ErrCompleted
	}
	return nil
}

func TestMethodBinding(t *testing.T) {
	c := &counter{}
	var b MethodBinder = NewMethod(c, (*counter).Callback)

	info := execinfo.New(context.Background())
	assert.NoError(t, b.Execute(info))
	info.SetStage(execinfo.MainStage)
	assert.ErrorIs(t, b.Execute(info), errorkind.ErrCompleted)
	assert.Equal(t, 2, c.calls)
	assert.Same(t, c, NewMethod(c, (*counter).Callback).Object())
}

func TestFuncBinding(t *testing.T) {
	errBoom := errors.New("boom")
	var b MethodBinder = Func(func(*execinfo.ExecutionInfo) error { return errBoom })
	assert.Equal(t, errBoom, b.Execute(execinfo.New(context.Background())))
}

func TestSafeRecoversPanic(t *testing.T) {
	b := Func(func(*execinfo.ExecutionInfo) error { panic("nil map") })
	err := Safe(b, execinfo.New(context.Background()))
	assert.ErrorIs(t, err, errorkind.ErrFatal)
	assert.Contains(t, err.Error(), "nil map")
}

func TestSafePassesResultThrough(t *testing.T) {
	b := Func(func(*execinfo.ExecutionInfo) error { return errorkind.ErrTimeout })
	assert.Equal(t, errorkind.ErrTimeout, Safe(b, execinfo.New(context.Background())))
}
