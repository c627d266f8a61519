// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package hostthread

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSchedAttrTimeSharingClassesKeepPolicy(t *testing.T) {
	for _, class := range []PriorityClass{IdlePriorityClass, NormalPriorityClass} {
		attr, ok := schedAttr(class, 7)
		assert.False(t, ok, class.String())
		assert.Nil(t, attr, class.String())
	}
}

func TestSchedAttrRealTime(t *testing.T) {
	attr, ok := schedAttr(RealTimePriorityClass, 3)
	require.True(t, ok)
	assert.Equal(t, uint32(unix.SCHED_FIFO), attr.Policy)
	assert.Equal(t, uint32(87), attr.Priority)

	attr, ok = schedAttr(RealTimePriorityClass, 200)
	require.True(t, ok)
	assert.Equal(t, uint32(realTimeBase+MaxPriorityLevel), attr.Priority)
}
