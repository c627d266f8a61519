// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package execinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStartsInStartup(t *testing.T) {
	info := New(context.Background())
	assert.Equal(t, StartupStage, info.Stage())
	assert.Equal(t, NullStageSpecific, info.StageSpecific())
	assert.Equal(t, InvalidThreadNumber, info.ThreadNumber())
}

func TestSetThreadNumberOncePerEpisode(t *testing.T) {
	info := New(context.Background())
	info.SetThreadNumber(4)
	info.SetThreadNumber(9)
	assert.Equal(t, uint32(4), info.ThreadNumber())

	info.Reset()
	info.SetThreadNumber(9)
	assert.Equal(t, uint32(9), info.ThreadNumber())
}

func TestSetThreadNumberOutsideStartupIsIgnored(t *testing.T) {
	info := New(context.Background())
	info.SetStage(MainStage)
	info.SetThreadNumber(2)
	assert.Equal(t, InvalidThreadNumber, info.ThreadNumber())
}

func TestResetKeepsThreadSpecificContext(t *testing.T) {
	info := New(context.Background())
	conn := &struct{ fd int }{fd: 7}
	info.SetStage(MainStage)
	info.SetStageSpecific(ServiceRequestStageSpecific)
	info.SetThreadSpecificContext(conn)

	info.Reset()
	assert.Equal(t, StartupStage, info.Stage())
	assert.Equal(t, NullStageSpecific, info.StageSpecific())
	assert.Same(t, conn, info.ThreadSpecificContext())
}

func TestZeroValueContext(t *testing.T) {
	var info ExecutionInfo
	assert.NotNil(t, info.Context())
	assert.NoError(t, info.Context().Err())
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "BadTermination", BadTerminationStage.String())
	assert.Equal(t, "AsyncTermination", AsyncTerminationStage.String())
	assert.Equal(t, "Stage(42)", Stage(42).String())
	assert.Equal(t, "WaitRequest", WaitRequestStageSpecific.String())
}
