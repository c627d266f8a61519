// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package testdata

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"go.rtcore.io/scheduler/execinfo"
)

func TestRecorder(t *testing.T) {
	failure := errors.New("failure")
	r := NewRecorder(func(info *execinfo.ExecutionInfo) error {
		if info.Stage() == execinfo.MainStage {
			return failure
		}
		return nil
	})

	info := execinfo.New(context.Background())
	info.SetThreadNumber(4)
	assert.NoError(t, r.Execute(info))
	info.SetStage(execinfo.MainStage)
	info.SetStageSpecific(execinfo.WaitRequestStageSpecific)
	assert.ErrorIs(t, r.Execute(info), failure)

	assert.Equal(t, 1, r.Count(execinfo.MainStage))
	assert.Equal(t, 1, r.CountSpecific(execinfo.WaitRequestStageSpecific))
	assert.Equal(t, map[uint32]bool{4: true}, r.ThreadNumbers(execinfo.MainStage, execinfo.WaitRequestStageSpecific))
	assert.Len(t, r.StagesOf(4), 2)

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, execinfo.MainStage, last.Stage)
}

func TestEpisodes(t *testing.T) {
	stages := []execinfo.Stage{
		execinfo.StartupStage, execinfo.MainStage, execinfo.MainStage, execinfo.BadTerminationStage,
		execinfo.StartupStage, execinfo.TerminationStage,
	}
	expected := [][]execinfo.Stage{
		{execinfo.StartupStage, execinfo.MainStage, execinfo.BadTerminationStage},
		{execinfo.StartupStage, execinfo.TerminationStage},
	}
	if diff := cmp.Diff(expected, Episodes(stages)); diff != "" {
		t.Errorf("episodes mismatch (-want +got):\n%s", diff)
	}
}
