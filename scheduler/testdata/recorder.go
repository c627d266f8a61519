// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package testdata holds callbacks shared by the scheduler tests.
package testdata

import (
	"sync"

	"go.rtcore.io/scheduler/execinfo"
)

// Call is one recorded callback invocation.
type Call struct {
	Stage         execinfo.Stage
	StageSpecific execinfo.StageSpecific
	ThreadNumber  uint32
	Context       any
}

// Recorder is a callback that records every invocation before delegating to
// Behaviour. A nil Behaviour returns nil.
type Recorder struct {
	Behaviour func(info *execinfo.ExecutionInfo) error

	mutex sync.Mutex
	calls []Call
}

func NewRecorder(behaviour func(info *execinfo.ExecutionInfo) error) *Recorder {
	return &Recorder{Behaviour: behaviour}
}

func (r *Recorder) Execute(info *execinfo.ExecutionInfo) error {
	r.mutex.Lock()
	r.calls = append(r.calls, Call{
		Stage:         info.Stage(),
		StageSpecific: info.StageSpecific(),
		ThreadNumber:  info.ThreadNumber(),
		Context:       info.ThreadSpecificContext(),
	})
	r.mutex.Unlock()

	if r.Behaviour == nil {
		return nil
	}
	return r.Behaviour(info)
}

func (r *Recorder) Calls() []Call {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Call(nil), r.calls...)
}

// Stages returns the recorded stages in order.
func (r *Recorder) Stages() []execinfo.Stage {
	calls := r.Calls()
	stages := make([]execinfo.Stage, 0, len(calls))
	for _, c := range calls {
		stages = append(stages, c.Stage)
	}
	return stages
}

// StagesOf returns the stages recorded for one thread number.
func (r *Recorder) StagesOf(threadNumber uint32) []execinfo.Stage {
	var stages []execinfo.Stage
	for _, c := range r.Calls() {
		if c.ThreadNumber == threadNumber {
			stages = append(stages, c.Stage)
		}
	}
	return stages
}

func (r *Recorder) Count(stage execinfo.Stage) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Stage == stage {
			n++
		}
	}
	return n
}

func (r *Recorder) CountSpecific(specific execinfo.StageSpecific) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Stage == execinfo.MainStage && c.StageSpecific == specific {
			n++
		}
	}
	return n
}

// ThreadNumbers returns the distinct thread numbers seen in the given stage.
func (r *Recorder) ThreadNumbers(stage execinfo.Stage, specific execinfo.StageSpecific) map[uint32]bool {
	seen := make(map[uint32]bool)
	for _, c := range r.Calls() {
		if c.Stage == stage && c.StageSpecific == specific {
			seen[c.ThreadNumber] = true
		}
	}
	return seen
}

// Last returns the most recent call, if any.
func (r *Recorder) Last() (Call, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(r.calls) == 0 {
		return Call{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// Episodes splits stages at every Startup and collapses consecutive Main
// stages, so Startup Main Main Termination becomes Startup Main Termination.
func Episodes(stages []execinfo.Stage) [][]execinfo.Stage {
	var episodes [][]execinfo.Stage
	for _, s := range stages {
		if s == execinfo.StartupStage || len(episodes) == 0 {
			episodes = append(episodes, nil)
		}
		current := episodes[len(episodes)-1]
		if s == execinfo.MainStage && len(current) > 0 && current[len(current)-1] == execinfo.MainStage {
			continue
		}
		episodes[len(episodes)-1] = append(current, s)
	}
	return episodes
}
