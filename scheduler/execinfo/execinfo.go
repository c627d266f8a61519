// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package execinfo holds the value handed to an embedded service callback on
// every invocation.
package execinfo

import (
	"context"
	"fmt"
)

// Stage is the coarse lifecycle phase of a thread episode.
type Stage int

const (
	StartupStage Stage = iota
	MainStage
	TerminationStage
	BadTerminationStage
	AsyncTerminationStage
)

func (s Stage) String() string {
	switch s {
	case StartupStage:
		return "Startup"
	case MainStage:
		return "Main"
	case TerminationStage:
		return "Termination"
	case BadTerminationStage:
		return "BadTermination"
	case AsyncTerminationStage:
		return "AsyncTermination"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// StageSpecific is the sub-phase used by client/server callbacks.
type StageSpecific int

const (
	NullStageSpecific StageSpecific = iota
	WaitRequestStageSpecific
	ServiceRequestStageSpecific
)

func (s StageSpecific) String() string {
	switch s {
	case NullStageSpecific:
		return "Null"
	case WaitRequestStageSpecific:
		return "WaitRequest"
	case ServiceRequestStageSpecific:
		return "ServiceRequest"
	default:
		return fmt.Sprintf("StageSpecific(%d)", int(s))
	}
}

// InvalidThreadNumber marks a thread number that has not been assigned yet.
const InvalidThreadNumber = ^uint32(0)

// ExecutionInfo is owned by one thread and passed to its callback on every
// invocation. It is not safe for concurrent use.
type ExecutionInfo struct {
	stage                 Stage
	stageSpecific         StageSpecific
	threadNumber          uint32
	threadSpecificContext any
	ctx                   context.Context
}

// New returns an ExecutionInfo in the Startup stage bound to ctx. ctx is
// cancelled by the owning thread when it is forcibly terminated.
func New(ctx context.Context) *ExecutionInfo {
	info := &ExecutionInfo{ctx: ctx}
	info.Reset()
	return info
}

// Reset starts a new episode: Startup stage, Null sub-stage, no thread number.
// The thread specific context survives a Reset.
func (i *ExecutionInfo) Reset() {
	i.stage = StartupStage
	i.stageSpecific = NullStageSpecific
	i.threadNumber = InvalidThreadNumber
}

func (i *ExecutionInfo) Stage() Stage { return i.stage }

func (i *ExecutionInfo) SetStage(stage Stage) { i.stage = stage }

func (i *ExecutionInfo) StageSpecific() StageSpecific { return i.stageSpecific }

func (i *ExecutionInfo) SetStageSpecific(stageSpecific StageSpecific) {
	i.stageSpecific = stageSpecific
}

func (i *ExecutionInfo) ThreadNumber() uint32 { return i.threadNumber }

// SetThreadNumber assigns the thread number once per episode. Calls outside the
// Startup stage, or after a number was already assigned, are ignored.
func (i *ExecutionInfo) SetThreadNumber(number uint32) {
	if i.stage == StartupStage && i.threadNumber == InvalidThreadNumber {
		i.threadNumber = number
	}
}

// SetThreadSpecificContext stores an opaque value (e.g. an accepted connection)
// for a later stage of the same thread.
func (i *ExecutionInfo) SetThreadSpecificContext(value any) {
	i.threadSpecificContext = value
}

func (i *ExecutionInfo) ThreadSpecificContext() any { return i.threadSpecificContext }

// Context is cancelled when the thread running the callback is killed.
// Blocking callbacks should select on Context().Done() so that an abandoned
// invocation returns promptly.
func (i *ExecutionInfo) Context() context.Context {
	if i.ctx == nil {
		return context.Background()
	}
	return i.ctx
}
