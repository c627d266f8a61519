// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"fmt"
)

// Command is the intent a controller communicates to a running thread loop.
type Command int32

const (
	StartCommand Command = iota
	KeepRunningCommand
	StopCommand
	KillCommand
)

func (c Command) String() string {
	switch c {
	case StartCommand:
		return "Start"
	case KeepRunningCommand:
		return "KeepRunning"
	case StopCommand:
		return "Stop"
	case KillCommand:
		return "Kill"
	default:
		return fmt.Sprintf("Command(%d)", int32(c))
	}
}

// Status is the state of an EmbeddedThread as seen by its controllers. It is
// derived from the liveness of the thread, the last command and the time the
// command was issued.
type Status int

const (
	Off Status = iota
	Starting
	TimeoutStarting
	Running
	Stopping
	TimeoutStopping
	Killing
	TimeoutKilling
)

func (s Status) String() string {
	switch s {
	case Off:
		return "Off"
	case Starting:
		return "Starting"
	case TimeoutStarting:
		return "TimeoutStarting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case TimeoutStopping:
		return "TimeoutStopping"
	case Killing:
		return "Killing"
	case TimeoutKilling:
		return "TimeoutKilling"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func deriveStatus(cmd Command, expired bool) Status {
	switch cmd {
	case StartCommand:
		if expired {
			return TimeoutStarting
		}
		return Starting
	case KeepRunningCommand:
		return Running
	case StopCommand:
		if expired {
			return TimeoutStopping
		}
		return Stopping
	default:
		if expired {
			return TimeoutKilling
		}
		return Killing
	}
}
