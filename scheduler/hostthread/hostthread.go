// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package hostthread is the host threading facility used by the services:
// it spawns bodies on dedicated threads, applies affinity and priority,
// forcibly terminates them and keeps a registry of the live ones.
package hostthread

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ThreadIdentifier is an opaque, unique identifier of a spawned thread.
type ThreadIdentifier = uuid.UUID

// InvalidThreadIdentifier is reported for threads that are not running.
var InvalidThreadIdentifier = uuid.Nil

// Config is the set of parameters a thread is spawned with.
type Config struct {
	Name          string
	PriorityClass PriorityClass
	PriorityLevel uint8
	CPUMask       CPUMask
	StackSize     uint32
}

// Facility spawns threads.
type Facility interface {
	// Spawn starts body on a new thread. The context passed to body is
	// cancelled when the thread is killed.
	Spawn(cfg Config, body func(ctx context.Context)) (Handle, error)
	// Now returns the facility clock.
	Now() time.Time
}

// Handle controls a spawned thread.
type Handle interface {
	ID() ThreadIdentifier
	// Done is closed once the thread is no longer alive, either because its
	// body returned or because it was killed.
	Done() <-chan struct{}
	Alive() bool
	// Kill terminates the thread. After Kill returns the handle is no longer
	// alive.
	Kill() error
}
