// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"

	"go.rtcore.io/scheduler/binder"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/execinfo"
)

// ThreadManager is the pool a MultiClientEmbeddedThread belongs to. Threads
// never touch the pool themselves, they ask the manager.
type ThreadManager interface {
	// AddThread grows the pool by one waiting thread.
	AddThread() error
	// Retire removes thread from the pool if the pool holds more than its
	// minimum number of threads, and reports whether it did.
	Retire(thread *MultiClientEmbeddedThread) bool
	// Exited is called once the loop of thread has returned.
	Exited(thread *MultiClientEmbeddedThread)
}

// MultiClientEmbeddedThread is an EmbeddedThread whose Main stage alternates
// between waiting for a request and servicing it. As soon as a request
// arrives it asks its manager for a new waiting thread, and once the request
// is serviced it retires if the pool has more threads than it needs.
type MultiClientEmbeddedThread struct {
	*EmbeddedThread
	manager ThreadManager
}

func NewMultiClientEmbeddedThread(callback binder.MethodBinder, manager ThreadManager, opts ...Option) *MultiClientEmbeddedThread {
	t := &MultiClientEmbeddedThread{
		EmbeddedThread: NewEmbeddedThread(callback, opts...),
		manager:        manager,
	}
	t.loop = t.threadLoop
	return t
}

func (t *MultiClientEmbeddedThread) threadLoop(ctx context.Context, run *threadRun) {
	run.command.CompareAndSwap(int32(StartCommand), int32(KeepRunningCommand))
	defer t.manager.Exited(t)

	info := execinfo.New(ctx)
	for run.keepRunning() {
		if retired := t.episode(run, info); retired {
			t.logger().Debug("Thread retired from pool")
			return
		}
	}
	t.logger().Debugf("Thread loop exited on %s", run.load())
}

// episode runs Startup, then WaitRequest/ServiceRequest rounds, then the
// termination stage. It reports whether the thread retired.
func (t *MultiClientEmbeddedThread) episode(run *threadRun, info *execinfo.ExecutionInfo) bool {
	info.Reset()
	info.SetThreadNumber(t.threadNumber)
	err := t.execute(run, info)

	retired := false
	if errorkind.Cleared(err) {
		info.SetStage(execinfo.MainStage)
		for run.keepRunning() {
			info.SetStageSpecific(execinfo.WaitRequestStageSpecific)
			if err = t.waitRequest(run, info); err != nil || !run.keepRunning() {
				break
			}

			if growErr := t.manager.AddThread(); growErr != nil {
				t.logger().WithError(growErr).Debug("Pool not grown")
			}

			info.SetStageSpecific(execinfo.ServiceRequestStageSpecific)
			if err = t.serviceRequest(run, info); !errors.Is(err, errorkind.ErrCompleted) {
				break
			}
			if t.manager.Retire(t) {
				retired = true
				break
			}
			err = nil
		}
	}
	t.terminate(run, info, err)
	return retired
}

// waitRequest polls the callback while it reports errorkind.ErrTimeout.
func (t *MultiClientEmbeddedThread) waitRequest(run *threadRun, info *execinfo.ExecutionInfo) error {
	for {
		err := t.execute(run, info)
		if !errors.Is(err, errorkind.ErrTimeout) || !run.keepRunning() {
			return err
		}
	}
}

// serviceRequest calls the callback until it reports completion or fails.
func (t *MultiClientEmbeddedThread) serviceRequest(run *threadRun, info *execinfo.ExecutionInfo) error {
	for {
		err := t.execute(run, info)
		if !errorkind.Cleared(err) || !run.keepRunning() {
			return err
		}
	}
}
