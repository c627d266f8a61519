// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.rtcore.io/scheduler/binder"
	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/execinfo"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/metrics"
	"go.rtcore.io/scheduler/statejson"
	"go.rtcore.io/scheduler/timeout"
)

// errKilled is returned to the worker in place of a callback result once its
// run has been killed.
var errKilled = errors.New("thread killed")

// threadRun is the state of one Start of an EmbeddedThread. The worker only
// ever sees its own run, so a killed worker that is still unwinding cannot
// affect a later Start.
type threadRun struct {
	command atomic.Int32
	handle  hostthread.Handle

	mutex         sync.Mutex
	issued        time.Time
	threadContext any

	// guarded by the controller lock of the owning thread
	killDelivered bool
}

func newThreadRun(now time.Time) *threadRun {
	run := &threadRun{issued: now}
	run.command.Store(int32(StartCommand))
	return run
}

func (r *threadRun) load() Command {
	return Command(r.command.Load())
}

func (r *threadRun) keepRunning() bool {
	return r.load() == KeepRunningCommand
}

func (r *threadRun) killed() bool {
	return r.load() == KillCommand
}

// issue moves the command forward to cmd. Commands never move backwards.
func (r *threadRun) issue(cmd Command, now time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for {
		current := r.load()
		if current >= cmd {
			return false
		}
		if r.command.CompareAndSwap(int32(current), int32(cmd)) {
			r.issued = now
			return true
		}
	}
}

func (r *threadRun) issuedAt() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.issued
}

func (r *threadRun) publish(threadContext any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.threadContext = threadContext
}

func (r *threadRun) published() any {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.threadContext
}

// EmbeddedThread runs a callback on one dedicated thread through the
// Startup, Main and Termination stages until it is told to stop.
type EmbeddedThread struct {
	callback     binder.MethodBinder
	facility     hostthread.Facility
	name         string
	service      string
	threadNumber uint32
	loop         func(ctx context.Context, run *threadRun)

	// control serialises Start, Stop and the configuration setters.
	control sync.Mutex
	run     atomic.Pointer[threadRun]

	configMutex sync.RWMutex
	config      ServiceConfig
}

// NewEmbeddedThread binds callback to a new thread in status Off.
func NewEmbeddedThread(callback binder.MethodBinder, opts ...Option) *EmbeddedThread {
	o := newOptions(opts)
	t := &EmbeddedThread{
		callback:     callback,
		facility:     o.facility,
		name:         o.name,
		service:      o.service,
		threadNumber: o.threadNumber,
		config:       DefaultServiceConfig(),
	}
	t.loop = t.threadLoop
	return t
}

// Initialise reads the tuning keys from data. It fails unless the thread is Off.
func (t *EmbeddedThread) Initialise(data config.StructuredData) error {
	cfg := t.Config()
	if err := cfg.Initialise(data); err != nil {
		return err
	}
	return t.SetConfig(cfg)
}

// Start spawns the thread. It returns once the thread exists, not once it is
// Running.
func (t *EmbeddedThread) Start() error {
	t.control.Lock()
	defer t.control.Unlock()

	if status := t.Status(); status != Off {
		return fmt.Errorf("starting %s in status %s: %w", t.name, status, errorkind.ErrIllegalOperation)
	}

	run := newThreadRun(t.facility.Now())
	handle, err := t.facility.Spawn(t.Config().threadConfig(t.name), func(ctx context.Context) {
		t.loop(ctx, run)
	})
	if err != nil {
		t.logger().WithError(err).Error("Failed to spawn thread")
		return fmt.Errorf("spawning %s: %v: %w", t.name, err, errorkind.ErrFatal)
	}
	run.handle = handle
	t.run.Store(run)
	t.logger().Debug("Thread started")
	return nil
}

// Stop requests a cooperative stop and waits up to the timeout for the thread
// to exit, returning errorkind.ErrTimeout otherwise. Calling Stop again after
// a timeout kills the thread. Stop on an Off thread is a no-op.
func (t *EmbeddedThread) Stop() error {
	t.control.Lock()
	defer t.control.Unlock()

	run := t.run.Load()
	switch t.statusOf(run) {
	case Off:
		t.reap(run)
		return nil
	case Stopping, TimeoutStopping, Killing, TimeoutKilling:
		return t.forceTerminate(run)
	default:
		return t.requestStop(run)
	}
}

// RequestStop is the cooperative half of Stop. It never kills.
func (t *EmbeddedThread) RequestStop() error {
	t.control.Lock()
	defer t.control.Unlock()

	run := t.run.Load()
	if status := t.statusOf(run); status == Killing || status == TimeoutKilling {
		return fmt.Errorf("stopping %s in status %s: %w", t.name, status, errorkind.ErrIllegalOperation)
	}
	return t.requestStop(run)
}

// ForceTerminate kills the thread and delivers the AsyncTermination stage to
// the callback from the calling goroutine.
func (t *EmbeddedThread) ForceTerminate() error {
	t.control.Lock()
	defer t.control.Unlock()
	return t.forceTerminate(t.run.Load())
}

// Close stops the thread, killing it if it does not stop within the timeout.
func (t *EmbeddedThread) Close() error {
	t.control.Lock()
	defer t.control.Unlock()

	run := t.run.Load()
	switch t.statusOf(run) {
	case Off:
		t.reap(run)
		return nil
	case Killing, TimeoutKilling:
		return t.forceTerminate(run)
	}
	err := t.requestStop(run)
	if errors.Is(err, errorkind.ErrTimeout) {
		return t.forceTerminate(run)
	}
	return err
}

func (t *EmbeddedThread) requestStop(run *threadRun) error {
	if t.statusOf(run) == Off {
		t.reap(run)
		return nil
	}
	run.issue(StopCommand, t.facility.Now())
	if timeout.Wait(run.handle.Done(), t.deadline(run)) {
		t.reap(run)
		return nil
	}
	t.logger().Warnf("Thread did not stop within %s", t.Timeout())
	return fmt.Errorf("stopping %s: %w", t.name, errorkind.ErrTimeout)
}

func (t *EmbeddedThread) forceTerminate(run *threadRun) error {
	if t.statusOf(run) == Off {
		t.reap(run)
		return nil
	}
	run.issue(KillCommand, t.facility.Now())
	if !run.killDelivered {
		if err := run.handle.Kill(); err != nil {
			t.logger().WithError(err).Error("Failed to kill thread")
			return fmt.Errorf("killing %s: %v: %w", t.name, err, errorkind.ErrFatal)
		}
		run.killDelivered = true
		metrics.RecordKill(t.service)
		t.logger().Warn("Thread killed")
		t.asyncTermination(run)
	}
	if !timeout.Poll(t.deadline(run), func() bool { return !run.handle.Alive() }) {
		return fmt.Errorf("killing %s: %w", t.name, errorkind.ErrTimeout)
	}
	t.reap(run)
	return nil
}

func (t *EmbeddedThread) asyncTermination(run *threadRun) {
	info := execinfo.New(context.Background())
	info.SetThreadNumber(t.threadNumber)
	info.SetThreadSpecificContext(run.published())
	info.SetStage(execinfo.AsyncTerminationStage)
	if err := t.invoke(info); err != nil {
		t.logger().WithError(err).Warn("Callback failed in AsyncTermination stage")
	}
}

func (t *EmbeddedThread) reap(run *threadRun) {
	if run != nil {
		t.run.CompareAndSwap(run, nil)
	}
}

// Status reports the state of the thread.
func (t *EmbeddedThread) Status() Status {
	return t.statusOf(t.run.Load())
}

func (t *EmbeddedThread) statusOf(run *threadRun) Status {
	if run == nil {
		return Off
	}
	cmd := run.load()
	// A killed run stays Killing until its controller has reaped it.
	if cmd != KillCommand && !run.handle.Alive() {
		return Off
	}
	return deriveStatus(cmd, t.deadline(run).Expired())
}

func (t *EmbeddedThread) deadline(run *threadRun) timeout.Deadline {
	return timeout.Since(t.facility.Now, run.issuedAt(), t.Timeout())
}

// ThreadID returns InvalidThreadIdentifier unless the thread is running.
func (t *EmbeddedThread) ThreadID() hostthread.ThreadIdentifier {
	run := t.run.Load()
	if t.statusOf(run) == Off {
		return hostthread.InvalidThreadIdentifier
	}
	return run.handle.ID()
}

func (t *EmbeddedThread) threadLoop(ctx context.Context, run *threadRun) {
	// The worker acknowledges Start itself, so a Stop issued before it got
	// here is not overwritten.
	run.command.CompareAndSwap(int32(StartCommand), int32(KeepRunningCommand))
	info := execinfo.New(ctx)
	for run.keepRunning() {
		t.episode(run, info)
	}
	t.logger().Debugf("Thread loop exited on %s", run.load())
}

func (t *EmbeddedThread) episode(run *threadRun, info *execinfo.ExecutionInfo) {
	info.Reset()
	info.SetThreadNumber(t.threadNumber)
	err := t.execute(run, info)
	if errorkind.Cleared(err) && run.keepRunning() {
		info.SetStage(execinfo.MainStage)
		for {
			err = t.execute(run, info)
			if !errorkind.Cleared(err) || !run.keepRunning() {
				break
			}
		}
	}
	t.terminate(run, info, err)
}

// execute invokes the callback unless the run was killed.
func (t *EmbeddedThread) execute(run *threadRun, info *execinfo.ExecutionInfo) error {
	if run.killed() {
		return errKilled
	}
	err := t.invoke(info)
	run.publish(info.ThreadSpecificContext())
	return err
}

// terminate delivers Termination after a Completed result and BadTermination
// otherwise. Errors of the termination stage are only logged.
func (t *EmbeddedThread) terminate(run *threadRun, info *execinfo.ExecutionInfo, err error) {
	if run.killed() {
		return
	}
	stage := execinfo.BadTerminationStage
	switch {
	case errors.Is(err, errorkind.ErrCompleted):
		stage = execinfo.TerminationStage
	case !errorkind.Cleared(err):
		metrics.RecordCallbackError(t.service)
		t.logger().WithError(err).Warnf("Callback failed in %s stage", info.Stage())
	}
	info.SetStage(stage)
	if termErr := t.execute(run, info); termErr != nil && !errors.Is(termErr, errKilled) {
		t.logger().WithError(termErr).Warnf("Callback failed in %s stage", stage)
	}
}

func (t *EmbeddedThread) invoke(info *execinfo.ExecutionInfo) error {
	metrics.RecordStage(t.service, info.Stage().String())
	return binder.Safe(t.callback, info)
}

func (t *EmbeddedThread) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"service":      t.service,
		"thread":       t.name,
		"threadNumber": t.threadNumber,
	})
}

// Name returns the thread name.
func (t *EmbeddedThread) Name() string {
	return t.name
}

// ThreadNumber returns the number the callback sees during Startup.
func (t *EmbeddedThread) ThreadNumber() uint32 {
	return t.threadNumber
}

// Config returns the current tuning.
func (t *EmbeddedThread) Config() ServiceConfig {
	t.configMutex.RLock()
	defer t.configMutex.RUnlock()
	return t.config
}

// SetConfig replaces the tuning. It fails unless the thread is Off.
func (t *EmbeddedThread) SetConfig(cfg ServiceConfig) error {
	if cfg.PriorityClass == hostthread.UnknownPriorityClass {
		return fmt.Errorf("unknown priority class: %w", errorkind.ErrParameters)
	}
	return t.configure(func(c *ServiceConfig) { *c = cfg })
}

func (t *EmbeddedThread) Timeout() time.Duration {
	return t.Config().Timeout
}

// SetTimeout is allowed in any status and applies to the next bounded wait.
func (t *EmbeddedThread) SetTimeout(d time.Duration) {
	t.configMutex.Lock()
	defer t.configMutex.Unlock()
	t.config.Timeout = d
}

func (t *EmbeddedThread) PriorityClass() hostthread.PriorityClass {
	return t.Config().PriorityClass
}

func (t *EmbeddedThread) SetPriorityClass(class hostthread.PriorityClass) error {
	if class == hostthread.UnknownPriorityClass {
		return fmt.Errorf("unknown priority class: %w", errorkind.ErrParameters)
	}
	return t.configure(func(c *ServiceConfig) { c.PriorityClass = class })
}

func (t *EmbeddedThread) PriorityLevel() uint8 {
	return t.Config().PriorityLevel
}

func (t *EmbeddedThread) SetPriorityLevel(level uint8) error {
	return t.configure(func(c *ServiceConfig) { c.PriorityLevel = level })
}

func (t *EmbeddedThread) CPUMask() hostthread.CPUMask {
	return t.Config().CPUMask
}

func (t *EmbeddedThread) SetCPUMask(mask hostthread.CPUMask) error {
	return t.configure(func(c *ServiceConfig) { c.CPUMask = mask })
}

func (t *EmbeddedThread) StackSize() uint32 {
	return t.Config().StackSize
}

func (t *EmbeddedThread) SetStackSize(size uint32) error {
	return t.configure(func(c *ServiceConfig) { c.StackSize = size })
}

// configure applies fn only while the thread is Off and no controller
// operation is in progress.
func (t *EmbeddedThread) configure(fn func(*ServiceConfig)) error {
	if !t.control.TryLock() {
		return fmt.Errorf("configuring %s while it is being controlled: %w", t.name, errorkind.ErrIllegalOperation)
	}
	defer t.control.Unlock()

	if status := t.Status(); status != Off {
		return fmt.Errorf("configuring %s in status %s: %w", t.name, status, errorkind.ErrIllegalOperation)
	}
	t.configMutex.Lock()
	defer t.configMutex.Unlock()
	fn(&t.config)
	return nil
}

// Describe returns a snapshot for introspection.
func (t *EmbeddedThread) Describe() statejson.ThreadDescription {
	cfg := t.Config()
	return statejson.ThreadDescription{
		Name:          t.name,
		ThreadNumber:  t.threadNumber,
		ID:            t.ThreadID().String(),
		Status:        t.Status().String(),
		PriorityClass: cfg.PriorityClass.String(),
		PriorityLevel: cfg.PriorityLevel,
		CPUMask:       cfg.CPUMask.String(),
		StackSize:     cfg.StackSize,
		TimeoutMs:     timeout.Milliseconds(cfg.Timeout),
	}
}
