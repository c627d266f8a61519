// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"time"

	"go.rtcore.io/scheduler/binder"
	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/statejson"
)

// SingleThreadService runs a callback on one EmbeddedThread.
type SingleThreadService struct {
	thread *EmbeddedThread
}

func NewSingleThreadService(callback binder.MethodBinder, opts ...Option) *SingleThreadService {
	return &SingleThreadService{thread: NewEmbeddedThread(callback, opts...)}
}

func (s *SingleThreadService) Initialise(data config.StructuredData) error {
	return s.thread.Initialise(data)
}

func (s *SingleThreadService) Start() error {
	return s.thread.Start()
}

func (s *SingleThreadService) Stop() error {
	return s.thread.Stop()
}

func (s *SingleThreadService) RequestStop() error {
	return s.thread.RequestStop()
}

func (s *SingleThreadService) ForceTerminate() error {
	return s.thread.ForceTerminate()
}

// Close guarantees the thread is gone, killing it if needed.
func (s *SingleThreadService) Close() error {
	return s.thread.Close()
}

func (s *SingleThreadService) Status() Status {
	return s.thread.Status()
}

func (s *SingleThreadService) ThreadID() hostthread.ThreadIdentifier {
	return s.thread.ThreadID()
}

func (s *SingleThreadService) Name() string {
	return s.thread.Name()
}

func (s *SingleThreadService) ThreadNumber() uint32 {
	return s.thread.ThreadNumber()
}

func (s *SingleThreadService) Timeout() time.Duration {
	return s.thread.Timeout()
}

func (s *SingleThreadService) SetTimeout(d time.Duration) {
	s.thread.SetTimeout(d)
}

func (s *SingleThreadService) PriorityClass() hostthread.PriorityClass {
	return s.thread.PriorityClass()
}

func (s *SingleThreadService) SetPriorityClass(class hostthread.PriorityClass) error {
	return s.thread.SetPriorityClass(class)
}

func (s *SingleThreadService) PriorityLevel() uint8 {
	return s.thread.PriorityLevel()
}

func (s *SingleThreadService) SetPriorityLevel(level uint8) error {
	return s.thread.SetPriorityLevel(level)
}

func (s *SingleThreadService) CPUMask() hostthread.CPUMask {
	return s.thread.CPUMask()
}

func (s *SingleThreadService) SetCPUMask(mask hostthread.CPUMask) error {
	return s.thread.SetCPUMask(mask)
}

func (s *SingleThreadService) StackSize() uint32 {
	return s.thread.StackSize()
}

func (s *SingleThreadService) SetStackSize(size uint32) error {
	return s.thread.SetStackSize(size)
}

func (s *SingleThreadService) Describe() statejson.ServiceDescription {
	return statejson.ServiceDescription{
		Name:    s.thread.Name(),
		Kind:    "SingleThreadService",
		Threads: []statejson.ThreadDescription{s.thread.Describe()},
	}
}
