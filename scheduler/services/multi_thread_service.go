// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.rtcore.io/scheduler/binder"
	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/metrics"
	"go.rtcore.io/scheduler/statejson"
)

// MultiThreadService runs the same callback on a fixed number of threads that
// are started and stopped together. Thread i is named "<name>_<i>" and sees
// thread number i. Every thread uses the service tuning unless a per-thread
// override was set.
type MultiThreadService struct {
	callback binder.MethodBinder
	facility hostthread.Facility
	name     string

	control sync.Mutex

	poolMutex sync.RWMutex
	pool      []*SingleThreadService

	configMutex         sync.RWMutex
	config              ServiceConfig
	numberOfPoolThreads uint32
	priorityClasses     map[uint32]hostthread.PriorityClass
	priorityLevels      map[uint32]uint8
	stackSizes          map[uint32]uint32
	cpuMasks            map[uint32]hostthread.CPUMask
}

func NewMultiThreadService(callback binder.MethodBinder, opts ...Option) *MultiThreadService {
	o := newOptions(opts)
	return &MultiThreadService{
		callback:            callback,
		facility:            o.facility,
		name:                o.name,
		config:              DefaultServiceConfig(),
		numberOfPoolThreads: 1,
		priorityClasses:     make(map[uint32]hostthread.PriorityClass),
		priorityLevels:      make(map[uint32]uint8),
		stackSizes:          make(map[uint32]uint32),
		cpuMasks:            make(map[uint32]hostthread.CPUMask),
	}
}

// Initialise reads the service keys, the required NumberOfPoolThreads and
// the per-thread override matrices PrioritiesClass, PrioritiesLevel,
// StackSizes and CPUMasks, each a list of [threadIndex, value] rows. Nothing
// is applied unless every key is valid.
func (s *MultiThreadService) Initialise(data config.StructuredData) error {
	return s.configure(func() error {
		cfg := s.config
		if err := cfg.Initialise(data); err != nil {
			return err
		}
		n, err := readUint32(data, NumberOfPoolThreadsKey)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s must be positive: %w", NumberOfPoolThreadsKey, errorkind.ErrParameters)
		}

		classes := make(map[uint32]hostthread.PriorityClass)
		err = readOverrides(data, PrioritiesClassKey, n, func(idx uint32, value string) error {
			class, err := parsePriorityClass(value)
			classes[idx] = class
			return err
		})
		if err != nil {
			return err
		}
		levels := make(map[uint32]uint8)
		err = readOverrides(data, PrioritiesLevelKey, n, func(idx uint32, value string) error {
			v, err := parseUint(value, math.MaxUint8)
			levels[idx] = uint8(v)
			return err
		})
		if err != nil {
			return err
		}
		stackSizes := make(map[uint32]uint32)
		err = readOverrides(data, StackSizesKey, n, func(idx uint32, value string) error {
			v, err := parseUint(value, math.MaxUint32)
			stackSizes[idx] = uint32(v)
			return err
		})
		if err != nil {
			return err
		}
		cpuMasks := make(map[uint32]hostthread.CPUMask)
		err = readOverrides(data, CPUMasksKey, n, func(idx uint32, value string) error {
			v, err := parseUint(value, math.MaxUint64)
			cpuMasks[idx] = hostthread.CPUMask(v)
			return err
		})
		if err != nil {
			return err
		}

		s.config = cfg
		s.numberOfPoolThreads = n
		s.priorityClasses = classes
		s.priorityLevels = levels
		s.stackSizes = stackSizes
		s.cpuMasks = cpuMasks
		return nil
	})
}

func readOverrides(data config.StructuredData, key string, n uint32, apply func(idx uint32, value string) error) error {
	if !data.Exists(key) {
		return nil
	}
	rows, err := data.Rows(key)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) != 2 {
			return fmt.Errorf("%s rows must have two columns, got %d: %w", key, len(row), errorkind.ErrParameters)
		}
		idx, err := parseUint(row[0], math.MaxUint32)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if uint32(idx) >= n {
			return fmt.Errorf("%s thread index %d not below %d: %w", key, idx, n, errorkind.ErrParameters)
		}
		if err := apply(uint32(idx), row[1]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func parseUint(s string, limit uint64) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil || v > limit {
		return 0, fmt.Errorf("invalid value %q: %w", s, errorkind.ErrParameters)
	}
	return v, nil
}

// Start starts every thread of the pool. A thread that fails to start is not
// added and the first error is returned.
func (s *MultiThreadService) Start() error {
	s.control.Lock()
	defer s.control.Unlock()

	s.poolMutex.Lock()
	defer s.poolMutex.Unlock()
	if len(s.pool) != 0 {
		return fmt.Errorf("starting %s with %d threads in the pool: %w", s.name, len(s.pool), errorkind.ErrIllegalOperation)
	}

	var first error
	for i := uint32(0); i < s.NumberOfPoolThreads(); i++ {
		thread := NewSingleThreadService(s.callback,
			WithFacility(s.facility),
			WithName(fmt.Sprintf("%s_%d", s.name, i)),
			withService(s.name),
			WithThreadNumber(i))
		err := thread.thread.SetConfig(s.threadConfig(i))
		if err == nil {
			err = thread.Start()
		}
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		s.pool = append(s.pool, thread)
	}
	metrics.SetPoolThreads(s.name, len(s.pool))
	return first
}

// Stop stops every thread cooperatively, then kills the ones still alive and
// removes the Off threads from the pool. It returns errorkind.ErrTimeout if a
// thread survived both passes.
func (s *MultiThreadService) Stop() error {
	s.control.Lock()
	defer s.control.Unlock()

	s.poolMutex.RLock()
	members := append([]*SingleThreadService(nil), s.pool...)
	s.poolMutex.RUnlock()
	if len(members) == 0 {
		return nil
	}

	s.stopPass(members, "cooperative")
	s.stopPass(members, "kill")

	s.poolMutex.Lock()
	remaining := s.pool[:0]
	for _, m := range s.pool {
		if m.Status() != Off {
			remaining = append(remaining, m)
		}
	}
	for i := len(remaining); i < len(s.pool); i++ {
		s.pool[i] = nil
	}
	s.pool = remaining
	s.poolMutex.Unlock()
	metrics.SetPoolThreads(s.name, len(remaining))

	if len(remaining) != 0 {
		return fmt.Errorf("stopping %s: %d threads still alive: %w", s.name, len(remaining), errorkind.ErrTimeout)
	}
	return nil
}

func (s *MultiThreadService) stopPass(members []*SingleThreadService, pass string) {
	var g errgroup.Group
	for _, m := range members {
		if m.Status() == Off {
			continue
		}
		g.Go(m.Stop)
	}
	if err := g.Wait(); err != nil {
		log.WithField("service", s.name).WithError(err).Warnf("Pool %s stop pass incomplete", pass)
	}
}

// Close stops the pool, repeating Stop once if the first call timed out.
func (s *MultiThreadService) Close() error {
	err := s.Stop()
	if errors.Is(err, errorkind.ErrTimeout) {
		err = s.Stop()
	}
	return err
}

// Status returns the status of thread i, Off if i is not in the pool.
func (s *MultiThreadService) Status(i uint32) Status {
	if m := s.member(i); m != nil {
		return m.Status()
	}
	return Off
}

func (s *MultiThreadService) ThreadID(i uint32) hostthread.ThreadIdentifier {
	if m := s.member(i); m != nil {
		return m.ThreadID()
	}
	return hostthread.InvalidThreadIdentifier
}

func (s *MultiThreadService) member(i uint32) *SingleThreadService {
	s.poolMutex.RLock()
	defer s.poolMutex.RUnlock()
	for _, m := range s.pool {
		if m.ThreadNumber() == i {
			return m
		}
	}
	return nil
}

// PoolSize returns the number of threads currently in the pool.
func (s *MultiThreadService) PoolSize() int {
	s.poolMutex.RLock()
	defer s.poolMutex.RUnlock()
	return len(s.pool)
}

func (s *MultiThreadService) allOff() bool {
	s.poolMutex.RLock()
	defer s.poolMutex.RUnlock()
	for _, m := range s.pool {
		if m.Status() != Off {
			return false
		}
	}
	return true
}

// configure runs fn under the configuration lock while every thread is Off.
func (s *MultiThreadService) configure(fn func() error) error {
	if !s.control.TryLock() {
		return fmt.Errorf("configuring %s while it is being controlled: %w", s.name, errorkind.ErrIllegalOperation)
	}
	defer s.control.Unlock()
	if !s.allOff() {
		return fmt.Errorf("configuring %s while threads are running: %w", s.name, errorkind.ErrIllegalOperation)
	}
	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	return fn()
}

func (s *MultiThreadService) threadConfig(i uint32) ServiceConfig {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	cfg := s.config
	if v, ok := s.priorityClasses[i]; ok {
		cfg.PriorityClass = v
	}
	if v, ok := s.priorityLevels[i]; ok {
		cfg.PriorityLevel = v
	}
	if v, ok := s.stackSizes[i]; ok {
		cfg.StackSize = v
	}
	if v, ok := s.cpuMasks[i]; ok {
		cfg.CPUMask = v
	}
	return cfg
}

func (s *MultiThreadService) checkIndex(i uint32) error {
	if i >= s.numberOfPoolThreads {
		return fmt.Errorf("thread index %d not below %d: %w", i, s.numberOfPoolThreads, errorkind.ErrParameters)
	}
	return nil
}

func (s *MultiThreadService) Name() string {
	return s.name
}

func (s *MultiThreadService) NumberOfPoolThreads() uint32 {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.numberOfPoolThreads
}

// SetNumberOfPoolThreads resizes the pool for the next Start and drops the
// per-thread overrides that no longer fit.
func (s *MultiThreadService) SetNumberOfPoolThreads(n uint32) error {
	if n == 0 {
		return fmt.Errorf("pool size must be positive: %w", errorkind.ErrParameters)
	}
	return s.configure(func() error {
		s.numberOfPoolThreads = n
		for i := range s.priorityClasses {
			if i >= n {
				delete(s.priorityClasses, i)
			}
		}
		for i := range s.priorityLevels {
			if i >= n {
				delete(s.priorityLevels, i)
			}
		}
		for i := range s.stackSizes {
			if i >= n {
				delete(s.stackSizes, i)
			}
		}
		for i := range s.cpuMasks {
			if i >= n {
				delete(s.cpuMasks, i)
			}
		}
		return nil
	})
}

func (s *MultiThreadService) Timeout() time.Duration {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.config.Timeout
}

// SetTimeout applies to the service and to the threads already in the pool.
func (s *MultiThreadService) SetTimeout(d time.Duration) {
	s.configMutex.Lock()
	s.config.Timeout = d
	s.configMutex.Unlock()

	s.poolMutex.RLock()
	defer s.poolMutex.RUnlock()
	for _, m := range s.pool {
		m.SetTimeout(d)
	}
}

func (s *MultiThreadService) PriorityClass() hostthread.PriorityClass {
	return s.threadConfigDefault().PriorityClass
}

func (s *MultiThreadService) SetPriorityClass(class hostthread.PriorityClass) error {
	if class == hostthread.UnknownPriorityClass {
		return fmt.Errorf("unknown priority class: %w", errorkind.ErrParameters)
	}
	return s.configure(func() error {
		s.config.PriorityClass = class
		return nil
	})
}

func (s *MultiThreadService) PriorityLevel() uint8 {
	return s.threadConfigDefault().PriorityLevel
}

func (s *MultiThreadService) SetPriorityLevel(level uint8) error {
	return s.configure(func() error {
		s.config.PriorityLevel = level
		return nil
	})
}

func (s *MultiThreadService) CPUMask() hostthread.CPUMask {
	return s.threadConfigDefault().CPUMask
}

func (s *MultiThreadService) SetCPUMask(mask hostthread.CPUMask) error {
	return s.configure(func() error {
		s.config.CPUMask = mask
		return nil
	})
}

func (s *MultiThreadService) StackSize() uint32 {
	return s.threadConfigDefault().StackSize
}

func (s *MultiThreadService) SetStackSize(size uint32) error {
	return s.configure(func() error {
		s.config.StackSize = size
		return nil
	})
}

func (s *MultiThreadService) threadConfigDefault() ServiceConfig {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.config
}

// PriorityClassThreadPool returns the class thread i is started with.
func (s *MultiThreadService) PriorityClassThreadPool(i uint32) hostthread.PriorityClass {
	return s.threadConfig(i).PriorityClass
}

func (s *MultiThreadService) SetPriorityClassThreadPool(class hostthread.PriorityClass, i uint32) error {
	if class == hostthread.UnknownPriorityClass {
		return fmt.Errorf("unknown priority class: %w", errorkind.ErrParameters)
	}
	return s.configure(func() error {
		if err := s.checkIndex(i); err != nil {
			return err
		}
		s.priorityClasses[i] = class
		return nil
	})
}

func (s *MultiThreadService) PriorityLevelThreadPool(i uint32) uint8 {
	return s.threadConfig(i).PriorityLevel
}

func (s *MultiThreadService) SetPriorityLevelThreadPool(level uint8, i uint32) error {
	return s.configure(func() error {
		if err := s.checkIndex(i); err != nil {
			return err
		}
		s.priorityLevels[i] = level
		return nil
	})
}

func (s *MultiThreadService) StackSizeThreadPool(i uint32) uint32 {
	return s.threadConfig(i).StackSize
}

func (s *MultiThreadService) SetStackSizeThreadPool(size uint32, i uint32) error {
	return s.configure(func() error {
		if err := s.checkIndex(i); err != nil {
			return err
		}
		s.stackSizes[i] = size
		return nil
	})
}

func (s *MultiThreadService) CPUMaskThreadPool(i uint32) hostthread.CPUMask {
	return s.threadConfig(i).CPUMask
}

func (s *MultiThreadService) SetCPUMaskThreadPool(mask hostthread.CPUMask, i uint32) error {
	return s.configure(func() error {
		if err := s.checkIndex(i); err != nil {
			return err
		}
		s.cpuMasks[i] = mask
		return nil
	})
}

func (s *MultiThreadService) Describe() statejson.ServiceDescription {
	s.poolMutex.RLock()
	defer s.poolMutex.RUnlock()
	threads := make([]statejson.ThreadDescription, 0, len(s.pool))
	for _, m := range s.pool {
		threads = append(threads, m.thread.Describe())
	}
	return statejson.ServiceDescription{
		Name:    s.name,
		Kind:    "MultiThreadService",
		Threads: threads,
	}
}
