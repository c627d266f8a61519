// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

const (
	defaultMinNumberOfThreads uint32 = 1
	defaultMaxNumberOfThreads uint32 = 3
)

// pool is the membership of a MultiClientService. It is only accessed from
// the goroutine of its poolLoop.
type pool struct {
	threads    []*MultiClientEmbeddedThread
	retiring   map[*MultiClientEmbeddedThread]struct{}
	stopping   bool
	nextNumber uint32
}

func (p *pool) index(t *MultiClientEmbeddedThread) int {
	for i, member := range p.threads {
		if member == t {
			return i
		}
	}
	return -1
}

func (p *pool) remove(i int) *MultiClientEmbeddedThread {
	t := p.threads[i]
	copy(p.threads[i:], p.threads[i+1:])
	p.threads[len(p.threads)-1] = nil
	p.threads = p.threads[:len(p.threads)-1]
	return t
}

func (p *pool) members() []*MultiClientEmbeddedThread {
	members := append([]*MultiClientEmbeddedThread(nil), p.threads...)
	for t := range p.retiring {
		members = append(members, t)
	}
	return members
}

// purge forgets the threads that are Off.
func (p *pool) purge() {
	for i := len(p.threads) - 1; i >= 0; i-- {
		if p.threads[i].Status() == Off {
			p.remove(i)
		}
	}
	for t := range p.retiring {
		if t.Status() == Off {
			delete(p.retiring, t)
		}
	}
}

// poolLoop serialises every change of a pool on one goroutine. Workers and
// controllers submit operations to it.
type poolLoop struct {
	ops  chan func(*pool)
	quit chan struct{}
	done chan struct{}
}

func newPoolLoop() *poolLoop {
	l := &poolLoop{
		ops:  make(chan func(*pool)),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *poolLoop) run() {
	defer close(l.done)
	p := &pool{retiring: make(map[*MultiClientEmbeddedThread]struct{})}
	for {
		select {
		case op := <-l.ops:
			op(p)
		case <-l.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for it. It returns false if the loop has
// exited.
func (l *poolLoop) do(fn func(*pool)) bool {
	finished := make(chan struct{})
	op := func(p *pool) {
		defer close(finished)
		fn(p)
	}
	select {
	case l.ops <- op:
	case <-l.done:
		return false
	}
	<-finished
	return true
}

func (l *poolLoop) close() {
	close(l.quit)
	<-l.done
}

// poolManager is the ThreadManager of the threads started on one poolLoop.
// Threads of a previous Start keep talking to their own, exited, loop.
type poolManager struct {
	service *MultiClientService
	loop    *poolLoop
}

func (m poolManager) AddThread() error {
	return m.service.addThread(m.loop)
}

func (m poolManager) Retire(t *MultiClientEmbeddedThread) bool {
	return m.service.retire(m.loop, t)
}

func (m poolManager) Exited(t *MultiClientEmbeddedThread) {
	m.service.exited(m.loop, t)
}

// MultiClientService is an elastic pool of MultiClientEmbeddedThread. It
// keeps between MinNumberOfThreads and MaxNumberOfThreads threads: a thread
// that starts servicing a request adds a new waiting thread, and a thread
// that finished servicing retires while the pool is above its minimum.
type MultiClientService struct {
	callback binder.MethodBinder
	facility hostthread.Facility
	name     string

	control sync.Mutex
	loop    atomic.Pointer[poolLoop]
	size    atomic.Int32

	configMutex        sync.RWMutex
	config             ServiceConfig
	minNumberOfThreads uint32
	maxNumberOfThreads uint32
}

func NewMultiClientService(callback binder.MethodBinder, opts ...Option) *MultiClientService {
	o := newOptions(opts)
	return &MultiClientService{
		callback:           callback,
		facility:           o.facility,
		name:               o.name,
		config:             DefaultServiceConfig(),
		minNumberOfThreads: defaultMinNumberOfThreads,
		maxNumberOfThreads: defaultMaxNumberOfThreads,
	}
}

// Initialise reads the service keys plus MinNumberOfThreads and
// MaxNumberOfThreads, both required, with 0 < min < max.
func (s *MultiClientService) Initialise(data config.StructuredData) error {
	return s.configure(func() error {
		cfg := s.config
		if err := cfg.Initialise(data); err != nil {
			return err
		}
		minThreads, err := readUint32(data, MinNumberOfThreadsKey)
		if err != nil {
			return err
		}
		maxThreads, err := readUint32(data, MaxNumberOfThreadsKey)
		if err != nil {
			return err
		}
		if err := checkBounds(minThreads, maxThreads); err != nil {
			return err
		}
		s.config = cfg
		s.minNumberOfThreads = minThreads
		s.maxNumberOfThreads = maxThreads
		return nil
	})
}

func checkBounds(minThreads, maxThreads uint32) error {
	if minThreads == 0 {
		return fmt.Errorf("%s must be positive: %w", MinNumberOfThreadsKey, errorkind.ErrParameters)
	}
	if maxThreads <= minThreads {
		return fmt.Errorf("%s %d must exceed %s %d: %w",
			MaxNumberOfThreadsKey, maxThreads, MinNumberOfThreadsKey, minThreads, errorkind.ErrParameters)
	}
	return nil
}

// Start fills the pool up to MinNumberOfThreads. If a thread fails to start
// the threads already started are stopped and the service stays Off.
func (s *MultiClientService) Start() error {
	s.control.Lock()
	defer s.control.Unlock()

	if s.loop.Load() != nil {
		return fmt.Errorf("starting %s with %d threads in the pool: %w", s.name, s.size.Load(), errorkind.ErrIllegalOperation)
	}
	l := newPoolLoop()
	s.loop.Store(l)

	minThreads := s.MinNumberOfThreads()
	for uint32(s.size.Load()) < minThreads {
		if err := s.addThread(l); err != nil {
			// Leave the service Off, not holding a pool below its minimum.
			if stopErr := s.stop(l); stopErr != nil {
				log.WithField("service", s.name).WithError(stopErr).Warn("Threads of the failed start are still alive")
			}
			return err
		}
	}
	log.WithField("service", s.name).Debugf("Pool started with %d threads", s.size.Load())
	return nil
}

// AddThread starts one more waiting thread. It fails with
// errorkind.ErrIllegalOperation when the service is not started, is stopping
// or the pool already holds MaxNumberOfThreads threads.
func (s *MultiClientService) AddThread() error {
	l := s.loop.Load()
	if l == nil {
		return fmt.Errorf("adding a thread to %s before Start: %w", s.name, errorkind.ErrIllegalOperation)
	}
	return s.addThread(l)
}

func (s *MultiClientService) addThread(l *poolLoop) error {
	var err error
	ran := l.do(func(p *pool) {
		err = s.grow(p, l)
	})
	if !ran {
		return fmt.Errorf("adding a thread to stopped %s: %w", s.name, errorkind.ErrIllegalOperation)
	}
	return err
}

func (s *MultiClientService) grow(p *pool, l *poolLoop) error {
	if p.stopping {
		return fmt.Errorf("adding a thread to stopping %s: %w", s.name, errorkind.ErrIllegalOperation)
	}
	if maxThreads := s.MaxNumberOfThreads(); uint32(len(p.threads)) >= maxThreads {
		return fmt.Errorf("%s already has %d threads: %w", s.name, maxThreads, errorkind.ErrIllegalOperation)
	}

	number := p.nextNumber
	t := NewMultiClientEmbeddedThread(s.callback, poolManager{service: s, loop: l},
		WithFacility(s.facility),
		WithName(fmt.Sprintf("%s_%d", s.name, number)),
		withService(s.name),
		WithThreadNumber(number))
	if err := t.SetConfig(s.Config()); err != nil {
		return err
	}
	if err := t.Start(); err != nil {
		return err
	}
	p.nextNumber++
	p.threads = append(p.threads, t)
	s.publishSize(p)
	return nil
}

func (s *MultiClientService) retire(l *poolLoop, t *MultiClientEmbeddedThread) bool {
	retired := false
	l.do(func(p *pool) {
		if p.stopping || uint32(len(p.threads)) <= s.MinNumberOfThreads() {
			return
		}
		if i := p.index(t); i >= 0 {
			p.remove(i)
			p.retiring[t] = struct{}{}
			s.publishSize(p)
			retired = true
		}
	})
	return retired
}

func (s *MultiClientService) exited(l *poolLoop, t *MultiClientEmbeddedThread) {
	l.do(func(p *pool) {
		delete(p.retiring, t)
		i := p.index(t)
		if i < 0 {
			return
		}
		p.remove(i)
		s.publishSize(p)
		s.refill(p, l)
	})
}

// refill tops the pool back up to MinNumberOfThreads after a member left it
// without retiring, e.g. because it was stopped directly.
func (s *MultiClientService) refill(p *pool, l *poolLoop) {
	for !p.stopping && uint32(len(p.threads)) < s.MinNumberOfThreads() {
		if err := s.grow(p, l); err != nil {
			log.WithField("service", s.name).WithError(err).Warn("Failed to refill pool")
			return
		}
	}
}

func (s *MultiClientService) publishSize(p *pool) {
	s.size.Store(int32(len(p.threads)))
	metrics.SetPoolThreads(s.name, len(p.threads))
}

// RemoveThread takes the thread with the given id out of the pool and closes
// it. The pool never shrinks below MinNumberOfThreads.
func (s *MultiClientService) RemoveThread(id hostthread.ThreadIdentifier) error {
	l := s.loop.Load()
	if l == nil {
		return fmt.Errorf("removing a thread from %s before Start: %w", s.name, errorkind.ErrIllegalOperation)
	}
	var victim *MultiClientEmbeddedThread
	var err error
	l.do(func(p *pool) {
		for i, t := range p.threads {
			if t.ThreadID() != id {
				continue
			}
			if uint32(len(p.threads)) <= s.MinNumberOfThreads() {
				err = fmt.Errorf("%s is at its minimum size: %w", s.name, errorkind.ErrIllegalOperation)
				return
			}
			victim = p.remove(i)
			p.retiring[victim] = struct{}{}
			s.publishSize(p)
			return
		}
		err = fmt.Errorf("thread %s not in %s: %w", id, s.name, errorkind.ErrIllegalOperation)
	})
	if victim == nil {
		if err == nil {
			err = fmt.Errorf("removing a thread from stopped %s: %w", s.name, errorkind.ErrIllegalOperation)
		}
		return err
	}
	return victim.Close()
}

// Stop stops every thread cooperatively, kills the ones that did not stop in
// time and empties the pool. It returns errorkind.ErrTimeout if a thread
// survived the kill.
func (s *MultiClientService) Stop() error {
	s.control.Lock()
	defer s.control.Unlock()

	l := s.loop.Load()
	if l == nil {
		return nil
	}
	return s.stop(l)
}

// stop runs under the control lock.
func (s *MultiClientService) stop(l *poolLoop) error {
	var members []*MultiClientEmbeddedThread
	l.do(func(p *pool) {
		p.stopping = true
		members = p.members()
	})

	s.stopPass(members, "cooperative")
	s.stopPass(members, "kill")

	remaining := 0
	l.do(func(p *pool) {
		p.purge()
		s.publishSize(p)
		remaining = len(p.threads) + len(p.retiring)
	})
	if remaining != 0 {
		return fmt.Errorf("stopping %s: %d threads still alive: %w", s.name, remaining, errorkind.ErrTimeout)
	}

	l.close()
	s.loop.Store(nil)
	s.size.Store(0)
	metrics.SetPoolThreads(s.name, 0)
	return nil
}

func (s *MultiClientService) stopPass(members []*MultiClientEmbeddedThread, pass string) {
	var g errgroup.Group
	for _, t := range members {
		if t.Status() == Off {
			continue
		}
		g.Go(t.Stop)
	}
	if err := g.Wait(); err != nil {
		log.WithField("service", s.name).WithError(err).Debugf("Pool %s stop pass incomplete", pass)
	}
}

// Close stops the pool, repeating Stop once if the first call timed out.
func (s *MultiClientService) Close() error {
	err := s.Stop()
	if errors.Is(err, errorkind.ErrTimeout) {
		err = s.Stop()
	}
	return err
}

// NumberOfActiveThreads returns the pool size.
func (s *MultiClientService) NumberOfActiveThreads() uint32 {
	return uint32(s.size.Load())
}

// MoreThanEnoughThreads reports whether the pool is above its minimum.
func (s *MultiClientService) MoreThanEnoughThreads() bool {
	return uint32(s.size.Load()) > s.MinNumberOfThreads()
}

func (s *MultiClientService) Threads() []*MultiClientEmbeddedThread {
	var threads []*MultiClientEmbeddedThread
	if l := s.loop.Load(); l != nil {
		l.do(func(p *pool) {
			threads = append(threads, p.threads...)
		})
	}
	return threads
}

// configure runs fn under the configuration lock while the pool is empty.
func (s *MultiClientService) configure(fn func() error) error {
	if !s.control.TryLock() {
		return fmt.Errorf("configuring %s while it is being controlled: %w", s.name, errorkind.ErrIllegalOperation)
	}
	defer s.control.Unlock()
	if s.loop.Load() != nil {
		return fmt.Errorf("configuring %s while threads are running: %w", s.name, errorkind.ErrIllegalOperation)
	}
	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	return fn()
}

func (s *MultiClientService) Name() string {
	return s.name
}

func (s *MultiClientService) Config() ServiceConfig {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.config
}

func (s *MultiClientService) MinNumberOfThreads() uint32 {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.minNumberOfThreads
}

func (s *MultiClientService) SetMinNumberOfThreads(n uint32) error {
	return s.configure(func() error {
		if err := checkBounds(n, s.maxNumberOfThreads); err != nil {
			return err
		}
		s.minNumberOfThreads = n
		return nil
	})
}

func (s *MultiClientService) MaxNumberOfThreads() uint32 {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()
	return s.maxNumberOfThreads
}

func (s *MultiClientService) SetMaxNumberOfThreads(n uint32) error {
	return s.configure(func() error {
		if err := checkBounds(s.minNumberOfThreads, n); err != nil {
			return err
		}
		s.maxNumberOfThreads = n
		return nil
	})
}

func (s *MultiClientService) Timeout() time.Duration {
	return s.Config().Timeout
}

// SetTimeout applies to the service and to the threads already in the pool.
func (s *MultiClientService) SetTimeout(d time.Duration) {
	s.configMutex.Lock()
	s.config.Timeout = d
	s.configMutex.Unlock()

	for _, t := range s.Threads() {
		t.SetTimeout(d)
	}
}

func (s *MultiClientService) PriorityClass() hostthread.PriorityClass {
	return s.Config().PriorityClass
}

func (s *MultiClientService) SetPriorityClass(class hostthread.PriorityClass) error {
	if class == hostthread.UnknownPriorityClass {
		return fmt.Errorf("unknown priority class: %w", errorkind.ErrParameters)
	}
	return s.configure(func() error {
		s.config.PriorityClass = class
		return nil
	})
}

func (s *MultiClientService) PriorityLevel() uint8 {
	return s.Config().PriorityLevel
}

func (s *MultiClientService) SetPriorityLevel(level uint8) error {
	return s.configure(func() error {
		s.config.PriorityLevel = level
		return nil
	})
}

func (s *MultiClientService) CPUMask() hostthread.CPUMask {
	return s.Config().CPUMask
}

func (s *MultiClientService) SetCPUMask(mask hostthread.CPUMask) error {
	return s.configure(func() error {
		s.config.CPUMask = mask
		return nil
	})
}

func (s *MultiClientService) StackSize() uint32 {
	return s.Config().StackSize
}

func (s *MultiClientService) SetStackSize(size uint32) error {
	return s.configure(func() error {
		s.config.StackSize = size
		return nil
	})
}

func (s *MultiClientService) Describe() statejson.ServiceDescription {
	threads := s.Threads()
	descriptions := make([]statejson.ThreadDescription, 0, len(threads))
	for _, t := range threads {
		descriptions = append(descriptions, t.Describe())
	}
	return statejson.ServiceDescription{
		Name:       s.name,
		Kind:       "MultiClientService",
		MinThreads: s.MinNumberOfThreads(),
		MaxThreads: s.MaxNumberOfThreads(),
		Threads:    descriptions,
	}
}
