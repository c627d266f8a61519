// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hostthread

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrNilBody is returned when Spawn is called without a body.
var ErrNilBody = errors.New("thread body is nil")

// Goroutines is the default Facility. Each body runs on a goroutine locked to
// its own OS thread, so affinity and priority apply to that body only.
//
// Goroutines cannot be preempted from outside: Kill cancels the body context
// and detaches the handle, but a body blocked in code that ignores the
// context keeps running until it returns.
type Goroutines struct {
	db *Database
}

// NewGoroutines returns a facility registering its threads in db. A nil db
// disables registration.
func NewGoroutines(db *Database) *Goroutines {
	return &Goroutines{db: db}
}

var defaultFacility = NewGoroutines(DefaultDatabase)

// DefaultDatabase is the registry used by Default.
var DefaultDatabase = NewDatabase()

// Default returns the process-wide facility.
func Default() Facility {
	return defaultFacility
}

func (g *Goroutines) Now() time.Time {
	return time.Now()
}

func (g *Goroutines) Spawn(cfg Config, body func(ctx context.Context)) (Handle, error) {
	if body == nil {
		return nil, ErrNilBody
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &goroutineHandle{
		id:     uuid.New(),
		cancel: cancel,
		gone:   make(chan struct{}),
		db:     g.db,
	}
	if g.db != nil {
		g.db.add(ThreadInfo{
			ID:            h.id,
			Name:          cfg.Name,
			PriorityClass: cfg.PriorityClass.String(),
			PriorityLevel: ClipPriorityLevel(cfg.PriorityLevel),
			CPUMask:       cfg.CPUMask.String(),
			StackSize:     cfg.StackSize,
			Started:       time.Now(),
		})
	}

	go func() {
		// The OS thread is discarded when this goroutine exits locked, so
		// scheduling changes never leak to other goroutines.
		runtime.LockOSThread()
		tid, err := applyPlatform(cfg)
		logger := log.WithFields(log.Fields{"thread": cfg.Name, "id": h.id})
		if err != nil {
			logger.WithError(err).Warn("Failed to apply thread scheduling parameters")
		}
		if cfg.StackSize != 0 {
			logger.Debugf("Stack size %d requested, goroutine stacks grow on demand", cfg.StackSize)
		}
		if g.db != nil && tid != 0 {
			g.db.setOSThreadID(h.id, tid)
		}
		defer h.markGone()
		body(ctx)
	}()

	return h, nil
}

type goroutineHandle struct {
	id       ThreadIdentifier
	cancel   context.CancelFunc
	gone     chan struct{}
	goneOnce sync.Once
	db       *Database
}

func (h *goroutineHandle) ID() ThreadIdentifier {
	return h.id
}

func (h *goroutineHandle) Done() <-chan struct{} {
	return h.gone
}

func (h *goroutineHandle) Alive() bool {
	select {
	case <-h.gone:
		return false
	default:
		return true
	}
}

func (h *goroutineHandle) Kill() error {
	h.cancel()
	h.markGone()
	return nil
}

func (h *goroutineHandle) markGone() {
	h.goneOnce.Do(func() {
		h.cancel()
		if h.db != nil {
			h.db.remove(h.id)
		}
		close(h.gone)
	})
}
