// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package hostthread

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// Real-time static priorities are spread by class, as 28 per class.
	realTimeBase     = 28 * 3
	maxFIFOPriority  = 99
	maxSchedCPUIndex = 1024
)

// applyPlatform sets affinity and scheduling of the calling OS thread, which
// must be locked. It returns the kernel thread id.
func applyPlatform(cfg Config) (int, error) {
	tid := unix.Gettid()
	var errs []error

	if cfg.CPUMask != UndefinedCPUs {
		var set unix.CPUSet
		set.Zero()
		for _, cpu := range cfg.CPUMask.CPUs() {
			if cpu < maxSchedCPUIndex {
				set.Set(cpu)
			}
		}
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			errs = append(errs, fmt.Errorf("setting CPU mask %s: %w", cfg.CPUMask, err))
		}
	}

	if attr, ok := schedAttr(cfg.PriorityClass, cfg.PriorityLevel); ok {
		if err := unix.SchedSetAttr(0, attr, 0); err != nil {
			errs = append(errs, fmt.Errorf("setting priority %s/%d (likely insufficient permissions): %w",
				cfg.PriorityClass, cfg.PriorityLevel, err))
		}
	}

	return tid, errors.Join(errs...)
}

func schedAttr(class PriorityClass, level uint8) (*unix.SchedAttr, bool) {
	switch class {
	case RealTimePriorityClass:
		prio := uint32(realTimeBase) + uint32(ClipPriorityLevel(level))
		if prio > maxFIFOPriority {
			prio = maxFIFOPriority
		}
		return &unix.SchedAttr{Policy: unix.SCHED_FIFO, Priority: prio}, true
	default:
		// Idle and Normal threads keep the inherited time-sharing policy,
		// whose only static priority is 0.
		return nil, false
	}
}
