// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package timeout implements the bounded waits used by service controllers.
// A zero timeout means "wait forever".
package timeout

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Infinite is the timeout value that never expires.
const Infinite time.Duration = 0

const (
	pollInitialInterval = time.Millisecond
	pollMaxInterval     = 50 * time.Millisecond
)

// FromMilliseconds converts a configuration value in milliseconds. 0 is Infinite.
func FromMilliseconds(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Milliseconds is the inverse of FromMilliseconds.
func Milliseconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}

// Clock returns the current monotonic time.
type Clock func() time.Time

// Deadline is the end of a bounded wait that started at a given instant.
type Deadline struct {
	start   time.Time
	timeout time.Duration
	now     Clock
}

// NewDeadline starts a wait of length timeout now. A nil clock uses time.Now.
func NewDeadline(now Clock, timeout time.Duration) Deadline {
	if now == nil {
		now = time.Now
	}
	return Deadline{start: now(), timeout: timeout, now: now}
}

// Since returns a deadline for a wait that started at start.
func Since(now Clock, start time.Time, timeout time.Duration) Deadline {
	if now == nil {
		now = time.Now
	}
	return Deadline{start: start, timeout: timeout, now: now}
}

// Infinite reports whether the deadline never expires.
func (d Deadline) Infinite() bool {
	return d.timeout <= Infinite
}

// Expired reports whether the timeout elapsed.
func (d Deadline) Expired() bool {
	if d.Infinite() {
		return false
	}
	return d.now().Sub(d.start) >= d.timeout
}

// Remaining returns the time left. ok is false for an infinite deadline.
func (d Deadline) Remaining() (remaining time.Duration, ok bool) {
	if d.Infinite() {
		return 0, false
	}
	remaining = d.timeout - d.now().Sub(d.start)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Wait blocks until done is closed or the deadline expires. It returns true if
// done was closed.
func Wait(done <-chan struct{}, d Deadline) bool {
	remaining, ok := d.Remaining()
	if !ok {
		<-done
		return true
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Poll probes cond until it returns true or the deadline expires, sleeping
// with an exponential back-off between probes. It returns the last result of
// cond.
func Poll(d Deadline, cond func() bool) bool {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     pollInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         pollMaxInterval,
	}
	b.Reset()
	for {
		if cond() {
			return true
		}
		if d.Expired() {
			return false
		}
		sleep := b.NextBackOff()
		if remaining, ok := d.Remaining(); ok && remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}
