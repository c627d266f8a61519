// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package timeout

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMilliseconds(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, FromMilliseconds(1500))
	assert.Equal(t, Infinite, FromMilliseconds(0))
	assert.Equal(t, uint64(1500), Milliseconds(1500*time.Millisecond))
	assert.Equal(t, uint64(0), Milliseconds(-time.Second))
}

func TestDeadlineExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	d := NewDeadline(clock.Now, time.Second)
	assert.False(t, d.Expired())

	clock.Advance(400 * time.Millisecond)
	remaining, ok := d.Remaining()
	assert.True(t, ok)
	assert.Equal(t, 600*time.Millisecond, remaining)

	clock.Advance(600 * time.Millisecond)
	assert.True(t, d.Expired())
	remaining, _ = d.Remaining()
	assert.Equal(t, time.Duration(0), remaining)
}

func TestInfiniteDeadlineNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	d := NewDeadline(clock.Now, Infinite)
	clock.Advance(24 * time.Hour)
	assert.True(t, d.Infinite())
	assert.False(t, d.Expired())
	_, ok := d.Remaining()
	assert.False(t, ok)
}

func TestSince(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	d := Since(clock.Now, clock.now.Add(-2*time.Second), time.Second)
	assert.True(t, d.Expired())
}

func TestWait(t *testing.T) {
	done := make(chan struct{})
	assert.False(t, Wait(done, NewDeadline(nil, 20*time.Millisecond)))

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	}()
	assert.True(t, Wait(done, NewDeadline(nil, Infinite)))
}

func TestPoll(t *testing.T) {
	var probes atomic.Int32
	ok := Poll(NewDeadline(nil, time.Second), func() bool {
		return probes.Add(1) == 5
	})
	assert.True(t, ok)
	assert.Equal(t, int32(5), probes.Load())
}

func TestPollTimesOut(t *testing.T) {
	start := time.Now()
	ok := Poll(NewDeadline(nil, 30*time.Millisecond), func() bool { return false })
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
