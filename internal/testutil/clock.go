// Package testutil provides deterministic building blocks for tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a ManualClock.
var Epoch = time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)

// ManualClock is a hunt.Clock that only moves when told to.
//
// With a non-zero step, every Now() call advances the clock by step after
// reading it, so successive history entries get distinct timestamps without
// the test managing time explicitly.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewManualClock creates a clock reading start. A zero start means Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{start: start, now: start}
}

// NewSteppingClock creates a clock starting at Epoch that advances by step
// on every read.
func NewSteppingClock(step time.Duration) *ManualClock {
	c := NewManualClock(Epoch)
	c.step = step
	return c
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the current reading without stepping.
func (c *ManualClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t. Moving backwards is allowed so tests can
// simulate a skewed wall clock.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Reset returns the clock to its start time.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
