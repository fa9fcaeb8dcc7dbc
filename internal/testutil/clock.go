// Package testutil provides deterministic helpers shared by tests and
// the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe, manually advanced time source.
//
// It stands in for time.Now in tests so rate limits and deadlines can be
// crossed without sleeping.
type Clock struct {
	mu sync.Mutex
	at time.Time
}

// NewClock creates a clock frozen at the given start time.
func NewClock(start time.Time) *Clock {
	return &Clock{at: start}
}

// Now returns the current clock time. Pass as the now function of an
// engine or reconciler.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

// Set moves the clock to an absolute time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = t
}
