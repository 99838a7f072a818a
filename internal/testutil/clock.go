// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a DeterministicClock reports for sequence 0.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a logical clock for tests. Each call to Now
// advances it by one second from Epoch, so transaction instants are
// reproducible across runs and engines.
//
// All methods are safe for concurrent use.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	step time.Duration
}

// NewDeterministicClock creates a clock at sequence 0. The first call to
// Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{step: time.Second}
}

// Next increments and returns the sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock and returns Epoch plus one step per tick. It
// matches tx.Clock, so tests pass clock.Now to tx.WithClock.
func (c *DeterministicClock) Now() time.Time {
	return c.At(c.Next())
}

// At returns the instant Now reported for sequence seq.
func (c *DeterministicClock) At(seq int64) time.Time {
	return Epoch.Add(time.Duration(seq) * c.step)
}

// Reset returns the clock to sequence 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
