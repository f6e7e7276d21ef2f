package testutil

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// DeterministicClock hands out strictly increasing created_at values so
// fixtures never depend on wall time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start nostr.Timestamp
	now   nostr.Timestamp
}

// NewDeterministicClock creates a clock whose first Next() returns start+1.
func NewDeterministicClock(start nostr.Timestamp) *DeterministicClock {
	return &DeterministicClock{start: start, now: start}
}

// Next advances the clock by one second and returns the new value.
func (c *DeterministicClock) Next() nostr.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Current returns the last value handed out without advancing.
func (c *DeterministicClock) Current() nostr.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start value.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
