// Package clock implements a Lamport logical clock.
//
// A process owns exactly one Clock and advances it on every local event:
// Tick for sends and internal events, Advance for receives. Causally
// related events therefore carry strictly increasing timestamps across
// processes, without any synchronized physical time.
package clock

import "sync"

// Clock is a Lamport counter. The zero value is ready to use and starts
// at 0; the first event is stamped 1. Safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	value uint64
}

// Tick records a local event (send or internal) and returns the new value.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Advance records the receipt of an event stamped with observed and returns
// the new value: max(local, observed) + 1. The counter never decreases.
func (c *Clock) Advance(observed uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if observed > c.value {
		c.value = observed
	}
	c.value++
	return c.value
}

// Now returns the current value without recording an event.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
