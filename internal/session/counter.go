package session

import "sync/atomic"

// FrameCounter holds the uplink frame-counter. It outlives the Manager so
// that a re-created manager (after a deep-sleep cycle) continues counting.
type FrameCounter struct {
	v atomic.Uint32
}

// NewFrameCounter returns a new FrameCounter starting at 1.
func NewFrameCounter() *FrameCounter {
	var c FrameCounter
	c.Reset()
	return &c
}

// Get returns the current value.
func (c *FrameCounter) Get() uint32 {
	return c.v.Load()
}

// Increment increments the counter by one.
func (c *FrameCounter) Increment() {
	c.v.Add(1)
}

// Reset resets the counter to 1.
func (c *FrameCounter) Reset() {
	c.v.Store(1)
}
