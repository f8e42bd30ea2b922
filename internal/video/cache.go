package video

import (
	"sync/atomic"
)

// FrameCache is a single slot shared between the capture loop and its
// consumers. Publish overwrites the slot unconditionally so readers
// always see the most recent frame; frames that are never fetched are
// simply dropped. There is no queue and no backpressure toward the
// camera.
type FrameCache struct {
	current   atomic.Pointer[Frame]
	published atomic.Uint64
}

// NewFrameCache creates an empty frame cache
func NewFrameCache() *FrameCache {
	return &FrameCache{}
}

// Publish stores a frame, replacing whatever was there before
func (c *FrameCache) Publish(f *Frame) {
	if f == nil {
		return
	}
	c.current.Store(f)
	c.published.Add(1)
}

// Fetch returns the most recent frame. The second return value is
// false until the first frame has been published. Callers must not
// mutate the returned frame.
func (c *FrameCache) Fetch() (*Frame, bool) {
	f := c.current.Load()
	if f == nil {
		return nil, false
	}
	return f, true
}

// Published returns the total number of frames published so far
func (c *FrameCache) Published() uint64 {
	return c.published.Load()
}
