// Package framesink provides FrameHandler implementations for the evrecon
// command: image files on disk, counters and a fan-out to several sinks.
package framesink

import (
	"sync"

	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/banshee-data/evrecon/internal/recon"
)

// Fanout forwards every frame to each handler in order. Handlers share the
// frame and must not modify it.
type Fanout []recon.FrameHandler

// Frame implements recon.FrameHandler.
func (fo Fanout) Frame(f *recon.Frame, topic string) {
	for _, h := range fo {
		h.Frame(f, topic)
	}
}

// Counter counts frames and remembers the last stamp seen. If Stats is set
// each frame is also recorded there.
type Counter struct {
	Stats *monitoring.StreamStats

	mu        sync.Mutex
	frames    uint64
	lastStamp int64
}

// Frame implements recon.FrameHandler.
func (c *Counter) Frame(f *recon.Frame, topic string) {
	c.mu.Lock()
	c.frames++
	c.lastStamp = f.Header.StampNs
	c.mu.Unlock()
	if c.Stats != nil {
		c.Stats.AddFrame()
	}
}

// Frames returns the number of frames seen.
func (c *Counter) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// LastStamp returns the stamp of the most recent frame, or 0.
func (c *Counter) LastStamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStamp
}
