package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// StreamStats counts ingest and reconstruction throughput. All methods are
// safe for concurrent use.
type StreamStats struct {
	mu        sync.Mutex
	buffers   int64
	bytes     int64
	events    int64
	frames    int64
	dropped   int64
	lastReset time.Time
	now       func() time.Time
}

// Snapshot is one reporting interval of StreamStats.
type Snapshot struct {
	Buffers  int64
	Bytes    int64
	Events   int64
	Frames   int64
	Dropped  int64
	Duration time.Duration
}

// NewStreamStats creates a StreamStats instance.
func NewStreamStats() *StreamStats {
	return &StreamStats{lastReset: time.Now(), now: time.Now}
}

// AddBuffer records one received event array of n payload bytes.
func (s *StreamStats) AddBuffer(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers++
	s.bytes += int64(n)
}

// AddEvents records decoded events.
func (s *StreamStats) AddEvents(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events += n
}

// AddFrame records one emitted frame.
func (s *StreamStats) AddFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

// AddDropped records a buffer that could not be decoded.
func (s *StreamStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

// GetAndReset returns the counters accumulated since the last call and
// starts a new interval.
func (s *StreamStats) GetAndReset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := Snapshot{
		Buffers:  s.buffers,
		Bytes:    s.bytes,
		Events:   s.events,
		Frames:   s.frames,
		Dropped:  s.dropped,
		Duration: now.Sub(s.lastReset),
	}
	s.buffers, s.bytes, s.events, s.frames, s.dropped = 0, 0, 0, 0, 0
	s.lastReset = now
	return snap
}

// LogStats logs per-second rates for the interval and resets it. Nothing
// is logged for an idle interval.
func (s *StreamStats) LogStats() {
	snap := s.GetAndReset()
	if line := snap.String(); line != "" {
		Logf("%s", line)
	}
}

// String formats the snapshot as per-second rates.
func (snap Snapshot) String() string {
	if snap.Buffers == 0 && snap.Dropped == 0 {
		return ""
	}
	secs := snap.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("Event stats (/sec): %.2f MB, %.1f buffers, %s events, %.1f frames",
		float64(snap.Bytes)/secs/(1024*1024),
		float64(snap.Buffers)/secs,
		FormatWithCommas(int64(float64(snap.Events)/secs)),
		float64(snap.Frames)/secs)
	if snap.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", snap.Dropped)
	}
	return msg
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
