package recon

import "math"

type scheduleMode int

const (
	schedulePeriodic scheduleMode = iota
	scheduleExplicit
)

func (m scheduleMode) String() string {
	if m == scheduleExplicit {
		return "explicit"
	}
	return "periodic"
}

// Scheduler owns the next frame boundary. In periodic mode boundaries are
// interval-aligned ticks. In explicit mode they come from a caller-supplied
// ascending list; once the list runs out the scheduler keeps going at the
// periodic interval from the last explicit stamp.
//
// The boundary never moves backwards once Initialize has run.
type Scheduler struct {
	mode     scheduleMode
	interval int64
	next     int64
	pending  []int64
}

// FrameInterval converts a frame rate to a whole number of nanoseconds.
// The sign of fps is ignored and the result is truncated.
func FrameInterval(fps float64) int64 {
	return int64(1e9 / math.Abs(fps))
}

// NewScheduler creates a scheduler. A non-empty frameTimes selects
// explicit mode; fps still provides the fallback interval. frameTimes is
// copied.
func NewScheduler(fps float64, frameTimes []int64) *Scheduler {
	s := &Scheduler{interval: FrameInterval(fps)}
	if len(frameTimes) > 0 {
		s.mode = scheduleExplicit
		s.pending = append([]int64(nil), frameTimes...)
	}
	return s
}

// Initialize seeds the first boundary from the stream anchor t0.
//
// Periodic: the largest interval multiple at or before t0.
// Explicit: the first listed stamp at or after t0. Earlier stamps are
// discarded and never produce a frame. If every stamp is earlier than t0
// the periodic fallback continues from the last one.
func (s *Scheduler) Initialize(t0 int64) {
	if s.mode == schedulePeriodic {
		s.next = floorDiv(t0, s.interval) * s.interval
		return
	}
	s.Advance()
	for s.next < t0 {
		s.Advance()
	}
}

// Advance moves to the following boundary.
func (s *Scheduler) Advance() {
	if s.mode == scheduleExplicit && len(s.pending) > 0 {
		s.next = s.pending[0]
		s.pending = s.pending[1:]
		return
	}
	s.next += s.interval
}

// Due reports whether an event at t (offset already applied) has passed
// the current boundary. Callers loop Due/Advance, because one event can
// pass several boundaries.
func (s *Scheduler) Due(t int64) bool {
	return t > s.next
}

// Next returns the current boundary.
func (s *Scheduler) Next() int64 { return s.next }

// Interval returns the periodic (or fallback) spacing in nanoseconds.
func (s *Scheduler) Interval() int64 { return s.interval }

// Explicit reports whether the scheduler was built from a frame-time list.
func (s *Scheduler) Explicit() bool { return s.mode == scheduleExplicit }

// Pending returns how many explicit stamps have not been consumed.
func (s *Scheduler) Pending() int { return len(s.pending) }

// floorDiv rounds towards negative infinity so negative anchors align to
// the tick below them.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
