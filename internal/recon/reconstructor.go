package recon

import (
	"errors"
	"fmt"

	"github.com/banshee-data/evrecon/internal/codec"
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateReady
	stateFailed
)

// Config wires a Reconstructor to its collaborators.
type Config struct {
	Handler     FrameHandler
	Topic       string
	Accumulator Accumulator
	Options     Options
	NewDecoder  DecoderFactory // default: codec.NewDecoder
}

// Reconstructor cuts frames out of a stream of event arrays. The first
// buffer fixes the sensor geometry, the encoding and the schedule anchor;
// every buffer after that is decoded with the same decoder.
type Reconstructor struct {
	handler    FrameHandler
	topic      string
	acc        Accumulator
	opts       Options
	newDecoder DecoderFactory
	sched      *Scheduler

	state   lifecycle
	initErr error

	decoder  codec.Decoder
	sink     eventSink
	template Frame
	t0       int64

	seq    uint64
	events uint64
	frames uint64
}

// New validates cfg and returns a Reconstructor waiting for its first
// buffer. Errors wrap ErrConfiguration.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("%w: frame handler is required", ErrConfiguration)
	}
	if cfg.Accumulator == nil {
		return nil, fmt.Errorf("%w: accumulator is required", ErrConfiguration)
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.NewDecoder == nil {
		cfg.NewDecoder = codec.NewDecoder
	}

	r := &Reconstructor{
		handler:    cfg.Handler,
		topic:      cfg.Topic,
		acc:        cfg.Accumulator,
		opts:       cfg.Options,
		newDecoder: cfg.NewDecoder,
		sched:      NewScheduler(cfg.Options.FPS, cfg.Options.FrameTimes),
	}
	r.sink.r = r
	return r, nil
}

// ProcessBuffer decodes one event array, feeding every event to the
// accumulator and emitting each frame whose boundary the stream passes.
//
// The first call bootstraps the stream. If the buffer's encoding has no
// decoder the error wraps ErrConfiguration, nothing is decoded, and every
// later call returns the same error.
func (r *Reconstructor) ProcessBuffer(buf *codec.EventArray) error {
	if buf == nil {
		return errors.New("nil event array")
	}
	switch r.state {
	case stateFailed:
		return r.initErr
	case stateUninitialized:
		if err := r.initialize(buf); err != nil {
			r.state = stateFailed
			r.initErr = err
			opsf("stream %q disabled: %v", r.topic, err)
			return err
		}
		r.state = stateReady
	}

	if tb, ok := r.decoder.(codec.TimeBaseSetter); ok {
		tb.SetTimeBase(buf.TimeBase)
	}
	r.decoder.Decode(buf.Events, &r.sink)
	return nil
}

// initialize performs the one-time bootstrap from the first buffer. The
// decoder is resolved before anything else so an unknown encoding leaves
// the scheduler and accumulator untouched.
func (r *Reconstructor) initialize(buf *codec.EventArray) error {
	if buf.Width == 0 || buf.Height == 0 {
		return fmt.Errorf("%w: first buffer has no geometry (%dx%d)", ErrConfiguration, buf.Width, buf.Height)
	}
	dec, err := r.newDecoder(buf.Encoding, buf.Width, buf.Height)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	probe, err := r.newDecoder(buf.Encoding, buf.Width, buf.Height)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	first, found := firstTimestamp(probe, buf)
	if !found {
		opsf("first buffer on %q has no events; anchoring schedule at the time offset", r.topic)
	}
	diagf("first timestamp %d", first)
	r.t0 = int64(first) + r.opts.TimeOffsetNs
	r.sched.Initialize(r.t0)
	diagf("t0=%d mode=%s interval=%dns first boundary=%d", r.t0, r.sched.mode, r.sched.Interval(), r.sched.Next())

	cutoff := r.opts.CutoffNumEvents
	if cutoff < 0 {
		cutoff = -cutoff
	}
	r.acc.Initialize(buf.Width, buf.Height, uint32(cutoff), r.opts.TileSize, r.opts.FillRatio)

	r.template = Frame{
		Header:      codec.Header{FrameID: buf.Header.FrameID},
		Width:       buf.Width,
		Height:      buf.Height,
		Encoding:    EncodingMono8,
		IsBigEndian: hostIsBigEndian(),
		Step:        buf.Width,
	}
	r.decoder = dec
	return nil
}

// T0 returns the stream anchor (first event time plus offset). It is zero
// until the first buffer has been processed.
func (r *Reconstructor) T0() int64 { return r.t0 }

// Ready reports whether the stream has been bootstrapped.
func (r *Reconstructor) Ready() bool { return r.state == stateReady }

// NextFrameTime returns the next scheduled frame boundary.
func (r *Reconstructor) NextFrameTime() int64 { return r.sched.Next() }

// EventCount returns the number of events routed to the accumulator.
func (r *Reconstructor) EventCount() uint64 { return r.events }

// FrameCount returns the number of frames emitted.
func (r *Reconstructor) FrameCount() uint64 { return r.frames }

// eventSink is the long-lived Processor: it forwards every event to the
// accumulator, then emits frames for every boundary the event has passed.
type eventSink struct {
	r *Reconstructor
}

func (s *eventSink) EventCD(t uint64, x, y uint16, polarity uint8) {
	r := s.r
	r.acc.Event(t, x, y, polarity)
	r.events++
	stamp := int64(t) + r.opts.TimeOffsetNs
	for r.sched.Due(stamp) {
		r.emitFrame(r.sched.Next())
		r.sched.Advance()
	}
}

// Trigger, raw and end-of-buffer notices do not affect frame timing.
func (s *eventSink) EventExtTrigger(uint64, uint8, uint8) {}
func (s *eventSink) Finished()                            {}
func (s *eventSink) RawData([]byte)                       {}
