package recon

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/evrecon/internal/codec"
)

// fakeAccumulator records events; its read-out fills the image with the
// number of events seen so far so tests can tell when a frame was cut.
type fakeAccumulator struct {
	initCalls int
	width     uint32
	height    uint32
	cutoff    uint32
	tileSize  int
	fillRatio float64
	events    []codec.Event
}

func (a *fakeAccumulator) Initialize(width, height, cutoff uint32, tileSize int, fillRatio float64) {
	a.initCalls++
	a.width, a.height, a.cutoff, a.tileSize, a.fillRatio = width, height, cutoff, tileSize, fillRatio
}

func (a *fakeAccumulator) Event(t uint64, x, y uint16, p uint8) {
	a.events = append(a.events, codec.Event{T: t, X: x, Y: y, Polarity: p})
}

func (a *fakeAccumulator) GetImage(out []byte, stride int) {
	for i := range out {
		out[i] = byte(len(a.events))
	}
}

type frameLog struct {
	frames []*Frame
	topics []string
}

func (l *frameLog) Frame(f *Frame, topic string) {
	l.frames = append(l.frames, f)
	l.topics = append(l.topics, topic)
}

func (l *frameLog) stamps() []int64 {
	out := make([]int64, len(l.frames))
	for i, f := range l.frames {
		out[i] = f.Header.StampNs
	}
	return out
}

func monoArray(t *testing.T, events ...codec.Event) *codec.EventArray {
	t.Helper()
	enc, err := codec.NewEncoder(codec.EncodingMono)
	require.NoError(t, err)
	data, base, err := enc.Encode(events, nil)
	require.NoError(t, err)
	return &codec.EventArray{
		Header:   codec.Header{FrameID: "cam0"},
		Width:    8,
		Height:   4,
		Encoding: codec.EncodingMono,
		TimeBase: base,
		Events:   data,
	}
}

func ev(t uint64) codec.Event { return codec.Event{T: t, X: 1, Y: 2, Polarity: 1} }

func newTestReconstructor(t *testing.T, opts Options) (*Reconstructor, *fakeAccumulator, *frameLog) {
	t.Helper()
	acc := &fakeAccumulator{}
	log := &frameLog{}
	r, err := New(Config{Handler: log, Topic: "image_raw", Accumulator: acc, Options: opts})
	require.NoError(t, err)
	return r, acc, log
}

func TestReconstructor_PeriodicScenario(t *testing.T) {
	r, acc, log := newTestReconstructor(t, DefaultOptions())

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_000_000_000))))
	assert.Equal(t, int64(1_000_000_000), r.T0())
	assert.Empty(t, log.frames, "an event on the boundary does not cut a frame")

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_045_000_000))))
	if diff := cmp.Diff([]int64{1_000_000_000, 1_040_000_000}, log.stamps()); diff != "" {
		t.Errorf("frame stamps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(1_080_000_000), r.NextFrameTime())
	assert.Equal(t, 1, acc.initCalls)
	assert.Equal(t, uint64(2), r.EventCount())
	assert.Equal(t, uint64(2), r.FrameCount())
}

func TestReconstructor_PeriodicStampsFormArithmeticSequence(t *testing.T) {
	r, _, log := newTestReconstructor(t, DefaultOptions())
	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_013_000_000))))
	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_100_000_000), ev(1_300_000_000), ev(1_333_000_000))))

	stamps := log.stamps()
	require.NotEmpty(t, stamps)
	assert.Equal(t, int64(1_000_000_000), stamps[0], "first stamp is the aligned tick at or before t0")
	for i := 1; i < len(stamps); i++ {
		assert.Equal(t, int64(40_000_000), stamps[i]-stamps[i-1], "stamp %d", i)
	}
	assert.Equal(t, int64(1_320_000_000), stamps[len(stamps)-1])
}

func TestReconstructor_ExplicitScenario(t *testing.T) {
	opts := DefaultOptions()
	opts.FrameTimes = []int64{500, 1500, 2500}
	r, _, log := newTestReconstructor(t, opts)

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1000))))
	assert.Equal(t, int64(1500), r.NextFrameTime())

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(3000))))
	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(40_002_501))))

	want := []int64{1500, 2500, 2500 + 40_000_000}
	if diff := cmp.Diff(want, log.stamps()); diff != "" {
		t.Errorf("frame stamps mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructor_BurstEmitsEverySkippedBoundary(t *testing.T) {
	r, _, log := newTestReconstructor(t, DefaultOptions())
	require.NoError(t, r.ProcessBuffer(monoArray(t,
		ev(1_000_000_000),
		ev(1_010_000_000),
		ev(1_200_000_000), // passes four boundaries at once
		ev(1_210_000_000),
	)))

	wantStamps := []int64{1_000_000_000, 1_040_000_000, 1_080_000_000, 1_120_000_000, 1_160_000_000, 1_200_000_000}
	if diff := cmp.Diff(wantStamps, log.stamps()); diff != "" {
		t.Fatalf("frame stamps mismatch (-want +got):\n%s", diff)
	}

	// Every frame in a burst shows the same accumulator state.
	seen := make([]byte, len(log.frames))
	for i, f := range log.frames {
		seen[i] = f.Data[0]
	}
	assert.Equal(t, []byte{2, 3, 3, 3, 3, 4}, seen)
}

func TestReconstructor_ForwardsEveryEventOnceInOrder(t *testing.T) {
	r, acc, _ := newTestReconstructor(t, DefaultOptions())
	var want []codec.Event
	for b := 0; b < 3; b++ {
		var batch []codec.Event
		for i := 0; i < 50; i++ {
			e := codec.Event{
				T:        uint64(2_000_000_000 + b*300_000_000 + i*5_000_000),
				X:        uint16(i % 8),
				Y:        uint16(i % 4),
				Polarity: uint8(i % 2),
			}
			batch = append(batch, e)
		}
		want = append(want, batch...)
		require.NoError(t, r.ProcessBuffer(monoArray(t, batch...)))
	}
	if diff := cmp.Diff(want, acc.events); diff != "" {
		t.Errorf("accumulator events mismatch (-want +got):\n%s", diff)
	}
}

func TestReconstructor_UnknownEncoding(t *testing.T) {
	r, acc, log := newTestReconstructor(t, DefaultOptions())
	buf := monoArray(t, ev(1_000_000_000), ev(2_000_000_000))
	buf.Encoding = "libcaer_cmp"

	err := r.ProcessBuffer(buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.True(t, errors.Is(err, codec.ErrUnknownEncoding))
	assert.False(t, r.Ready())
	assert.Zero(t, acc.initCalls)
	assert.Empty(t, acc.events)
	assert.Empty(t, log.frames)

	buf.Encoding = codec.EncodingMono
	assert.Equal(t, err, r.ProcessBuffer(buf), "a failed stream stays failed")
	assert.Empty(t, acc.events)
}

func TestReconstructor_BootstrapUsesDisposableDecoder(t *testing.T) {
	var built int
	factory := func(encoding string, w, h uint32) (codec.Decoder, error) {
		built++
		return codec.NewDecoder(encoding, w, h)
	}
	acc := &fakeAccumulator{}
	r, err := New(Config{Handler: &frameLog{}, Accumulator: acc, Options: DefaultOptions(), NewDecoder: factory})
	require.NoError(t, err)

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(7), ev(9))))
	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(11))))
	assert.Equal(t, 2, built, "one probe decoder plus one stream decoder")
	assert.Len(t, acc.events, 3, "the probe decode must not reach the accumulator")
	assert.Equal(t, int64(7), r.T0())
}

func TestReconstructor_EmptyFirstBufferAnchorsAtOffset(t *testing.T) {
	r, _, log := newTestReconstructor(t, DefaultOptions())
	require.NoError(t, r.ProcessBuffer(monoArray(t)))
	assert.True(t, r.Ready())
	assert.Zero(t, r.T0())

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_000_000_000))))
	assert.Len(t, log.frames, 25, "every tick from 0 to 0.96s is emitted")
}

func TestReconstructor_TimeOffset(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeOffsetNs = -5_000_000
	r, _, log := newTestReconstructor(t, opts)

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_005_000_000), ev(1_050_000_000))))
	assert.Equal(t, int64(1_000_000_000), r.T0())
	assert.Equal(t, []int64{1_000_000_000, 1_040_000_000}, log.stamps())
}

func TestReconstructor_TriggersDoNotCutFrames(t *testing.T) {
	enc, err := codec.NewEncoder(codec.EncodingEVT3)
	require.NoError(t, err)
	first, base, err := enc.Encode([]codec.Event{ev(1_000_000_000)}, nil)
	require.NoError(t, err)
	second, _, err := enc.Encode(nil, []codec.Trigger{{T: 2_000_000_000, Edge: 1}})
	require.NoError(t, err)

	r, acc, log := newTestReconstructor(t, DefaultOptions())
	mk := func(data []byte) *codec.EventArray {
		return &codec.EventArray{Width: 8, Height: 4, Encoding: codec.EncodingEVT3, TimeBase: base, Events: data}
	}
	require.NoError(t, r.ProcessBuffer(mk(first)))
	require.NoError(t, r.ProcessBuffer(mk(second)))

	assert.Len(t, acc.events, 1)
	assert.Empty(t, log.frames)
}

func TestReconstructor_FrameContents(t *testing.T) {
	opts := DefaultOptions()
	opts.CutoffNumEvents = -12
	opts.TileSize = 4
	opts.FillRatio = 0.25
	r, acc, log := newTestReconstructor(t, opts)

	require.NoError(t, r.ProcessBuffer(monoArray(t, ev(1_000_000_000), ev(1_100_000_000))))
	require.Len(t, log.frames, 3)

	assert.Equal(t, uint32(8), acc.width)
	assert.Equal(t, uint32(4), acc.height)
	assert.Equal(t, uint32(12), acc.cutoff, "cutoff sign is ignored")
	assert.Equal(t, 4, acc.tileSize)
	assert.Equal(t, 0.25, acc.fillRatio)

	for i, f := range log.frames {
		assert.Equal(t, uint64(i), f.Seq)
		assert.Equal(t, EncodingMono8, f.Encoding)
		assert.Equal(t, uint32(8), f.Step)
		assert.Len(t, f.Data, 32)
		assert.Equal(t, "cam0", f.Header.FrameID)
		assert.Equal(t, "image_raw", log.topics[i])
	}
	assert.NotSame(t, &log.frames[0].Data[0], &log.frames[1].Data[0], "each frame owns its pixels")
}

func TestReconstructor_RejectsZeroGeometry(t *testing.T) {
	r, acc, _ := newTestReconstructor(t, DefaultOptions())
	buf := monoArray(t, ev(1))
	buf.Height = 0
	err := r.ProcessBuffer(buf)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, acc.initCalls)
}

func TestNew_Validation(t *testing.T) {
	mod := func(f func(*Options)) Options {
		o := DefaultOptions()
		f(&o)
		return o
	}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"nil handler", Config{Accumulator: &fakeAccumulator{}, Options: DefaultOptions()}},
		{"nil accumulator", Config{Handler: &frameLog{}, Options: DefaultOptions()}},
		{"zero fps", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = 0 })}},
		{"fps too high", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = 2e9 })}},
		{"fps too low", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = 1e-10 })}},
		{"negative fps too low", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = -1e-12 })}},
		{"zero tile", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.TileSize = 0 })}},
		{"fill ratio zero", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FillRatio = 0 })}},
		{"fill ratio above one", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FillRatio = 1.5 })}},
		{"zero cutoff", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.CutoffNumEvents = 0 })}},
		{"descending frame times", Config{Handler: &frameLog{}, Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FrameTimes = []int64{3, 2} })}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := New(Config{Handler: FrameHandlerFunc(func(*Frame, string) {}), Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = -25 })})
	assert.NoError(t, err, "negative fps uses its magnitude")

	_, err = New(Config{Handler: FrameHandlerFunc(func(*Frame, string) {}), Accumulator: &fakeAccumulator{}, Options: mod(func(o *Options) { o.FPS = 1e-9 })})
	assert.NoError(t, err, "a 1e18ns interval fits in int64")
}
