package recon

import (
	"github.com/banshee-data/evrecon/internal/codec"
)

// EncodingMono8 is the pixel encoding of every emitted frame.
const EncodingMono8 = "mono8"

// Frame is one reconstructed intensity image. Data holds Step*Height
// bytes, one byte per pixel. Header.StampNs is the scheduled frame time,
// not the time of the event that triggered the emission.
type Frame struct {
	Header      codec.Header
	Seq         uint64
	Width       uint32
	Height      uint32
	Encoding    string
	IsBigEndian bool
	Step        uint32
	Data        []byte
}

// FrameHandler receives completed frames. Ownership of f passes to the
// handler; the Reconstructor keeps no reference after the call returns.
type FrameHandler interface {
	Frame(f *Frame, topic string)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(f *Frame, topic string)

// Frame calls fn(f, topic).
func (fn FrameHandlerFunc) Frame(f *Frame, topic string) { fn(f, topic) }

// Accumulator is the incremental brightness estimator fed by every event.
type Accumulator interface {
	Initialize(width, height, cutoffNumEvents uint32, tileSize int, fillRatio float64)
	Event(t uint64, x, y uint16, polarity uint8)
	// GetImage writes the current estimate into out, one row per stride
	// bytes. It must not change the accumulator state.
	GetImage(out []byte, stride int)
}

// DecoderFactory builds a decoder for an encoding name. codec.NewDecoder
// is the default.
type DecoderFactory func(encoding string, width, height uint32) (codec.Decoder, error)
