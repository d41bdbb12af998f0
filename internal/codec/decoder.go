package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownEncoding is returned by NewDecoder and NewEncoder when no codec
// is registered for the requested encoding name.
var ErrUnknownEncoding = errors.New("unknown event encoding")

// Processor receives decoded events. Decoders call it synchronously, in
// stream order, from inside Decode.
type Processor interface {
	// EventCD is called for every contrast-detection event. Polarity is 1
	// for a brightness increase and 0 for a decrease.
	EventCD(t uint64, x, y uint16, polarity uint8)
	// EventExtTrigger is called for external trigger edges.
	EventExtTrigger(t uint64, edge, id uint8)
	// Finished is called once at the end of every Decode call.
	Finished()
	// RawData receives bytes the decoder could not interpret.
	RawData(data []byte)
}

// Decoder turns packed event bytes into Processor callbacks. A Decoder is
// stateful (evt3 carries time and row state between buffers) and must not
// be shared between streams or goroutines.
type Decoder interface {
	Decode(data []byte, p Processor)
}

// TimeBaseSetter is implemented by decoders whose events are stored
// relative to the EventArray time base.
type TimeBaseSetter interface {
	SetTimeBase(timeBase uint64)
}

type decoderFactory func(width, height uint32) Decoder

var decoders = map[string]decoderFactory{
	EncodingMono: func(w, h uint32) Decoder { return newMonoDecoder(w, h) },
	EncodingEVT3: func(w, h uint32) Decoder { return newEVT3Decoder(w, h) },
}

// Encoding names understood by NewDecoder.
const (
	EncodingMono = "mono"
	EncodingEVT3 = "evt3"
)

// NewDecoder returns a fresh decoder for the named encoding. Names are
// matched case-insensitively. Events outside width x height are dropped.
func NewDecoder(encoding string, width, height uint32) (Decoder, error) {
	f, ok := decoders[strings.ToLower(encoding)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
	return f(width, height), nil
}

// Encodings lists the supported encoding names in sorted order.
func Encodings() []string {
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
