package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// mono packs each event into one little-endian uint64:
//
//	bit 63      polarity
//	bits 48-62  y (15 bits)
//	bits 32-47  x
//	bits  0-31  t - timeBase, in nanoseconds
//
// The time base travels in EventArray.TimeBase.
const (
	monoWordSize  = 8
	monoMaxY      = 1<<15 - 1
	monoMaxDeltaT = math.MaxUint32
)

type monoDecoder struct {
	width, height uint32
	timeBase      uint64
}

func newMonoDecoder(width, height uint32) *monoDecoder {
	return &monoDecoder{width: width, height: height}
}

func (d *monoDecoder) SetTimeBase(timeBase uint64) { d.timeBase = timeBase }

func (d *monoDecoder) Decode(data []byte, p Processor) {
	n := len(data) / monoWordSize
	for i := 0; i < n; i++ {
		w := binary.LittleEndian.Uint64(data[i*monoWordSize:])
		pol := uint8(w >> 63)
		y := uint16((w >> 48) & monoMaxY)
		x := uint16(w >> 32)
		dt := w & monoMaxDeltaT
		if uint32(x) >= d.width || uint32(y) >= d.height {
			continue
		}
		p.EventCD(d.timeBase+dt, x, y, pol)
	}
	if rem := len(data) % monoWordSize; rem != 0 {
		p.RawData(data[len(data)-rem:])
	}
	p.Finished()
}

type monoEncoder struct{}

var errMonoTrigger = errors.New("mono encoding cannot carry trigger events")

func (monoEncoder) Encode(events []Event, triggers []Trigger) ([]byte, uint64, error) {
	if len(triggers) > 0 {
		return nil, 0, errMonoTrigger
	}
	if len(events) == 0 {
		return nil, 0, nil
	}
	if !sortedByTime(events) {
		return nil, 0, fmt.Errorf("mono: events must be in time order")
	}
	timeBase := events[0].T
	out := make([]byte, len(events)*monoWordSize)
	for i, e := range events {
		dt := e.T - timeBase
		if dt > monoMaxDeltaT {
			return nil, 0, fmt.Errorf("mono: event %d is %dns after the time base (max %d)", i, dt, uint64(monoMaxDeltaT))
		}
		if e.Y > monoMaxY {
			return nil, 0, fmt.Errorf("mono: event %d y=%d exceeds %d", i, e.Y, monoMaxY)
		}
		w := uint64(e.Polarity&1)<<63 | uint64(e.Y)<<48 | uint64(e.X)<<32 | dt
		binary.LittleEndian.PutUint64(out[i*monoWordSize:], w)
	}
	return out, timeBase, nil
}
