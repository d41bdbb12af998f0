package codec

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// EVT 3.0 word types (bits 12-15 of each 16-bit little-endian word).
const (
	evt3AddrY      = 0x0
	evt3AddrX      = 0x2
	evt3VectBaseX  = 0x3
	evt3Vect12     = 0x4
	evt3Vect8      = 0x5
	evt3TimeLow    = 0x6
	evt3TimeHigh   = 0x8
	evt3ExtTrigger = 0xA

	evt3AddrMask  = 0x7FF
	evt3TimeMask  = 0xFFF
	evt3Rollover  = uint64(1) << 24 // sensor time is 24 bits of microseconds
	evt3MaxAddr   = evt3AddrMask
	evt3WordBytes = 2
)

// evt3Decoder keeps row, column-base and time state across Decode calls so
// a stream may be split into buffers at any word boundary.
type evt3Decoder struct {
	width, height uint32

	timeBase    uint64
	hasTimeBase bool

	highUs    uint64 // rollover-corrected high part, microseconds
	lastHigh  uint16
	seenHigh  bool
	lowUs     uint64
	y         uint16
	baseX     uint16
	vectorPol uint8
}

func newEVT3Decoder(width, height uint32) *evt3Decoder {
	return &evt3Decoder{width: width, height: height}
}

// SetTimeBase fixes the stream epoch. Only the first call has an effect;
// sensor time is continuous across buffers.
func (d *evt3Decoder) SetTimeBase(timeBase uint64) {
	if d.hasTimeBase {
		return
	}
	d.timeBase = timeBase
	d.hasTimeBase = true
}

func (d *evt3Decoder) now() uint64 {
	return d.timeBase + (d.highUs|d.lowUs)*1000
}

func (d *evt3Decoder) emit(p Processor, x uint16, pol uint8) {
	if uint32(x) >= d.width || uint32(d.y) >= d.height {
		return
	}
	p.EventCD(d.now(), x, d.y, pol)
}

func (d *evt3Decoder) Decode(data []byte, p Processor) {
	n := len(data) / evt3WordBytes
	for i := 0; i < n; i++ {
		w := binary.LittleEndian.Uint16(data[i*evt3WordBytes:])
		switch w >> 12 {
		case evt3AddrY:
			d.y = w & evt3AddrMask
		case evt3AddrX:
			d.emit(p, w&evt3AddrMask, uint8(w>>11)&1)
		case evt3VectBaseX:
			d.baseX = w & evt3AddrMask
			d.vectorPol = uint8(w>>11) & 1
		case evt3Vect12:
			d.vector(p, uint32(w&0xFFF), 12)
		case evt3Vect8:
			d.vector(p, uint32(w&0xFF), 8)
		case evt3TimeLow:
			d.lowUs = uint64(w & evt3TimeMask)
		case evt3TimeHigh:
			high := w & evt3TimeMask
			if d.seenHigh && high < d.lastHigh {
				d.highUs += evt3Rollover
			}
			d.highUs = d.highUs&^(evt3Rollover-1) | uint64(high)<<12
			d.lastHigh = high
			d.seenHigh = true
		case evt3ExtTrigger:
			p.EventExtTrigger(d.now(), uint8(w&1), uint8(w>>8)&0xF)
		default:
			// continued and "others" words carry no CD payload
		}
	}
	if len(data)%evt3WordBytes != 0 {
		p.RawData(data[len(data)-1:])
	}
	p.Finished()
}

func (d *evt3Decoder) vector(p Processor, mask uint32, bits uint16) {
	for i := uint16(0); i < bits; i++ {
		if mask&(1<<i) != 0 {
			d.emit(p, d.baseX+i, d.vectorPol)
		}
	}
	d.baseX += bits
}

// evt3Encoder writes single-event ADDR_X words. It keeps the stream epoch
// and time state across Encode calls so successive buffers decode
// correctly with one long-lived decoder.
type evt3Encoder struct {
	started  bool
	timeBase uint64
	lastUs   uint64
	y        int
}

type evt3Item struct {
	t       uint64
	isEvent bool
	ev      Event
	tr      Trigger
}

func (e *evt3Encoder) Encode(events []Event, triggers []Trigger) ([]byte, uint64, error) {
	items := make([]evt3Item, 0, len(events)+len(triggers))
	for _, ev := range events {
		if ev.X > evt3MaxAddr || ev.Y > evt3MaxAddr {
			return nil, 0, fmt.Errorf("evt3: event (%d,%d) exceeds %d", ev.X, ev.Y, evt3MaxAddr)
		}
		items = append(items, evt3Item{t: ev.T, isEvent: true, ev: ev})
	}
	for _, tr := range triggers {
		items = append(items, evt3Item{t: tr.T, tr: tr})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].t < items[j].t })
	if len(items) == 0 {
		return nil, e.timeBase, nil
	}

	if !e.started {
		e.timeBase = items[0].t - items[0].t%1000
		e.y = -1
	}

	out := make([]byte, 0, len(items)*4*evt3WordBytes)
	put := func(typ, payload uint16) {
		out = binary.LittleEndian.AppendUint16(out, typ<<12|payload)
	}

	for _, it := range items {
		if it.t < e.timeBase {
			return nil, 0, fmt.Errorf("evt3: event at %dns precedes stream start %dns", it.t, e.timeBase)
		}
		us := (it.t - e.timeBase) / 1000
		if e.started && us < e.lastUs {
			return nil, 0, fmt.Errorf("evt3: events must be in time order (%dus after %dus)", us, e.lastUs)
		}
		if e.started && (us>>12)-(e.lastUs>>12) >= 1<<12 {
			return nil, 0, fmt.Errorf("evt3: gap of %dus cannot be represented", us-e.lastUs)
		}
		if !e.started || us>>12 != e.lastUs>>12 {
			put(evt3TimeHigh, uint16(us>>12)&evt3TimeMask)
			put(evt3TimeLow, uint16(us)&evt3TimeMask)
		} else if us != e.lastUs {
			put(evt3TimeLow, uint16(us)&evt3TimeMask)
		}
		e.lastUs = us
		e.started = true

		if !it.isEvent {
			put(evt3ExtTrigger, uint16(it.tr.ID&0xF)<<8|uint16(it.tr.Edge&1))
			continue
		}
		if int(it.ev.Y) != e.y {
			put(evt3AddrY, it.ev.Y)
			e.y = int(it.ev.Y)
		}
		put(evt3AddrX, uint16(it.ev.Polarity&1)<<11|it.ev.X)
	}
	return out, e.timeBase, nil
}
