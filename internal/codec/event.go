package codec

import (
	"fmt"
	"sort"
	"strings"
)

// Event is a single contrast-detection event.
type Event struct {
	T        uint64 // nanoseconds
	X        uint16
	Y        uint16
	Polarity uint8
}

// Trigger is an external trigger edge.
type Trigger struct {
	T    uint64 // nanoseconds
	Edge uint8
	ID   uint8
}

// Encoder packs events into the byte layout of one encoding. The returned
// time base must be stored in EventArray.TimeBase alongside the bytes.
type Encoder interface {
	Encode(events []Event, triggers []Trigger) (data []byte, timeBase uint64, err error)
}

// NewEncoder returns an encoder for the named encoding.
func NewEncoder(encoding string) (Encoder, error) {
	switch strings.ToLower(encoding) {
	case EncodingMono:
		return monoEncoder{}, nil
	case EncodingEVT3:
		return &evt3Encoder{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
}

// sortedByTime reports whether events are in non-decreasing time order.
func sortedByTime(events []Event) bool {
	return sort.SliceIsSorted(events, func(i, j int) bool { return events[i].T < events[j].T })
}

// Collector is a Processor that keeps every callback it receives. It is
// used by tools and tests that need a decoded view of a buffer.
type Collector struct {
	Events   []Event
	Triggers []Trigger
	Raw      [][]byte
	Finishes int
}

func (c *Collector) EventCD(t uint64, x, y uint16, polarity uint8) {
	c.Events = append(c.Events, Event{T: t, X: x, Y: y, Polarity: polarity})
}

func (c *Collector) EventExtTrigger(t uint64, edge, id uint8) {
	c.Triggers = append(c.Triggers, Trigger{T: t, Edge: edge, ID: id})
}

func (c *Collector) Finished() { c.Finishes++ }

func (c *Collector) RawData(data []byte) {
	c.Raw = append(c.Raw, append([]byte(nil), data...))
}
