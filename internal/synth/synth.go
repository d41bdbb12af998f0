// Package synth generates synthetic event streams for tests and the
// gen-events tool.
package synth

import "github.com/banshee-data/evrecon/internal/codec"

// MovingBar generates a vertical bar of ON events sweeping left to right
// across a width x height sensor, trailed by OFF events one column behind.
// One column is swept every stepNs nanoseconds starting at startNs; each
// column emits one event per row.
func MovingBar(width, height uint16, startNs, stepNs uint64, sweeps int) []codec.Event {
	if width == 0 || height == 0 || sweeps <= 0 {
		return nil
	}
	events := make([]codec.Event, 0, int(width)*int(height)*2*sweeps)
	t := startNs
	for s := 0; s < sweeps; s++ {
		for x := uint16(0); x < width; x++ {
			perEvent := stepNs / uint64(height) / 2
			for y := uint16(0); y < height; y++ {
				events = append(events, codec.Event{T: t, X: x, Y: y, Polarity: 1})
				t += perEvent
				trail := x - 1
				if x == 0 {
					trail = width - 1
				}
				events = append(events, codec.Event{T: t, X: trail, Y: y, Polarity: 0})
				t += perEvent
			}
			// Keep columns exactly stepNs apart regardless of rounding.
			t = startNs + uint64(s*int(width)+int(x)+1)*stepNs
		}
	}
	return events
}

// Burst returns n events at the same pixel, all stamped t.
func Burst(t uint64, x, y uint16, n int) []codec.Event {
	events := make([]codec.Event, n)
	for i := range events {
		events[i] = codec.Event{T: t, X: x, Y: y, Polarity: uint8(i % 2)}
	}
	return events
}

// Split breaks events into chunks of at most n events.
func Split(events []codec.Event, n int) [][]codec.Event {
	if n <= 0 {
		return nil
	}
	var chunks [][]codec.Event
	for len(events) > n {
		chunks = append(chunks, events[:n])
		events = events[n:]
	}
	if len(events) > 0 {
		chunks = append(chunks, events)
	}
	return chunks
}
