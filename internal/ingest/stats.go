// Package ingest delivers event arrays to a handler from a live UDP socket
// or a packet capture file. Each UDP payload carries one serialized
// codec.EventArray.
package ingest

import "github.com/banshee-data/evrecon/internal/codec"

// Handler receives each decoded event array. Returning an error stops
// ingest and the error is passed back to the caller.
type Handler func(arr *codec.EventArray) error

// Stats collects ingest counters.
type Stats interface {
	AddBuffer(bytes int)
	AddDropped()
	LogStats()
}

// noopStats is used when no Stats collector is provided.
type noopStats struct{}

func (noopStats) AddBuffer(int) {}
func (noopStats) AddDropped()   {}
func (noopStats) LogStats()     {}

func orNoop(s Stats) Stats {
	if s == nil {
		return noopStats{}
	}
	return s
}
