// Command gen-events writes a synthetic moving-bar event stream to a pcap
// file for replay through evrecon.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/ingest"
	"github.com/banshee-data/evrecon/internal/synth"
)

// maxEventBytes bounds the encoded size of one event in any encoding.
const maxEventBytes = 8

type genOptions struct {
	encoding  string
	width     int
	height    int
	startNs   uint64
	stepNs    uint64
	sweeps    int
	perPacket int
	frameID   string
}

func generate(o genOptions) ([]*codec.EventArray, error) {
	if o.width <= 0 || o.height <= 0 || o.width > 0x7FF || o.height > 0x7FF {
		return nil, fmt.Errorf("sensor size %dx%d out of range", o.width, o.height)
	}
	if o.perPacket <= 0 || o.perPacket*maxEventBytes+128 > ingest.MaxUDPPayload {
		return nil, fmt.Errorf("events per packet must be in 1..%d", (ingest.MaxUDPPayload-128)/maxEventBytes)
	}
	enc, err := codec.NewEncoder(o.encoding)
	if err != nil {
		return nil, err
	}

	events := synth.MovingBar(uint16(o.width), uint16(o.height), o.startNs, o.stepNs, o.sweeps)
	var arrays []*codec.EventArray
	for i, chunk := range synth.Split(events, o.perPacket) {
		// One encoder for the whole stream: stateful encodings continue
		// where the previous packet stopped.
		data, base, err := enc.Encode(chunk, nil)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", i, err)
		}
		arrays = append(arrays, &codec.EventArray{
			Header:   codec.Header{StampNs: int64(chunk[len(chunk)-1].T), FrameID: o.frameID},
			Seq:      uint64(i),
			Width:    uint32(o.width),
			Height:   uint32(o.height),
			Encoding: o.encoding,
			TimeBase: base,
			Events:   data,
		})
	}
	return arrays, nil
}

func main() {
	var o genOptions
	output := flag.String("o", "events.pcap", "output pcap path")
	udpPort := flag.Int("udp-port", 3333, "UDP destination port")
	flag.StringVar(&o.encoding, "encoding", codec.EncodingMono, "event encoding: mono or evt3")
	flag.IntVar(&o.width, "width", 320, "sensor width in pixels")
	flag.IntVar(&o.height, "height", 240, "sensor height in pixels")
	flag.Uint64Var(&o.startNs, "start-ns", 1_000_000_000, "timestamp of the first event")
	flag.Uint64Var(&o.stepNs, "step-ns", 1_000_000, "time for the bar to move one column")
	flag.IntVar(&o.sweeps, "sweeps", 3, "number of passes across the sensor")
	flag.IntVar(&o.perPacket, "per-packet", 4096, "events per UDP packet")
	flag.StringVar(&o.frameID, "frame-id", "cam0", "header frame id")
	flag.Parse()

	arrays, err := generate(o)
	if err != nil {
		log.Fatalf("gen-events: %v", err)
	}
	if err := ingest.WritePCAPFile(*output, *udpPort, arrays); err != nil {
		log.Fatalf("gen-events: %v", err)
	}
	log.Printf("Wrote %d packets (%s) to %s", len(arrays), o.encoding, *output)
}
