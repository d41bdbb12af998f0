package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/banshee-data/evrecon/internal/monitoring"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng section header block type.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// packetReader is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

func openCapture(r io.Reader) (packetReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReadPCAPFile replays event arrays from a pcap or pcapng file. Only UDP
// packets addressed to udpPort are considered; payloads that do not parse
// as an event array are counted as dropped and skipped. It returns the
// number of arrays passed to handler.
func ReadPCAPFile(ctx context.Context, path string, udpPort int, stats Stats, handler Handler) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	src, err := openCapture(f)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	return readPackets(ctx, src, udpPort, orNoop(stats), handler)
}

func readPackets(ctx context.Context, src packetReader, udpPort int, stats Stats, handler Handler) (int, error) {
	linkType := src.LinkType()
	delivered := 0
	packetCount := 0
	startTime := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return delivered, err
		}

		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("PCAP file reading complete: %d packets, %d event arrays in %v",
				packetCount, delivered, time.Since(startTime))
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("failed to read packet %d: %w", packetCount+1, err)
		}
		packetCount++

		packet := gopacket.NewPacket(data, linkType, gopacket.NoCopy)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort || len(udp.Payload) == 0 {
			continue
		}

		stats.AddBuffer(len(udp.Payload))
		arr, err := codec.UnmarshalEventArray(udp.Payload)
		if err != nil {
			stats.AddDropped()
			monitoring.Logf("PCAP packet %d: dropping undecodable payload: %v", packetCount, err)
			continue
		}
		if err := handler(arr); err != nil {
			return delivered, err
		}
		delivered++
	}
}
