package ingest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/banshee-data/evrecon/internal/codec"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// MaxUDPPayload is the largest event array that fits one IPv4 datagram.
const MaxUDPPayload = 65507

const (
	snapLen    = 262144
	sourcePort = 40000
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IPv4(192, 168, 1, 10)
	dstIP  = net.IPv4(192, 168, 1, 20)
)

// WritePCAPFile writes each array as one Ethernet/IPv4/UDP packet to
// udpPort. Capture timestamps come from the array header stamps.
func WritePCAPFile(path string, udpPort int, arrays []*codec.EventArray) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create PCAP file: %w", err)
	}
	if err := WritePCAP(f, udpPort, arrays); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePCAP is WritePCAPFile for an arbitrary writer.
func WritePCAP(w io.Writer, udpPort int, arrays []*codec.EventArray) error {
	bw := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(bw)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write PCAP header: %w", err)
	}
	for i, arr := range arrays {
		payload := codec.MarshalEventArray(arr)
		frame, err := udpFrame(payload, sourcePort, udpPort)
		if err != nil {
			return fmt.Errorf("array %d: %w", i, err)
		}
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(0, arr.Header.StampNs),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pw.WritePacket(ci, frame); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// udpFrame serializes payload into an Ethernet frame.
func udpFrame(payload []byte, srcPort, dstPort int) ([]byte, error) {
	if len(payload) > MaxUDPPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds UDP limit %d", len(payload), MaxUDPPayload)
	}
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialize packet: %w", err)
	}
	return buf.Bytes(), nil
}
