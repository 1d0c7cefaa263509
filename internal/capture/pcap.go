package capture

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/dronetrace/internal/monitoring"
)

// PCAPSource reads UDP payloads for one port out of a classic pcap file.
// The pure-Go pcapgo reader is used so captures can be decoded anywhere,
// with no libpcap at build or run time. Capture with tshark and save as
// .pcap (not .pcapng).
type PCAPSource struct {
	file   *os.File
	reader *pcapgo.Reader
	port   layers.UDPPort

	read    int // total records consumed from the file
	skipped int // records dropped (non-UDP, wrong port, empty payload)
}

// OpenPCAP opens a pcap file and filters it to UDP datagrams that have the
// given port as source or destination.
func OpenPCAP(path string, port int) (*PCAPSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header from %s: %w", path, err)
	}

	return &PCAPSource{file: f, reader: r, port: layers.UDPPort(port)}, nil
}

// Next returns the next matching UDP payload, or io.EOF at end of file.
func (s *PCAPSource) Next() (Packet, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if err == io.EOF {
			return Packet{}, io.EOF
		}
		if err != nil {
			return Packet{}, fmt.Errorf("pcap read after %d records: %w", s.read, err)
		}
		s.read++

		packet := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.Default)

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			s.skipped++
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			s.skipped++
			continue
		}
		if udp.DstPort != s.port && udp.SrcPort != s.port {
			s.skipped++
			continue
		}
		if len(udp.Payload) == 0 {
			s.skipped++
			continue
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)

		return Packet{
			Timestamp: float64(ci.Timestamp.UnixNano()) / 1e9,
			Payload:   payload,
		}, nil
	}
}

// Stats reports how many pcap records were consumed and how many were
// dropped by the UDP/port filter.
func (s *PCAPSource) Stats() (read, skipped int) {
	return s.read, s.skipped
}

// Close releases the underlying file.
func (s *PCAPSource) Close() error {
	if s.read > 0 || s.skipped > 0 {
		monitoring.Logf("pcap source: %d records read, %d filtered out", s.read, s.skipped)
	}
	return s.file.Close()
}
