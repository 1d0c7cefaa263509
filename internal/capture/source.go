// Package capture supplies ordered (timestamp, payload) packet sequences
// from already-recorded captures. Radio mechanics — monitor mode, channel
// hopping, the capture itself — happen elsewhere; this package only reads
// the results back.
package capture

import "io"

// Packet is one captured UDP datagram, already filtered to the control
// port. Timestamp is the capture time in seconds. Immutable.
type Packet struct {
	Timestamp float64
	Payload   []byte
}

// Source yields packets in capture order. Next returns io.EOF when the
// sequence is exhausted.
type Source interface {
	Next() (Packet, error)
}

// SliceSource serves packets from memory; used by tests and by the
// synthetic-session generator.
type SliceSource struct {
	packets []Packet
	pos     int
}

// NewSliceSource wraps a packet slice. The slice is not copied; callers
// must not mutate it while the source is in use.
func NewSliceSource(packets []Packet) *SliceSource {
	return &SliceSource{packets: packets}
}

// Next implements Source.
func (s *SliceSource) Next() (Packet, error) {
	if s.pos >= len(s.packets) {
		return Packet{}, io.EOF
	}
	pkt := s.packets[s.pos]
	s.pos++
	return pkt, nil
}
