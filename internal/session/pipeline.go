package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/dronetrace/internal/capture"
	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/monitoring"
	"github.com/banshee-data/dronetrace/internal/rc"
)

// ErrOrderViolation reports a packet timestamp regression. Ordering is a
// hard precondition: every debounce and duration computation assumes
// non-decreasing timestamps, so the pipeline aborts rather than reorder.
var ErrOrderViolation = errors.New("packet timestamp regression")

// Pipeline processes one capture session: classify, decode, infer,
// aggregate. Strictly sequential and single-threaded; the result is a pure
// function of the packet sequence and the config.
type Pipeline struct {
	cfg rc.Config
	inf *infer.Inferencer
	agg *Aggregator

	// MaxPackets stops processing after N packets when > 0. The summary
	// then reflects exactly the packets consumed.
	MaxPackets int

	// ShowFirst logs the first N decoded frames through monitoring.Logf
	// to help line offsets up against an unfamiliar capture.
	ShowFirst int

	totalPackets   int
	controlFrames  int
	bootFrames     int
	invalidFrames  int
	decodeErrors   int
	checksumErrors int

	havePacket   bool
	lastPacketTS float64

	haveFrame bool
	firstTS   float64
	lastTS    float64
	gaps      []float64

	finalized bool
}

// NewPipeline validates the config and builds a ready pipeline. An invalid
// config fails here, before any packet is touched.
func NewPipeline(cfg rc.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, agg: NewAggregator()}
	p.inf = infer.New(cfg, p.agg.Append)
	return p, nil
}

// Process consumes one packet. Invalid frames and decode errors are counted
// and skipped; only an ordering violation returns an error, and after one
// the pipeline accepts no further packets.
func (p *Pipeline) Process(pkt capture.Packet) error {
	if p.finalized {
		return fmt.Errorf("pipeline already finalized")
	}

	if p.havePacket && pkt.Timestamp < p.lastPacketTS {
		p.finalized = true
		return fmt.Errorf("%w: %.6f after %.6f", ErrOrderViolation, pkt.Timestamp, p.lastPacketTS)
	}
	p.havePacket = true
	p.lastPacketTS = pkt.Timestamp

	p.totalPackets++

	class, reason := p.cfg.Classify(pkt.Payload)
	switch class {
	case rc.ClassInvalid:
		p.invalidFrames++
		monitoring.Logf("skipping invalid frame at %.3f: %s (%d bytes)", pkt.Timestamp, reason, len(pkt.Payload))
		return nil

	case rc.ClassBootCandidate:
		p.bootFrames++
		p.observeTimestamp(pkt.Timestamp)
		p.inf.ObserveBoot(pkt.Timestamp)
		return nil

	case rc.ClassControl:
		frame, err := p.cfg.Decode(pkt.Timestamp, pkt.Payload)
		if err != nil {
			// Classification said control but the decoder could not read
			// it: an internal consistency warning, not a fatal error.
			p.decodeErrors++
			monitoring.Logf("decode failure at %.3f: %v", pkt.Timestamp, err)
			return nil
		}
		if frame.ChecksumChecked && !frame.ChecksumValid {
			p.checksumErrors++
		}

		p.controlFrames++
		if p.controlFrames <= p.ShowFirst {
			monitoring.Logf("frame t=%.3f roll=%3d pitch=%3d thr=%3d yaw=%3d cmd=0x%02x headless=0x%02x",
				frame.Timestamp, frame.Channels[rc.AxisRoll], frame.Channels[rc.AxisPitch],
				frame.Channels[rc.AxisThrottle], frame.Channels[rc.AxisYaw], frame.RawCommand, frame.Headless)
		}

		p.observeTimestamp(pkt.Timestamp)
		p.inf.ObserveFrame(frame)
		return nil
	}

	return nil
}

func (p *Pipeline) observeTimestamp(ts float64) {
	if !p.haveFrame {
		p.haveFrame = true
		p.firstTS = ts
	} else {
		p.gaps = append(p.gaps, ts-p.lastTS)
	}
	p.lastTS = ts
}

// Finalize closes any movements still open at end of stream and returns the
// final summary. Safe to call after an ordering abort; the summary then
// covers the packets processed before the violation.
func (p *Pipeline) Finalize() *Summary {
	p.finalized = true
	if p.haveFrame {
		p.inf.Flush(p.lastTS)
	}
	return p.Snapshot()
}

// Snapshot returns a consistent view of the session so far without closing
// open movements.
func (p *Pipeline) Snapshot() *Summary {
	s := &Summary{
		TotalPackets:   p.totalPackets,
		ControlFrames:  p.controlFrames,
		BootFrames:     p.bootFrames,
		InvalidFrames:  p.invalidFrames,
		DecodeErrors:   p.decodeErrors,
		ChecksumErrors: p.checksumErrors,
		FirstTimestamp: p.firstTS,
		LastTimestamp:  p.lastTS,
	}
	p.agg.snapshot(s)
	gaps := make([]float64, len(p.gaps))
	copy(gaps, p.gaps)
	s.Timing = computeTiming(gaps, s.Events)
	return s
}

// Run drains a packet source through the pipeline and finalizes. On an
// ordering violation it returns the partial summary accumulated so far
// together with the error; any source read error is returned with a nil
// summary since the input itself is suspect.
func (p *Pipeline) Run(src capture.Source) (*Summary, error) {
	for {
		if p.MaxPackets > 0 && p.totalPackets >= p.MaxPackets {
			monitoring.Logf("stopping after %d packets (max reached)", p.totalPackets)
			break
		}

		pkt, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packet source: %w", err)
		}

		if err := p.Process(pkt); err != nil {
			return p.Finalize(), err
		}
	}
	return p.Finalize(), nil
}
