package rc

import (
	"errors"
	"fmt"
)

// Classification is the result of inspecting a raw UDP payload.
type Classification int

const (
	ClassControl Classification = iota // full-length control frame
	ClassBootCandidate                 // short framed payload, sent once at session start
	ClassInvalid                       // not a recognizable frame
)

func (c Classification) String() string {
	switch c {
	case ClassControl:
		return "control"
	case ClassBootCandidate:
		return "boot_candidate"
	case ClassInvalid:
		return "invalid"
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// InvalidReason explains why a payload was rejected by Classify.
type InvalidReason string

const (
	ReasonNone      InvalidReason = ""
	ReasonTooShort  InvalidReason = "too_short"
	ReasonBadStart  InvalidReason = "bad_start"
	ReasonBadEnd    InvalidReason = "bad_end"
	ReasonBadLength InvalidReason = "bad_length"
)

// ErrDecodeOutOfBounds reports a configured offset falling outside the
// payload during Decode. It indicates an internal consistency problem
// (classification accepted a frame the decoder cannot read) and is counted
// as a warning, never treated as fatal.
var ErrDecodeOutOfBounds = errors.New("decode offset out of bounds")

// ControlFrame is one decoded control payload. Built per frame and
// discarded once the inferencer has consumed it.
type ControlFrame struct {
	Timestamp float64 // capture timestamp, seconds

	Channels [NumAxes]uint8 // raw channel bytes, indexed by Axis

	Command    Command // mapped command, CommandNone when the byte is unmapped
	RawCommand byte    // raw command byte, kept for diagnostics
	Headless   byte    // raw headless-mode byte

	ChecksumChecked bool // checksum verification was enabled and in bounds
	ChecksumValid   bool // meaningful only when ChecksumChecked
}

// Deviation returns the signed distance of an axis from neutral.
func (f ControlFrame) Deviation(cfg Config, axis Axis) int {
	return int(f.Channels[axis]) - int(cfg.Neutral)
}

// Classify decides whether a payload is a control frame, a boot/handshake
// candidate, or garbage. It never fails: empty and truncated payloads
// classify as invalid with a reason.
//
// A boot candidate is any payload shorter than the control-frame length
// that still carries both markers; the app sends one such frame when a
// session starts.
func (c Config) Classify(payload []byte) (Classification, InvalidReason) {
	if len(payload) < 2 {
		return ClassInvalid, ReasonTooShort
	}
	if payload[0] != c.StartMarker {
		return ClassInvalid, ReasonBadStart
	}
	if payload[len(payload)-1] != c.EndMarker {
		return ClassInvalid, ReasonBadEnd
	}
	switch {
	case len(payload) == c.FrameLength:
		return ClassControl, ReasonNone
	case len(payload) < c.FrameLength:
		return ClassBootCandidate, ReasonNone
	default:
		return ClassInvalid, ReasonBadLength
	}
}

// Decode converts a CONTROL-classified payload into a ControlFrame.
// Offsets are re-checked against the actual payload length even though
// Classify already accepted it; a violation returns ErrDecodeOutOfBounds
// rather than panicking on a config/payload mismatch.
func (c Config) Decode(ts float64, payload []byte) (ControlFrame, error) {
	frame := ControlFrame{Timestamp: ts}

	for axis, off := range c.ChannelOffsets {
		if off < 0 || off >= len(payload) {
			return ControlFrame{}, fmt.Errorf("%w: %s channel at %d, payload %d bytes",
				ErrDecodeOutOfBounds, Axis(axis), off, len(payload))
		}
		frame.Channels[axis] = payload[off]
	}

	if c.CommandOffset < 0 || c.CommandOffset >= len(payload) {
		return ControlFrame{}, fmt.Errorf("%w: command at %d, payload %d bytes",
			ErrDecodeOutOfBounds, c.CommandOffset, len(payload))
	}
	frame.RawCommand = payload[c.CommandOffset]
	if cmd, ok := c.Commands[frame.RawCommand]; ok {
		frame.Command = cmd
	} else {
		// Unrecognized byte: treated as no command, raw value retained.
		frame.Command = CommandNone
	}

	if c.HeadlessOffset < 0 || c.HeadlessOffset >= len(payload) {
		return ControlFrame{}, fmt.Errorf("%w: headless at %d, payload %d bytes",
			ErrDecodeOutOfBounds, c.HeadlessOffset, len(payload))
	}
	frame.Headless = payload[c.HeadlessOffset]

	if c.VerifyChecksum {
		if c.ChecksumOffset < 0 || c.ChecksumOffset >= len(payload) || len(payload) < 8 {
			return ControlFrame{}, fmt.Errorf("%w: checksum at %d, payload %d bytes",
				ErrDecodeOutOfBounds, c.ChecksumOffset, len(payload))
		}
		frame.ChecksumChecked = true
		frame.ChecksumValid = payload[c.ChecksumOffset] == frameChecksum(payload)
	}

	return frame, nil
}

// frameChecksum computes the XOR of bytes 2..7, the checksum most WIFI-UAV
// firmwares write at byte 18. Callers must have bounds-checked the payload.
func frameChecksum(payload []byte) byte {
	var sum byte
	for _, b := range payload[2:8] {
		sum ^= b
	}
	return sum
}
