// Package infer turns a stream of decoded control frames into discrete,
// human-meaningful events.
//
// The app sends control frames continuously (~10Hz) whether or not the
// sticks move, so the raw stream is a wall of near-identical frames. The
// inferencer collapses it with two filters: a deadband around the neutral
// stick value (rest jitter is not input) and a debounce window (a state must
// persist before it is believed). Both are driven purely by the capture
// timestamps on the frames, never by a real clock, so a session replays
// deterministically.
package infer

import (
	"fmt"

	"github.com/banshee-data/dronetrace/internal/rc"
)

// EventKind tags an entry in the session event log.
type EventKind string

const (
	KindBoot     EventKind = "boot"     // session handshake frame
	KindCommand  EventKind = "command"  // discrete command byte edge
	KindMovement EventKind = "movement" // sustained stick deflection
)

// Event is one inferred event. Movement events span [Start, End]; boot and
// command events are instantaneous (End == Start). Immutable once emitted.
type Event struct {
	Kind  EventKind `json:"kind"`
	Axis  rc.Axis   `json:"axis,omitempty"` // movement events only
	Label string    `json:"label"`

	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// TruncatedAtEOF marks a movement still in progress when the capture
	// ended; End is then the last frame's timestamp, not a release.
	TruncatedAtEOF bool `json:"truncated_at_eof,omitempty"`
}

// Duration returns the event length in seconds; zero for instantaneous events.
func (e Event) Duration() float64 { return e.End - e.Start }

func (e Event) String() string {
	switch e.Kind {
	case KindMovement:
		return fmt.Sprintf("%s [%.3f..%.3f] %.2fs", e.Label, e.Start, e.End, e.Duration())
	default:
		return fmt.Sprintf("%s @%.3f", e.Label, e.Start)
	}
}

// pending is a candidate state transition that has been observed but not
// yet held long enough to believe.
type pending struct {
	active    bool    // candidate target: false = neutral
	direction int     // -1 or +1 when active
	since     float64 // timestamp of the first frame showing the candidate
}

// axisState is the confirmed state of one control axis plus its pending
// candidate. Owned exclusively by the Inferencer.
type axisState struct {
	active    bool
	direction int     // -1 or +1 when active
	openStart float64 // start of the open movement event when active

	candidate *pending
}

// Inferencer maintains one state machine per axis plus edge detectors for
// the command and headless bytes. Frames must arrive in non-decreasing
// timestamp order; ordering is enforced upstream by the session pipeline.
type Inferencer struct {
	cfg rc.Config

	axes [rc.NumAxes]axisState

	lastCommand  byte
	lastHeadless byte
	bootEmitted  bool

	emit func(Event)
}

// New returns an Inferencer that hands each inferred event to emit.
// The config must already be validated.
func New(cfg rc.Config, emit func(Event)) *Inferencer {
	return &Inferencer{cfg: cfg, emit: emit}
}

// ObserveBoot records a boot/handshake candidate. The handshake is sent
// once per session; repeats are ignored rather than logged again. Boot
// frames never touch axis state.
func (inf *Inferencer) ObserveBoot(ts float64) {
	if inf.bootEmitted {
		return
	}
	inf.bootEmitted = true
	inf.emit(Event{Kind: KindBoot, Label: "boot", Start: ts, End: ts})
}

// ObserveFrame advances every axis state machine and the command edge
// detectors with one decoded control frame.
func (inf *Inferencer) ObserveFrame(frame rc.ControlFrame) {
	inf.observeCommand(frame)
	inf.observeHeadless(frame)
	for axis := rc.Axis(0); axis < rc.NumAxes; axis++ {
		inf.observeAxis(axis, frame)
	}
}

// observeAxis runs the deadband/debounce state machine for a single axis.
func (inf *Inferencer) observeAxis(axis rc.Axis, frame rc.ControlFrame) {
	state := &inf.axes[axis]
	ts := frame.Timestamp

	deviation := frame.Deviation(inf.cfg, axis)
	targetActive := abs(deviation) > inf.cfg.Deadband
	targetDirection := 0
	if targetActive {
		targetDirection = sign(deviation)
	}

	if targetActive == state.active && (!targetActive || targetDirection == state.direction) {
		// Frame agrees with the confirmed state; drop any stale candidate.
		state.candidate = nil
		return
	}

	if state.candidate == nil || state.candidate.active != targetActive ||
		(targetActive && state.candidate.direction != targetDirection) {
		// New disagreement: start a fresh candidate, discarding any
		// candidate for a different target.
		state.candidate = &pending{active: targetActive, direction: targetDirection, since: ts}
		return
	}

	if ts-state.candidate.since < inf.cfg.DebounceSeconds {
		// Candidate not yet held long enough.
		return
	}

	// Commit the transition. The new state is considered to have begun when
	// the candidate was first seen, not when it survived debounce.
	transitionAt := state.candidate.since
	if state.active {
		inf.emit(Event{
			Kind:  KindMovement,
			Axis:  axis,
			Label: inf.axisLabel(axis, state.direction),
			Start: state.openStart,
			End:   transitionAt,
		})
	}
	state.active = targetActive
	state.direction = targetDirection
	state.openStart = transitionAt
	state.candidate = nil
}

// observeCommand emits a command event on a rising edge of the command
// byte: the first frame whose byte is non-none and differs from the
// previous frame's byte. A held button produces a run of identical bytes
// and exactly one event.
func (inf *Inferencer) observeCommand(frame rc.ControlFrame) {
	raw := frame.RawCommand
	if raw == inf.lastCommand {
		return
	}
	inf.lastCommand = raw
	if raw == 0x00 {
		return
	}

	label := string(frame.Command)
	if frame.Command == rc.CommandNone {
		// Unmapped byte: keep the raw value visible instead of dropping it.
		label = fmt.Sprintf("cmd_0x%02x", raw)
	}
	inf.emit(Event{Kind: KindCommand, Label: label, Start: frame.Timestamp, End: frame.Timestamp})
}

// observeHeadless edge-detects the headless-mode byte. Common firmwares use
// 0x02 for off and 0x03 for on; anything else non-zero is surfaced raw.
func (inf *Inferencer) observeHeadless(frame rc.ControlFrame) {
	raw := frame.Headless
	if raw == inf.lastHeadless {
		return
	}
	inf.lastHeadless = raw
	if raw == 0x00 {
		return
	}

	var label string
	switch raw {
	case 0x03:
		label = "headless_on"
	case 0x02:
		label = "headless_off"
	default:
		label = fmt.Sprintf("headless_0x%02x", raw)
	}
	inf.emit(Event{Kind: KindCommand, Label: label, Start: frame.Timestamp, End: frame.Timestamp})
}

// Flush closes any still-open movement events at end of stream. An axis
// left active gets its event emitted with End = lastTS and the truncation
// flag set; it is never dropped. The inferencer remains valid but all axis
// state is reset to neutral.
func (inf *Inferencer) Flush(lastTS float64) {
	for axis := range inf.axes {
		state := &inf.axes[axis]
		if state.active {
			inf.emit(Event{
				Kind:           KindMovement,
				Axis:           rc.Axis(axis),
				Label:          inf.axisLabel(rc.Axis(axis), state.direction),
				Start:          state.openStart,
				End:            lastTS,
				TruncatedAtEOF: true,
			})
		}
		*state = axisState{}
	}
}

func (inf *Inferencer) axisLabel(axis rc.Axis, direction int) string {
	if direction > 0 {
		return inf.cfg.AxisLabels[axis].Positive
	}
	return inf.cfg.AxisLabels[axis].Negative
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}
