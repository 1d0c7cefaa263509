// Package session wires the frame classifier, decoder, and event inferencer
// into a single-pass pipeline over a captured packet sequence, and
// accumulates the resulting events into a summary.
package session

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dronetrace/internal/infer"
)

// Summary is a consistent snapshot of a session at any point in processing,
// including after early termination or an ordering abort.
type Summary struct {
	Events []infer.Event  `json:"events"`
	Counts map[string]int `json:"counts"` // per-label event counts

	TotalPackets   int `json:"total_packets"`
	ControlFrames  int `json:"control_frames"`
	BootFrames     int `json:"boot_frames"`
	InvalidFrames  int `json:"invalid_frames"`
	DecodeErrors   int `json:"decode_errors"`
	ChecksumErrors int `json:"checksum_errors"`

	FirstTimestamp float64 `json:"first_timestamp"`
	LastTimestamp  float64 `json:"last_timestamp"`

	Timing TimingStats `json:"timing"`
}

// TimingStats summarises capture cadence and movement durations.
type TimingStats struct {
	MeanFrameGap float64 `json:"mean_frame_gap_secs"`
	P50FrameGap  float64 `json:"p50_frame_gap_secs"`
	P95FrameGap  float64 `json:"p95_frame_gap_secs"`

	MeanMovementSecs float64 `json:"mean_movement_secs"`
	MaxMovementSecs  float64 `json:"max_movement_secs"`
}

// PreferredLabelOrder is the report ordering: commands first, then axis
// directions, then headless toggles. Labels outside this list sort after
// it alphabetically.
var PreferredLabelOrder = []string{
	"takeoff", "land", "emergency_stop", "calibrate_gyro",
	"forward", "back", "left", "right", "up", "down", "yaw_left", "yaw_right",
	"headless_on", "headless_off",
}

// OrderedLabels returns the summary's labels in preferred report order.
func (s *Summary) OrderedLabels() []string {
	labels := make([]string, 0, len(s.Counts))
	seen := make(map[string]bool, len(s.Counts))
	for _, label := range PreferredLabelOrder {
		if _, ok := s.Counts[label]; ok {
			labels = append(labels, label)
			seen[label] = true
		}
	}
	var rest []string
	for label := range s.Counts {
		if !seen[label] {
			rest = append(rest, label)
		}
	}
	sort.Strings(rest)
	return append(labels, rest...)
}

// Aggregator collects emitted events in emission order (chronological by
// construction) and maintains running counts. Append-only; events are never
// mutated after Append.
type Aggregator struct {
	events []infer.Event
	counts map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[string]int)}
}

// Append adds one event to the log and bumps its label count.
func (a *Aggregator) Append(e infer.Event) {
	a.events = append(a.events, e)
	a.counts[e.Label]++
}

// Len reports the number of events appended so far.
func (a *Aggregator) Len() int { return len(a.events) }

// snapshot copies the log and counts into a Summary so later appends cannot
// alias an already-returned summary.
func (a *Aggregator) snapshot(into *Summary) {
	into.Events = make([]infer.Event, len(a.events))
	copy(into.Events, a.events)
	into.Counts = make(map[string]int, len(a.counts))
	for label, n := range a.counts {
		into.Counts[label] = n
	}
}

// computeTiming fills TimingStats from observed inter-frame gaps and the
// aggregated movement events. Gaps are sorted in place for the quantiles.
func computeTiming(gaps []float64, events []infer.Event) TimingStats {
	var ts TimingStats
	if len(gaps) > 0 {
		sort.Float64s(gaps)
		ts.MeanFrameGap = stat.Mean(gaps, nil)
		ts.P50FrameGap = stat.Quantile(0.5, stat.Empirical, gaps, nil)
		ts.P95FrameGap = stat.Quantile(0.95, stat.Empirical, gaps, nil)
	}

	var durations []float64
	for _, e := range events {
		if e.Kind == infer.KindMovement {
			durations = append(durations, e.Duration())
		}
	}
	if len(durations) > 0 {
		ts.MeanMovementSecs = stat.Mean(durations, nil)
		for _, d := range durations {
			if d > ts.MaxMovementSecs {
				ts.MaxMovementSecs = d
			}
		}
	}
	return ts
}
