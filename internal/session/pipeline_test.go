package session

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dronetrace/internal/capture"
	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/monitoring"
	"github.com/banshee-data/dronetrace/internal/rc"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func testConfig() rc.Config {
	cfg := rc.DefaultConfig()
	cfg.Deadband = 10
	cfg.DebounceSeconds = 0.3
	return cfg
}

// controlPayload builds a 20-byte frame with the four channel bytes and
// command byte set.
func controlPayload(roll, pitch, throttle, yaw, cmd byte) []byte {
	payload := make([]byte, rc.DefaultFrameLength)
	payload[0] = rc.DefaultStartMarker
	payload[rc.DefaultFrameLength-1] = rc.DefaultEndMarker
	payload[rc.OffsetRoll] = roll
	payload[rc.OffsetPitch] = pitch
	payload[rc.OffsetThrottle] = throttle
	payload[rc.OffsetYaw] = yaw
	payload[rc.OffsetCommand] = cmd
	return payload
}

func neutralPayload() []byte {
	return controlPayload(0x80, 0x80, 0x80, 0x80, 0x00)
}

// rollSession is the reference capture: 10Hz, neutral for a second, roll
// pushed to 0xA0 for a second, neutral for a second.
func rollSession() []capture.Packet {
	var packets []capture.Packet
	for i := 0; i < 30; i++ {
		payload := neutralPayload()
		if i >= 10 && i < 20 {
			payload = controlPayload(0xA0, 0x80, 0x80, 0x80, 0x00)
		}
		packets = append(packets, capture.Packet{Timestamp: float64(i) / 10, Payload: payload})
	}
	return packets
}

func TestPipelineRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Deadband = 200

	_, err := NewPipeline(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rc.ErrConfig))
}

func TestPipelineEndToEnd(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(rollSession()))
	require.NoError(t, err)

	assert.Equal(t, 30, sum.TotalPackets)
	assert.Equal(t, 30, sum.ControlFrames)
	assert.Equal(t, 0, sum.InvalidFrames)
	assert.Equal(t, 1, sum.Counts["right"])

	require.Len(t, sum.Events, 1)
	e := sum.Events[0]
	assert.Equal(t, infer.KindMovement, e.Kind)
	assert.InDelta(t, 1.0, e.Start, 1e-9)
	assert.InDelta(t, 2.0, e.End, 1e-9)
}

func TestInvalidFramesAreCountedAndSkipped(t *testing.T) {
	t.Parallel()

	packets := rollSession()
	packets = append(packets,
		capture.Packet{Timestamp: 3.0, Payload: []byte{0x01, 0x02}}, // bad start
		capture.Packet{Timestamp: 3.1, Payload: nil},                // empty
		capture.Packet{Timestamp: 3.2, Payload: make([]byte, 40)},   // wrong everything
		capture.Packet{Timestamp: 3.3, Payload: neutralPayload()},   // still fine
	)

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(packets))
	require.NoError(t, err)

	assert.Equal(t, 34, sum.TotalPackets)
	assert.Equal(t, 31, sum.ControlFrames)
	assert.Equal(t, 3, sum.InvalidFrames)
	// The garbage in the middle must not have invented movement events.
	assert.Len(t, sum.Events, 1)
}

func TestBootFrameAmidControlTraffic(t *testing.T) {
	t.Parallel()

	// A single short framed payload amid 20-byte control frames: exactly
	// one boot event and zero axis perturbation.
	packets := []capture.Packet{
		{Timestamp: 0.0, Payload: []byte{0x66, 0x12, 0x34, 0x99}},
	}
	for i := 1; i < 10; i++ {
		packets = append(packets, capture.Packet{Timestamp: float64(i) / 10, Payload: neutralPayload()})
	}

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(packets))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.BootFrames)
	require.Len(t, sum.Events, 1)
	assert.Equal(t, infer.KindBoot, sum.Events[0].Kind)
}

func TestOrderViolationAbortsWithPartialSummary(t *testing.T) {
	t.Parallel()

	packets := []capture.Packet{
		{Timestamp: 0.0, Payload: neutralPayload()},
		{Timestamp: 0.1, Payload: neutralPayload()},
		{Timestamp: 0.099, Payload: neutralPayload()}, // regression
		{Timestamp: 0.3, Payload: neutralPayload()},   // never reached
	}

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(packets))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderViolation))

	// The summary reflects exactly the packets before the violation.
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.TotalPackets)

	// The pipeline refuses further input after the abort.
	err = p.Process(capture.Packet{Timestamp: 0.4, Payload: neutralPayload()})
	require.Error(t, err)
}

func TestEqualTimestampsAreAllowed(t *testing.T) {
	t.Parallel()

	packets := []capture.Packet{
		{Timestamp: 0.0, Payload: neutralPayload()},
		{Timestamp: 0.0, Payload: neutralPayload()},
		{Timestamp: 0.1, Payload: neutralPayload()},
	}

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(packets))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalPackets)
}

func TestMaxPacketsStopsEarly(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)
	p.MaxPackets = 15

	sum, err := p.Run(capture.NewSliceSource(rollSession()))
	require.NoError(t, err)

	assert.Equal(t, 15, sum.TotalPackets)
	assert.Equal(t, 15, sum.ControlFrames)

	// The roll push was still open at the cutoff: it must be closed at the
	// last consumed frame, flagged truncated, not dropped.
	require.Len(t, sum.Events, 1)
	e := sum.Events[0]
	assert.True(t, e.TruncatedAtEOF)
	assert.InDelta(t, 1.4, e.End, 1e-9)
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()

	run := func() *Summary {
		p, err := NewPipeline(testConfig())
		require.NoError(t, err)
		sum, err := p.Run(capture.NewSliceSource(rollSession()))
		require.NoError(t, err)
		return sum
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("replay of identical input diverged (-first +second):\n%s", diff)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	for _, pkt := range rollSession()[:15] {
		require.NoError(t, p.Process(pkt))
	}
	mid := p.Snapshot()
	midEvents := len(mid.Events)

	for _, pkt := range rollSession()[15:] {
		require.NoError(t, p.Process(pkt))
	}
	final := p.Finalize()

	assert.Len(t, mid.Events, midEvents, "earlier snapshot must not grow")
	assert.GreaterOrEqual(t, len(final.Events), midEvents)
	assert.Equal(t, 30, final.TotalPackets)
}

func TestOrderedLabels(t *testing.T) {
	t.Parallel()

	sum := &Summary{Counts: map[string]int{
		"zz_custom": 1,
		"forward":   2,
		"takeoff":   1,
		"left":      3,
	}}

	assert.Equal(t, []string{"takeoff", "forward", "left", "zz_custom"}, sum.OrderedLabels())
}

func TestTimingStats(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(testConfig())
	require.NoError(t, err)

	sum, err := p.Run(capture.NewSliceSource(rollSession()))
	require.NoError(t, err)

	assert.InDelta(t, 0.1, sum.Timing.MeanFrameGap, 1e-6)
	assert.InDelta(t, 0.1, sum.Timing.P50FrameGap, 1e-6)
	assert.InDelta(t, 1.0, sum.Timing.MaxMovementSecs, 1e-6)
}
