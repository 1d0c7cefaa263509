package rc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validFrame returns a 20-byte control frame with all channels at the given
// values and everything else zeroed.
func validFrame(roll, pitch, throttle, yaw, cmd byte) []byte {
	payload := make([]byte, DefaultFrameLength)
	payload[0] = DefaultStartMarker
	payload[DefaultFrameLength-1] = DefaultEndMarker
	payload[OffsetRoll] = roll
	payload[OffsetPitch] = pitch
	payload[OffsetThrottle] = throttle
	payload[OffsetYaw] = yaw
	payload[OffsetCommand] = cmd
	return payload
}

func neutralFrame() []byte {
	return validFrame(DefaultNeutral, DefaultNeutral, DefaultNeutral, DefaultNeutral, 0x00)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	tests := []struct {
		name    string
		payload []byte
		class   Classification
		reason  InvalidReason
	}{
		{"control frame", neutralFrame(), ClassControl, ReasonNone},
		{"boot candidate", []byte{0x66, 0x12, 0x34, 0x99}, ClassBootCandidate, ReasonNone},
		{"two byte boot", []byte{0x66, 0x99}, ClassBootCandidate, ReasonNone},
		{"empty", nil, ClassInvalid, ReasonTooShort},
		{"single byte", []byte{0x66}, ClassInvalid, ReasonTooShort},
		{"bad start", append([]byte{0x00}, neutralFrame()[1:]...), ClassInvalid, ReasonBadStart},
		{"bad end", append(neutralFrame()[:19], 0x00), ClassInvalid, ReasonBadEnd},
		{"too long", append([]byte{0x66}, append(make([]byte, 25), 0x99)...), ClassInvalid, ReasonBadLength},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			class, reason := cfg.Classify(tt.payload)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestClassifyNeverPanicsOnGarbage(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	for size := 0; size < 64; size++ {
		payload := make([]byte, size)
		class, _ := cfg.Classify(payload)
		// All-zero payloads are never valid frames.
		assert.Equal(t, ClassInvalid, class, "size %d", size)
	}
}

func TestDecodeChannels(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	frame, err := cfg.Decode(1.5, validFrame(0xA0, 0x60, 0x80, 0xFF, 0x00))
	require.NoError(t, err)

	assert.Equal(t, 1.5, frame.Timestamp)
	assert.Equal(t, uint8(0xA0), frame.Channels[AxisRoll])
	assert.Equal(t, uint8(0x60), frame.Channels[AxisPitch])
	assert.Equal(t, uint8(0x80), frame.Channels[AxisThrottle])
	assert.Equal(t, uint8(0xFF), frame.Channels[AxisYaw])

	assert.Equal(t, 32, frame.Deviation(cfg, AxisRoll))
	assert.Equal(t, -32, frame.Deviation(cfg, AxisPitch))
	assert.Equal(t, 0, frame.Deviation(cfg, AxisThrottle))
	assert.Equal(t, 127, frame.Deviation(cfg, AxisYaw))
}

func TestDecodeCommandMapping(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	t.Run("known command", func(t *testing.T) {
		t.Parallel()
		frame, err := cfg.Decode(0, validFrame(0x80, 0x80, 0x80, 0x80, 0x01))
		require.NoError(t, err)
		assert.Equal(t, CommandTakeoff, frame.Command)
		assert.Equal(t, byte(0x01), frame.RawCommand)
	})

	t.Run("unknown command maps to none but keeps the raw byte", func(t *testing.T) {
		t.Parallel()
		frame, err := cfg.Decode(0, validFrame(0x80, 0x80, 0x80, 0x80, 0x7F))
		require.NoError(t, err)
		assert.Equal(t, CommandNone, frame.Command)
		assert.Equal(t, byte(0x7F), frame.RawCommand)
	})
}

func TestDecodeOutOfBounds(t *testing.T) {
	t.Parallel()

	// A config whose offsets point past the payload it is handed. This can
	// only happen when config and capture disagree; decode must fail with
	// the sentinel, not panic.
	cfg := DefaultConfig()
	cfg.FrameLength = 30
	cfg.ChannelOffsets = [NumAxes]int{25, 26, 27, 28}
	require.NoError(t, cfg.Validate())

	short := make([]byte, 20)
	short[0] = cfg.StartMarker
	short[19] = cfg.EndMarker

	_, err := cfg.Decode(0, short)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecodeOutOfBounds))
}

func TestDecodeChecksum(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.VerifyChecksum = true

	payload := validFrame(0xA0, 0x80, 0x80, 0x80, 0x01)
	var sum byte
	for _, b := range payload[2:8] {
		sum ^= b
	}

	t.Run("valid checksum", func(t *testing.T) {
		good := append([]byte(nil), payload...)
		good[OffsetChecksum] = sum
		frame, err := cfg.Decode(0, good)
		require.NoError(t, err)
		assert.True(t, frame.ChecksumChecked)
		assert.True(t, frame.ChecksumValid)
	})

	t.Run("corrupt checksum", func(t *testing.T) {
		bad := append([]byte(nil), payload...)
		bad[OffsetChecksum] = sum ^ 0xFF
		frame, err := cfg.Decode(0, bad)
		require.NoError(t, err)
		assert.True(t, frame.ChecksumChecked)
		assert.False(t, frame.ChecksumValid)
	})

	t.Run("disabled by default", func(t *testing.T) {
		frame, err := DefaultConfig().Decode(0, payload)
		require.NoError(t, err)
		assert.False(t, frame.ChecksumChecked)
	})
}
