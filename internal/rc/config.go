// Package rc decodes toy-drone remote-control UDP frames.
//
// The on-air format is not a documented protocol: marker bytes, frame
// length, and the axis-to-byte mapping are observed empirically per drone
// model. Everything format-specific therefore lives in Config and is
// validated once at construction rather than discovered during decoding.
package rc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// WIFI-UAV style control frame constants. These match the most common
// 20-byte frame layout seen in captures; all of them are overridable
// through Config.
const (
	DefaultTargetPort  = 8800 // UDP port the app sends control frames to
	DefaultStartMarker = 0x66 // first byte of every frame
	DefaultEndMarker   = 0x99 // last byte of every frame
	DefaultFrameLength = 20   // control frames are fixed-size
	DefaultNeutral     = 0x80 // stick centre value for all four channels

	// How far a channel byte must deviate from neutral before it counts
	// as stick input. Sticks are noisy; captures show +/-3 of jitter at rest.
	DefaultDeadband = 12

	// Minimum time a candidate state must persist before it is accepted
	// as a real transition.
	DefaultDebounceSeconds = 0.6
)

// Default byte offsets within a 20-byte control frame.
const (
	OffsetRoll     = 2
	OffsetPitch    = 3
	OffsetThrottle = 4
	OffsetYaw      = 5
	OffsetCommand  = 6
	OffsetHeadless = 7
	OffsetChecksum = 18 // XOR of bytes 2..7 on most firmwares; not enforced by default
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("invalid rc config")

// Axis identifies one of the four analog control channels.
type Axis int

const (
	AxisRoll Axis = iota
	AxisPitch
	AxisThrottle
	AxisYaw

	NumAxes = 4
)

func (a Axis) String() string {
	switch a {
	case AxisRoll:
		return "roll"
	case AxisPitch:
		return "pitch"
	case AxisThrottle:
		return "throttle"
	case AxisYaw:
		return "yaw"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Command is a discrete action encoded in the command byte.
type Command string

const (
	CommandNone          Command = "none"
	CommandTakeoff       Command = "takeoff"
	CommandEmergencyStop Command = "emergency_stop"
	CommandLand          Command = "land"
	CommandCalibrateGyro Command = "calibrate_gyro"
)

// LabelPair names the two directions of an axis. Which sign maps to which
// label varies between drone models, so inversions are a config fix.
type LabelPair struct {
	Positive string `json:"positive"`
	Negative string `json:"negative"`
}

// Config describes the control-frame format and the event-inference tuning
// for one capture session. Immutable after Validate; the zero value is not
// usable, start from DefaultConfig.
type Config struct {
	TargetPort  int  `json:"target_port"`
	StartMarker byte `json:"start_marker"`
	EndMarker   byte `json:"end_marker"`
	FrameLength int  `json:"frame_length"`

	ChannelOffsets [NumAxes]int `json:"channel_offsets"` // roll, pitch, throttle, yaw
	CommandOffset  int          `json:"command_offset"`
	HeadlessOffset int          `json:"headless_offset"`
	ChecksumOffset int          `json:"checksum_offset"`
	VerifyChecksum bool         `json:"verify_checksum"`

	Neutral         byte    `json:"neutral"`
	Deadband        int     `json:"deadband"`
	DebounceSeconds float64 `json:"debounce_seconds"`

	AxisLabels [NumAxes]LabelPair `json:"axis_labels"`
	Commands   map[byte]Command   `json:"-"`
}

// DefaultConfig returns the WIFI-UAV defaults observed in real captures:
// 20-byte frames framed by 0x66/0x99, channels at bytes 2..5, command at 6,
// headless mode at 7.
func DefaultConfig() Config {
	return Config{
		TargetPort:     DefaultTargetPort,
		StartMarker:    DefaultStartMarker,
		EndMarker:      DefaultEndMarker,
		FrameLength:    DefaultFrameLength,
		ChannelOffsets: [NumAxes]int{OffsetRoll, OffsetPitch, OffsetThrottle, OffsetYaw},
		CommandOffset:  OffsetCommand,
		HeadlessOffset: OffsetHeadless,
		ChecksumOffset: OffsetChecksum,

		Neutral:         DefaultNeutral,
		Deadband:        DefaultDeadband,
		DebounceSeconds: DefaultDebounceSeconds,

		// NOTE: many drones map pitch+ as forward and roll+ as right;
		// some are inverted. Override AxisLabels if events come out mirrored.
		AxisLabels: [NumAxes]LabelPair{
			AxisRoll:     {Positive: "right", Negative: "left"},
			AxisPitch:    {Positive: "forward", Negative: "back"},
			AxisThrottle: {Positive: "up", Negative: "down"},
			AxisYaw:      {Positive: "yaw_right", Negative: "yaw_left"},
		},
		Commands: map[byte]Command{
			0x00: CommandNone,
			0x01: CommandTakeoff,
			0x02: CommandEmergencyStop,
			0x03: CommandLand,
			0x04: CommandCalibrateGyro,
		},
	}
}

// Validate checks the configuration once, before any packet is processed.
// All failures wrap ErrConfig.
func (c Config) Validate() error {
	if c.TargetPort <= 0 || c.TargetPort > 65535 {
		return fmt.Errorf("%w: target port %d out of range", ErrConfig, c.TargetPort)
	}
	if c.StartMarker == c.EndMarker {
		return fmt.Errorf("%w: start and end markers are both 0x%02x", ErrConfig, c.StartMarker)
	}
	// A frame needs at least the two markers plus the four channel bytes.
	if c.FrameLength < 6 {
		return fmt.Errorf("%w: frame length %d too small", ErrConfig, c.FrameLength)
	}
	for axis, off := range c.ChannelOffsets {
		if off < 1 || off >= c.FrameLength-1 {
			return fmt.Errorf("%w: %s channel offset %d outside frame interior (length %d)",
				ErrConfig, Axis(axis), off, c.FrameLength)
		}
	}
	if c.CommandOffset < 1 || c.CommandOffset >= c.FrameLength-1 {
		return fmt.Errorf("%w: command offset %d outside frame interior (length %d)",
			ErrConfig, c.CommandOffset, c.FrameLength)
	}
	if c.HeadlessOffset < 1 || c.HeadlessOffset >= c.FrameLength-1 {
		return fmt.Errorf("%w: headless offset %d outside frame interior (length %d)",
			ErrConfig, c.HeadlessOffset, c.FrameLength)
	}
	if c.VerifyChecksum && (c.ChecksumOffset < 1 || c.ChecksumOffset >= c.FrameLength-1) {
		return fmt.Errorf("%w: checksum offset %d outside frame interior (length %d)",
			ErrConfig, c.ChecksumOffset, c.FrameLength)
	}
	// Deadband must leave room for detectable deviation on both sides of
	// neutral; a byte can never deviate by 128 or more in both directions.
	if c.Deadband < 0 || c.Deadband >= 128 {
		return fmt.Errorf("%w: deadband %d out of range [0,128)", ErrConfig, c.Deadband)
	}
	if c.DebounceSeconds < 0 {
		return fmt.Errorf("%w: negative debounce %.3fs", ErrConfig, c.DebounceSeconds)
	}
	for axis, labels := range c.AxisLabels {
		if labels.Positive == "" || labels.Negative == "" {
			return fmt.Errorf("%w: %s axis labels incomplete", ErrConfig, Axis(axis))
		}
		if labels.Positive == labels.Negative {
			return fmt.Errorf("%w: %s axis labels identical (%q)", ErrConfig, Axis(axis), labels.Positive)
		}
	}
	if len(c.Commands) == 0 {
		return fmt.Errorf("%w: empty command table", ErrConfig)
	}
	return nil
}

// fileOverrides mirrors Config with pointer fields so a JSON file can
// override any subset of DefaultConfig. Fields omitted from the file keep
// their defaults.
type fileOverrides struct {
	TargetPort      *int     `json:"target_port,omitempty"`
	StartMarker     *byte    `json:"start_marker,omitempty"`
	EndMarker       *byte    `json:"end_marker,omitempty"`
	FrameLength     *int     `json:"frame_length,omitempty"`
	ChannelOffsets  *[4]int  `json:"channel_offsets,omitempty"`
	CommandOffset   *int     `json:"command_offset,omitempty"`
	HeadlessOffset  *int     `json:"headless_offset,omitempty"`
	ChecksumOffset  *int     `json:"checksum_offset,omitempty"`
	VerifyChecksum  *bool    `json:"verify_checksum,omitempty"`
	Neutral         *byte    `json:"neutral,omitempty"`
	Deadband        *int     `json:"deadband,omitempty"`
	DebounceSeconds *float64 `json:"debounce_seconds,omitempty"`

	AxisLabels *[4]LabelPair      `json:"axis_labels,omitempty"`
	Commands   map[string]Command `json:"commands,omitempty"` // hex byte string -> command
}

// LoadConfigFile reads a partial JSON config and applies it on top of
// DefaultConfig. The merged result is validated before being returned.
func LoadConfigFile(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("%w: config file must have .json extension, got %q", ErrConfig, ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var o fileOverrides
	if err := json.Unmarshal(data, &o); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse config JSON: %v", ErrConfig, err)
	}

	cfg := DefaultConfig()
	if o.TargetPort != nil {
		cfg.TargetPort = *o.TargetPort
	}
	if o.StartMarker != nil {
		cfg.StartMarker = *o.StartMarker
	}
	if o.EndMarker != nil {
		cfg.EndMarker = *o.EndMarker
	}
	if o.FrameLength != nil {
		cfg.FrameLength = *o.FrameLength
	}
	if o.ChannelOffsets != nil {
		cfg.ChannelOffsets = *o.ChannelOffsets
	}
	if o.CommandOffset != nil {
		cfg.CommandOffset = *o.CommandOffset
	}
	if o.HeadlessOffset != nil {
		cfg.HeadlessOffset = *o.HeadlessOffset
	}
	if o.ChecksumOffset != nil {
		cfg.ChecksumOffset = *o.ChecksumOffset
	}
	if o.VerifyChecksum != nil {
		cfg.VerifyChecksum = *o.VerifyChecksum
	}
	if o.Neutral != nil {
		cfg.Neutral = *o.Neutral
	}
	if o.Deadband != nil {
		cfg.Deadband = *o.Deadband
	}
	if o.DebounceSeconds != nil {
		cfg.DebounceSeconds = *o.DebounceSeconds
	}
	if o.AxisLabels != nil {
		cfg.AxisLabels = *o.AxisLabels
	}
	if len(o.Commands) > 0 {
		table := make(map[byte]Command, len(o.Commands))
		for key, cmd := range o.Commands {
			var b byte
			if _, err := fmt.Sscanf(key, "0x%02x", &b); err != nil {
				return Config{}, fmt.Errorf("%w: command table key %q is not a hex byte", ErrConfig, key)
			}
			table[b] = cmd
		}
		cfg.Commands = table
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
