// Package config loads and validates the controller profile consumed by the
// signal pipeline. Profiles are JSON files produced by the setup wizard; the
// pipeline never edits them and never clamps out-of-range values — a bad
// profile fails fast with a ConfigError.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Mode selects which sample producer the controller runs with.
type Mode string

const (
	// ModeHardware reads samples from the acquisition board over serial.
	ModeHardware Mode = "hardware"
	// ModeSynthetic generates deterministic samples in-process.
	ModeSynthetic Mode = "synthetic"
)

// Required motor/attention channel names. The channel map must define an
// index for each of these.
var RequiredChannels = []string{"C3", "C4", "Cz", "Oz"}

// Required axis gain names.
var RequiredGains = []string{"yaw", "altitude", "pitch", "throttle"}

// Config is the validated controller profile. The schema matches the profile
// JSON written by the setup wizard so the same file drives both the
// controller and its sibling tools.
type Config struct {
	Mode Mode `json:"mode"`

	// Acquisition
	SampleRate float64        `json:"sample_rate"` // Hz
	SerialPort string         `json:"serial_port,omitempty"`
	Channels   map[string]int `json:"channels"` // name -> board channel index

	// Filtering
	BandpassLow  float64 `json:"bandpass_low"`  // Hz
	BandpassHigh float64 `json:"bandpass_high"` // Hz
	Notch        float64 `json:"notch"`         // Hz, mains frequency

	// Windowing
	WindowSec float64 `json:"window_sec"`
	HopSec    float64 `json:"hop_sec"`

	// Mapping
	EwmaAlpha float64            `json:"ewma_alpha"`
	DeadBand  float64            `json:"dead_band"`
	Gains     map[string]float64 `json:"gains"` // axis name -> gain

	// Calibration
	CalibrationSec   float64 `json:"calibration_sec"`
	PolarityFallback float64 `json:"polarity_fallback,omitempty"` // default +1
	CapturePolarity  bool    `json:"capture_polarity,omitempty"`

	// Attention scoring. When SSVEPHz is non-zero the throttle score uses
	// power at the stimulation frequency instead of alpha suppression.
	SSVEPHz float64 `json:"ssvep_hz,omitempty"`

	// Transport
	UDPHost string `json:"udp_host"`
	UDPPort int    `json:"udp_port"`

	// Optional session persistence (sqlite). Empty disables recording.
	StorePath string `json:"store_path,omitempty"`

	// Optional MQTT telemetry mirror. Empty broker disables it.
	MQTTBroker string `json:"mqtt_broker,omitempty"`
	MQTTTopic  string `json:"mqtt_topic,omitempty"`

	// Timing drift tolerance as a fraction of the nominal sample interval.
	// Zero selects the default.
	RateTolerance float64 `json:"rate_tolerance,omitempty"`
}

// ConfigError reports an invalid or missing profile field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: field %q %s", e.Field, e.Reason)
}

func errf(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Load reads and validates a profile JSON file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("profile must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse profile JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every pipeline invariant. It returns the first violation
// as a ConfigError and never adjusts values.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeHardware, ModeSynthetic:
	case "":
		return errf("mode", "is required (hardware or synthetic)")
	default:
		return errf("mode", "has unknown value %q", c.Mode)
	}

	if c.Mode == ModeHardware && c.SerialPort == "" {
		return errf("serial_port", "is required in hardware mode")
	}

	if !(c.SampleRate > 0) || math.IsInf(c.SampleRate, 0) {
		return errf("sample_rate", "must be a positive finite frequency, got %v", c.SampleRate)
	}

	nyquist := c.SampleRate / 2
	if !(c.BandpassLow > 0) || !(c.BandpassHigh > c.BandpassLow) || c.BandpassHigh >= nyquist {
		return errf("bandpass", "requires 0 < low < high < nyquist (%g Hz), got [%g, %g]",
			nyquist, c.BandpassLow, c.BandpassHigh)
	}
	if !(c.Notch > 0) || c.Notch >= nyquist {
		return errf("notch", "must be within (0, nyquist), got %v", c.Notch)
	}

	if !(c.WindowSec > 0) {
		return errf("window_sec", "must be positive, got %v", c.WindowSec)
	}
	if !(c.HopSec > 0) || c.HopSec > c.WindowSec {
		return errf("hop_sec", "requires 0 < hop_sec <= window_sec, got hop=%v window=%v",
			c.HopSec, c.WindowSec)
	}

	if c.EwmaAlpha < 0 || c.EwmaAlpha > 1 || math.IsNaN(c.EwmaAlpha) {
		return errf("ewma_alpha", "must be within [0, 1], got %v", c.EwmaAlpha)
	}
	if c.DeadBand < 0 || math.IsNaN(c.DeadBand) {
		return errf("dead_band", "must be non-negative, got %v", c.DeadBand)
	}

	if c.Gains == nil {
		return errf("gains", "is required")
	}
	for _, name := range RequiredGains {
		g, ok := c.Gains[name]
		if !ok {
			return errf("gains", "is missing axis %q", name)
		}
		if g < 0 || math.IsNaN(g) || math.IsInf(g, 0) {
			return errf("gains", "axis %q must be finite and non-negative, got %v", name, g)
		}
	}

	if c.Channels == nil {
		return errf("channels", "is required")
	}
	seen := make(map[int]string, len(c.Channels))
	for _, name := range RequiredChannels {
		idx, ok := c.Channels[name]
		if !ok {
			return errf("channels", "is missing channel %q", name)
		}
		if idx < 0 {
			return errf("channels", "channel %q index must be non-negative, got %d", name, idx)
		}
		if prev, dup := seen[idx]; dup {
			return errf("channels", "channels %q and %q share index %d", prev, name, idx)
		}
		seen[idx] = name
	}

	if c.CalibrationSec < 0 {
		return errf("calibration_sec", "must be non-negative, got %v", c.CalibrationSec)
	}

	if c.SSVEPHz < 0 || c.SSVEPHz >= nyquist {
		return errf("ssvep_hz", "must be within [0, nyquist), got %v", c.SSVEPHz)
	}

	if c.UDPHost == "" {
		return errf("udp_host", "is required")
	}
	if c.UDPPort <= 0 || c.UDPPort > 65535 {
		return errf("udp_port", "must be within (0, 65535], got %d", c.UDPPort)
	}

	if c.RateTolerance < 0 {
		return errf("rate_tolerance", "must be non-negative, got %v", c.RateTolerance)
	}

	return nil
}

// WindowSamples returns the analysis window length in samples.
func (c *Config) WindowSamples() int {
	return int(math.Round(c.WindowSec * c.SampleRate))
}

// HopSamples returns the hop interval in samples.
func (c *Config) HopSamples() int {
	return int(math.Round(c.HopSec * c.SampleRate))
}

// ChannelCount returns the number of board channels the pipeline must read:
// one past the highest mapped index.
func (c *Config) ChannelCount() int {
	max := 0
	for _, idx := range c.Channels {
		if idx > max {
			max = idx
		}
	}
	return max + 1
}

// GetPolarityFallback returns the configured fallback sign, defaulting to +1.
func (c *Config) GetPolarityFallback() float64 {
	if c.PolarityFallback < 0 {
		return -1
	}
	return 1
}

// GetRateTolerance returns the timing drift tolerance fraction or the default.
func (c *Config) GetRateTolerance() float64 {
	if c.RateTolerance == 0 {
		return 0.25
	}
	return c.RateTolerance
}

// GetMQTTTopic returns the telemetry topic or the default.
func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == "" {
		return "flystick/axes"
	}
	return c.MQTTTopic
}
