// Package config holds the breathline configuration surface: session
// parameters for the sensor link and the validity tuning for the
// pipeline. Values come from defaults, a TOML file, BREATHLINE_*
// environment variables and command-line flags, in that precedence
// order (flags win).
package config

import (
	"fmt"
	"time"

	"github.com/banshee-data/breath.report/internal/gate"
	"github.com/banshee-data/breath.report/internal/sensor"
)

// Config is the full option surface. Every option has a default and is
// independently overridable.
type Config struct {
	// Sensor link. Exactly one of Host, SerialPort or Fixtures must be
	// set; Fixtures replays a recorded NDJSON frame file (dev mode).
	Host       string
	SerialPort string
	Fixtures   string

	// Session parameters forwarded to the estimator.
	RangeStart float64
	RangeEnd   float64
	UpdateRate float64
	DFTLength  int

	// Validity tuning.
	FreqLow       float64
	FreqHigh      float64
	SNRMin        float64
	HoldLastFor   time.Duration
	SmoothWindow  int
	SmoothMethod  string
	ProminenceMin float64
	MaxStepBPM    float64
	MaxRatio      float64

	// Debug enables verbose logging and the debug-only note tokens.
	Debug bool

	// Out is an optional secondary destination appended with the same
	// record stream written to stdout.
	Out string
}

// DefaultConfig returns the defaults for a bedside A111 recording.
func DefaultConfig() Config {
	g := gate.DefaultConfig()
	return Config{
		RangeStart:    0.40,
		RangeEnd:      0.60,
		UpdateRate:    12.0,
		DFTLength:     15,
		FreqLow:       g.FreqLowHz,
		FreqHigh:      g.FreqHighHz,
		SNRMin:        g.SNRMinDB,
		HoldLastFor:   g.HoldLastFor,
		SmoothWindow:  g.SmoothWindow,
		SmoothMethod:  g.SmoothMethod,
		ProminenceMin: g.ProminenceMin,
		MaxStepBPM:    g.MaxStepBPM,
		MaxRatio:      g.MaxRatio,
	}
}

// Validate checks the configuration and the derived gate tuning.
func (c *Config) Validate() error {
	sources := 0
	for _, s := range []string{c.Host, c.SerialPort, c.Fixtures} {
		if s != "" {
			sources++
		}
	}
	if sources == 0 {
		return fmt.Errorf("a frame source is required: set host, serial-port or fixtures")
	}
	if sources > 1 {
		return fmt.Errorf("host, serial-port and fixtures are mutually exclusive")
	}

	if c.RangeStart < 0 || c.RangeEnd <= c.RangeStart {
		return fmt.Errorf("range window [%v, %v] must satisfy 0 <= r0 < r1", c.RangeStart, c.RangeEnd)
	}
	if c.UpdateRate <= 0 {
		return fmt.Errorf("update rate must be positive, got %v", c.UpdateRate)
	}
	if c.DFTLength < 1 {
		return fmt.Errorf("dft length must be at least 1, got %d", c.DFTLength)
	}

	return c.Gate().Validate()
}

// Gate returns the validity tuning slice of the configuration.
func (c *Config) Gate() gate.Config {
	return gate.Config{
		FreqLowHz:     c.FreqLow,
		FreqHighHz:    c.FreqHigh,
		SNRMinDB:      c.SNRMin,
		ProminenceMin: c.ProminenceMin,
		MaxStepBPM:    c.MaxStepBPM,
		MaxRatio:      c.MaxRatio,
		HoldLastFor:   c.HoldLastFor,
		SmoothWindow:  c.SmoothWindow,
		SmoothMethod:  c.SmoothMethod,
	}
}

// Session returns the sensor session slice of the configuration.
func (c *Config) Session() sensor.SessionConfig {
	return sensor.SessionConfig{
		Host:       c.Host,
		RangeStart: c.RangeStart,
		RangeEnd:   c.RangeEnd,
		UpdateRate: c.UpdateRate,
		DFTLength:  c.DFTLength,
	}
}

// configSetter applies file and environment values while respecting flags
// the user set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setFloat(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", flag, value, err)
	}
	*dst = d
	return nil
}
