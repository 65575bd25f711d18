package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly types: durations are
// strings, numbers and booleans are pointers so an absent key is
// distinguishable from a legal zero (r0 = 0.0 is valid).
type FileConfig struct {
	Host       string `toml:"host"`
	SerialPort string `toml:"serial_port"`
	Fixtures   string `toml:"fixtures"`

	RangeStart *float64 `toml:"r0"`
	RangeEnd   *float64 `toml:"r1"`
	UpdateRate *float64 `toml:"rate"`
	DFTLength  *int     `toml:"n_dft"`

	FreqLow       *float64 `toml:"f_low"`
	FreqHigh      *float64 `toml:"f_high"`
	SNRMin        *float64 `toml:"snr_min"`
	HoldLastFor   string   `toml:"hold_last_for"`
	SmoothWindow  *int     `toml:"smooth_window"`
	SmoothMethod  string   `toml:"smooth"`
	ProminenceMin *float64 `toml:"prominence_min"`
	MaxStepBPM    *float64 `toml:"max_step_bpm"`
	MaxRatio      *float64 `toml:"max_ratio"`

	Debug *bool  `toml:"debug"`
	Out   string `toml:"out"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.breathline/config.toml when the home
// directory is accessible, empty otherwise.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".breathline", "config.toml")
	}
	return ""
}

// FileExists reports whether a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ApplyFileConfig overlays file values onto cfg, skipping any option whose
// flag was set explicitly.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", fc.Host, &cfg.Host)
	s.setString("serial-port", fc.SerialPort, &cfg.SerialPort)
	s.setString("fixtures", fc.Fixtures, &cfg.Fixtures)
	s.setString("smooth", fc.SmoothMethod, &cfg.SmoothMethod)
	s.setString("out", fc.Out, &cfg.Out)

	s.setFloat("r0", fc.RangeStart, &cfg.RangeStart)
	s.setFloat("r1", fc.RangeEnd, &cfg.RangeEnd)
	s.setFloat("rate", fc.UpdateRate, &cfg.UpdateRate)
	s.setFloat("f-low", fc.FreqLow, &cfg.FreqLow)
	s.setFloat("f-high", fc.FreqHigh, &cfg.FreqHigh)
	s.setFloat("snr-min", fc.SNRMin, &cfg.SNRMin)
	s.setFloat("prominence-min", fc.ProminenceMin, &cfg.ProminenceMin)
	s.setFloat("max-step-bpm", fc.MaxStepBPM, &cfg.MaxStepBPM)
	s.setFloat("max-ratio", fc.MaxRatio, &cfg.MaxRatio)

	s.setInt("n-dft", fc.DFTLength, &cfg.DFTLength)
	s.setInt("smooth-window", fc.SmoothWindow, &cfg.SmoothWindow)

	s.setBool("debug", fc.Debug, &cfg.Debug)

	return s.setDuration("hold-last-for", fc.HoldLastFor, &cfg.HoldLastFor)
}
