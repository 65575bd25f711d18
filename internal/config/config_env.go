package config

import (
	"os"
	"strconv"
	"time"
)

// envPrefix namespaces breathline environment variables.
const envPrefix = "BREATHLINE_"

// ApplyEnvConfig overlays BREATHLINE_* environment variables onto cfg.
// Environment values override the file but are overridden by flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("host", os.Getenv(envPrefix+"HOST"), &cfg.Host)
	s.setString("serial-port", os.Getenv(envPrefix+"SERIAL_PORT"), &cfg.SerialPort)
	s.setString("fixtures", os.Getenv(envPrefix+"FIXTURES"), &cfg.Fixtures)
	s.setString("smooth", os.Getenv(envPrefix+"SMOOTH"), &cfg.SmoothMethod)
	s.setString("out", os.Getenv(envPrefix+"OUT"), &cfg.Out)

	envFloat(s, "r0", envPrefix+"R0", &cfg.RangeStart)
	envFloat(s, "r1", envPrefix+"R1", &cfg.RangeEnd)
	envFloat(s, "rate", envPrefix+"RATE", &cfg.UpdateRate)
	envFloat(s, "f-low", envPrefix+"F_LOW", &cfg.FreqLow)
	envFloat(s, "f-high", envPrefix+"F_HIGH", &cfg.FreqHigh)
	envFloat(s, "snr-min", envPrefix+"SNR_MIN", &cfg.SNRMin)
	envFloat(s, "prominence-min", envPrefix+"PROMINENCE_MIN", &cfg.ProminenceMin)
	envFloat(s, "max-step-bpm", envPrefix+"MAX_STEP_BPM", &cfg.MaxStepBPM)
	envFloat(s, "max-ratio", envPrefix+"MAX_RATIO", &cfg.MaxRatio)

	envInt(s, "n-dft", envPrefix+"N_DFT", &cfg.DFTLength)
	envInt(s, "smooth-window", envPrefix+"SMOOTH_WINDOW", &cfg.SmoothWindow)

	envBool(s, "debug", envPrefix+"DEBUG", &cfg.Debug)
	envDuration(s, "hold-last-for", envPrefix+"HOLD_LAST_FOR", &cfg.HoldLastFor)
}

func envFloat(s *configSetter, flag, key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		s.setFloat(flag, &f, dst)
	}
}

func envInt(s *configSetter, flag, key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		s.setInt(flag, &n, dst)
	}
}

func envBool(s *configSetter, flag, key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		s.setBool(flag, &b, dst)
	}
}

func envDuration(s *configSetter, flag, key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	// A bare number is seconds, matching the flag's unit.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		d := time.Duration(f * float64(time.Second))
		if !s.changed[flag] {
			*dst = d
		}
		return
	}
	_ = s.setDuration(flag, v, dst)
}
