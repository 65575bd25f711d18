// Package gate decides, frame by frame, whether a raw breathing-rate
// estimate is trustworthy enough to enter the smoothing buffer.
package gate

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Smoothing method names accepted by Config.SmoothMethod.
const (
	SmoothMean   = "mean"
	SmoothMedian = "median"
)

// Guard against division by zero in the step-ratio check.
const stepRatioEpsilon = 1e-6

// Config holds the validity tuning. It is immutable once loaded; live
// reload replaces the whole value between frames.
type Config struct {
	// FreqLowHz and FreqHighHz bound the physiologically plausible
	// breathing band. The bpm band is [60*FreqLowHz, 60*FreqHighHz].
	FreqLowHz  float64
	FreqHighHz float64

	// SNRMinDB is the minimum acceptable quality. Unknown quality passes.
	SNRMinDB float64

	// ProminenceMin is the minimum ratio between the largest and
	// second-largest spectrum values.
	ProminenceMin float64

	// MaxStepBPM and MaxRatio bound the change between consecutive
	// accepted values, absolute and multiplicative respectively.
	MaxStepBPM float64
	MaxRatio   float64

	// HoldLastFor is how long a stale last-good value keeps being
	// reported after the last acceptance.
	HoldLastFor time.Duration

	// SmoothWindow and SmoothMethod control the accepted-value buffer.
	SmoothWindow int
	SmoothMethod string
}

// DefaultConfig returns the tuning used for overnight bedside recordings:
// a 7.2-42 bpm band with median smoothing over the last five accepted
// values.
func DefaultConfig() Config {
	return Config{
		FreqLowHz:     0.12,
		FreqHighHz:    0.70,
		SNRMinDB:      10.0,
		ProminenceMin: 1.6,
		MaxStepBPM:    6.0,
		MaxRatio:      1.5,
		HoldLastFor:   5 * time.Second,
		SmoothWindow:  5,
		SmoothMethod:  SmoothMedian,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.FreqLowHz <= 0 || c.FreqHighHz <= c.FreqLowHz {
		return fmt.Errorf("frequency band [%v, %v] must satisfy 0 < low < high", c.FreqLowHz, c.FreqHighHz)
	}
	if c.ProminenceMin < 1 {
		return fmt.Errorf("prominence_min must be at least 1, got %v", c.ProminenceMin)
	}
	if c.MaxStepBPM <= 0 {
		return fmt.Errorf("max_step_bpm must be positive, got %v", c.MaxStepBPM)
	}
	if c.MaxRatio <= 1 {
		return fmt.Errorf("max_ratio must be greater than 1, got %v", c.MaxRatio)
	}
	if c.HoldLastFor < 0 {
		return fmt.Errorf("hold_last_for must be non-negative, got %v", c.HoldLastFor)
	}
	if c.SmoothWindow < 1 {
		return fmt.Errorf("smooth_window must be at least 1, got %d", c.SmoothWindow)
	}
	if c.SmoothMethod != SmoothMean && c.SmoothMethod != SmoothMedian {
		return fmt.Errorf("smooth method must be %q or %q, got %q", SmoothMean, SmoothMedian, c.SmoothMethod)
	}
	return nil
}

// BandBPM returns the inclusive acceptance band in breaths per minute.
func (c Config) BandBPM() (lo, hi float64) {
	return 60.0 * c.FreqLowHz, 60.0 * c.FreqHighHz
}

// Reason identifies which check rejected a frame.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonWarmup     Reason = "warmup"
	ReasonQuality    Reason = "quality"
	ReasonBand       Reason = "band"
	ReasonProminence Reason = "prominence"
	ReasonStep       Reason = "step"
)

// Decision is the outcome of gating a single frame.
type Decision struct {
	Valid  bool
	Reason Reason
}

// Sample carries the per-frame values the gate inspects. Unknown values
// (quality, spectrum) participate permissively: they never cause a reject
// by themselves.
type Sample struct {
	RawBPM       float64
	HasBPM       bool
	InitProgress float64
	SNRdB        float64
	SNRKnown     bool
	Spectrum     []float64
}

// Evaluate applies the trust checks in order: warm-up, quality, band,
// spectral prominence, plausible step against the previous accepted value.
// The first failing check short-circuits; order does not affect the
// outcome except that the step check needs a prior accepted value.
// lastGood is the smoothed value from the previous acceptance.
func (c Config) Evaluate(s Sample, lastGood float64, hasLast bool) Decision {
	if s.InitProgress < 0.99 {
		return Decision{Reason: ReasonWarmup}
	}
	if s.SNRKnown && s.SNRdB < c.SNRMinDB {
		return Decision{Reason: ReasonQuality}
	}
	lo, hi := c.BandBPM()
	if !s.HasBPM || s.RawBPM < lo || s.RawBPM > hi {
		return Decision{Reason: ReasonBand}
	}
	if !c.prominencePass(s.Spectrum) {
		return Decision{Reason: ReasonProminence}
	}
	if hasLast {
		r := s.RawBPM / math.Max(stepRatioEpsilon, lastGood)
		if math.Abs(s.RawBPM-lastGood) > c.MaxStepBPM || r > c.MaxRatio || r < 1/c.MaxRatio {
			return Decision{Reason: ReasonStep}
		}
	}
	return Decision{Valid: true}
}

// prominencePass requires the largest spectrum value to exceed the
// second-largest by ProminenceMin. When the ratio is unavailable (no
// spectrum, too few bins, or a zero runner-up) the check is skipped:
// absence of a spectrum never fails prominence.
func (c Config) prominencePass(spectrum []float64) bool {
	if len(spectrum) < 2 {
		return true
	}
	tops := topThree(spectrum)
	largest, second := tops[len(tops)-1], tops[len(tops)-2]
	if second <= 0 || math.IsNaN(largest) || math.IsNaN(second) {
		return true
	}
	return largest/second >= c.ProminenceMin
}

// topThree returns the up-to-three largest values in ascending order.
func topThree(values []float64) []float64 {
	n := 3
	if len(values) < n {
		n = len(values)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[len(sorted)-n:]
}
