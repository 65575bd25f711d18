// Package extract resolves the loosely keyed per-frame result bag produced by
// the breathing estimator into a small set of named optional values. All
// duck-typed field handling lives here; the rest of the pipeline only ever
// sees resolved numbers.
package extract

import (
	"math"
	"strconv"
)

// FrameResult is the keyed bag of values produced once per sensor frame.
// Every recognized field is optional; absence is a valid state, not an error.
type FrameResult map[string]any

// Hertz-valued estimate fields in priority order. Hertz-native sources are
// considered more authoritative than pre-converted bpm fields, so this list
// is always exhausted before the bpm list is consulted.
var hzKeys = []string{
	"f_est",
	"f_dft_est",
	"breathing_rate_hz",
	"freq_hz",
	"f_hat",
	"resp_rate_hz",
}

// Fields already expressed in breaths per minute, in priority order.
var bpmKeys = []string{
	"breathing_rate_bpm",
	"respiratory_rate_bpm",
	"bpm",
}

// CoerceNumber returns the numeric value of v if v is a genuine finite
// number. Booleans are explicitly rejected even though some source
// representations treat them as numeric. Numeric strings are accepted.
// The second return is false when no usable value exists.
func CoerceNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case bool:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Number coerces the named field of the frame.
func (r FrameResult) Number(key string) (float64, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	return CoerceNumber(v)
}

// ResolveBPM returns the frame's breathing-rate estimate in breaths per
// minute. Hertz fields are tried first (multiplied by 60), then fields
// already in bpm. The priority order is a compatibility contract.
func ResolveBPM(r FrameResult) (float64, bool) {
	for _, k := range hzKeys {
		if v, ok := r.Number(k); ok {
			return v * 60.0, true
		}
	}
	for _, k := range bpmKeys {
		if v, ok := r.Number(k); ok {
			return v, true
		}
	}
	return 0, false
}

// ResolveInitProgress returns the estimator's warm-up progress as a fraction
// in [0,1]. An absent or unusable field defaults to fully warmed so that
// absence never blocks output. Values above 1 are treated as percentages.
func ResolveInitProgress(r FrameResult) float64 {
	v, ok := r.Number("init_progress")
	if !ok {
		return 1.0
	}
	if v > 1.0 {
		return v / 100.0
	}
	return v
}

// ResolveSpectrum returns the frame's power spectrum, or nil when absent or
// not a numeric sequence. Entries that fail coercion become NaN so that the
// quality estimator's finiteness precondition sees them.
func ResolveSpectrum(r FrameResult) []float64 {
	v, ok := r["power_spectrum"]
	if !ok || v == nil {
		return nil
	}
	switch seq := v.(type) {
	case []float64:
		out := make([]float64, len(seq))
		copy(out, seq)
		return out
	case []any:
		out := make([]float64, len(seq))
		for i, e := range seq {
			f, ok := CoerceNumber(e)
			if !ok {
				f = math.NaN()
			}
			out[i] = f
		}
		return out
	default:
		return nil
	}
}

// Estimates is the result of resolving a frame once at the extraction
// boundary. HasBPM etc. distinguish a present zero from absence.
type Estimates struct {
	RawBPM       float64
	HasBPM       bool
	InitProgress float64
	Spectrum     []float64
	ReportedSNR  float64
	HasSNR       bool

	// Component estimates, bpm-scaled, surfaced only in debug notes.
	FEstBPM    float64
	HasFEst    bool
	FDftEstBPM float64
	HasFDftEst bool
}

// Resolve extracts every recognized field of the frame in one pass.
func Resolve(r FrameResult) Estimates {
	var e Estimates
	e.RawBPM, e.HasBPM = ResolveBPM(r)
	e.InitProgress = ResolveInitProgress(r)
	e.Spectrum = ResolveSpectrum(r)
	e.ReportedSNR, e.HasSNR = r.Number("snr")
	if v, ok := r.Number("f_est"); ok {
		e.FEstBPM, e.HasFEst = v*60.0, true
	}
	if v, ok := r.Number("f_dft_est"); ok {
		e.FDftEstBPM, e.HasFDftEst = v*60.0, true
	}
	return e
}
