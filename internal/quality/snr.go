// Package quality derives a signal-to-noise measure from a frame's power
// spectrum, independent of whatever quality the estimator itself reports.
// It is a diagnostic signal and never fails: any degenerate input resolves
// to "unknown" rather than an error.
package quality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/breath.report/internal/extract"
)

// Number of bins on each side of the peak treated as signal-occupied and
// excluded from the noise set (five bins total with the peak itself).
const peakExclusion = 2

// Minimum spectrum length for the spectral path. Shorter spectra leave too
// few noise bins for a meaningful median.
const minBins = 9

// SpectralSNR computes the quality of a power spectrum in dB as
// 10*log10(peak / median(noise)), where noise is every strictly positive
// bin outside the peak-occupied window. The second return is false when the
// spectrum does not satisfy the preconditions (more than 8 bins, all values
// finite, at least one strictly positive) or the noise set is empty.
func SpectralSNR(spectrum []float64) (float64, bool) {
	if len(spectrum) < minBins {
		return 0, false
	}
	anyPositive := false
	for _, v := range spectrum {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		if v > 0 {
			anyPositive = true
		}
	}
	if !anyPositive {
		return 0, false
	}

	peak := floats.MaxIdx(spectrum)
	lo := peak - peakExclusion
	if lo < 0 {
		lo = 0
	}
	hi := peak + peakExclusion + 1
	if hi > len(spectrum) {
		hi = len(spectrum)
	}

	noise := make([]float64, 0, len(spectrum))
	for i, v := range spectrum {
		if i >= lo && i < hi {
			continue
		}
		if v > 0 {
			noise = append(noise, v)
		}
	}
	if len(noise) == 0 {
		return 0, false
	}

	snr := 10.0 * math.Log10(spectrum[peak]/median(noise))
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		return 0, false
	}
	return snr, true
}

// Estimate returns the quality of a resolved frame: the spectral path when
// the spectrum supports it, the estimator's own reported snr otherwise.
// ok=false means unknown quality, which downstream gates treat permissively.
func Estimate(e extract.Estimates) (float64, bool) {
	if snr, ok := SpectralSNR(e.Spectrum); ok {
		return snr, ok
	}
	if e.HasSNR {
		return e.ReportedSNR, true
	}
	return 0, false
}

// median computes the statistical median (even counts average the two
// middle elements, matching the noise-floor convention of the estimator).
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
