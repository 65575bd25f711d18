// Package pipeline owns the accumulating state of the breathing-rate
// stream: the bounded buffer of accepted values, the smoothed last-good
// estimate, the hold policy for brief dropouts, and the tick-aligned
// emitter. One State instance lives for the whole process run and is
// mutated only by the frame loop.
package pipeline

import (
	"sort"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/breath.report/internal/emit"
	"github.com/banshee-data/breath.report/internal/extract"
	"github.com/banshee-data/breath.report/internal/gate"
	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/quality"
)

// State is the single mutable object threaded through the frame loop.
// The validity tuning sits behind an atomic pointer so the config watcher
// can swap it between frames without a lock on the hot path.
type State struct {
	cfg   atomic.Pointer[gate.Config]
	debug bool

	// window holds the most recently accepted raw bpm values, oldest
	// first. It never contains a value that failed the gate.
	window      []float64
	smoothed    float64
	hasSmoothed bool
	lastAccept  time.Time

	// nextTick is the unix second of the next due output record. It only
	// ever advances.
	nextTick int64

	loggedKeys bool
}

// NewState creates the pipeline state with an empty buffer and the tick
// cursor on the first whole second strictly after start.
func NewState(cfg gate.Config, start time.Time) *State {
	s := &State{nextTick: start.Unix() + 1}
	s.cfg.Store(&cfg)
	return s
}

// SetDebug enables the debug-only note tokens and key logging.
func (s *State) SetDebug(on bool) { s.debug = on }

// SetConfig atomically replaces the validity tuning. The next frame sees
// the new config in full; no frame ever sees a partial update.
func (s *State) SetConfig(cfg gate.Config) {
	s.cfg.Store(&cfg)
}

// Config returns the current validity tuning.
func (s *State) Config() gate.Config {
	return *s.cfg.Load()
}

// Accept pushes an accepted raw bpm into the bounded buffer, evicting the
// oldest value on overflow, and recomputes the smoothed estimate. The
// smoothed value is a pure function of the buffer contents.
func (s *State) Accept(raw float64, now time.Time) {
	cfg := s.cfg.Load()
	s.window = append(s.window, raw)
	if excess := len(s.window) - cfg.SmoothWindow; excess > 0 {
		s.window = s.window[excess:]
	}
	s.smoothed = smooth(s.window, cfg.SmoothMethod)
	s.hasSmoothed = true
	s.lastAccept = now
}

// Smoothed returns the current smoothed bpm, if any value has ever been
// accepted.
func (s *State) Smoothed() (float64, bool) {
	return s.smoothed, s.hasSmoothed
}

// Held reports whether the last-good value is still reportable at now.
// The cutoff is hard: once the gap exceeds the hold duration the value is
// simply absent, with no decay curve.
func (s *State) Held(now time.Time) (float64, bool) {
	if !s.hasSmoothed {
		return 0, false
	}
	if now.Sub(s.lastAccept) > s.cfg.Load().HoldLastFor {
		return 0, false
	}
	return s.smoothed, true
}

// ProcessFrame runs one frame through extraction, quality estimation,
// gating and state update, then emits one record per whole second elapsed
// since the previous check. Rejected frames leave the buffer untouched.
func (s *State) ProcessFrame(frame extract.FrameResult, now time.Time) []emit.Record {
	if s.debug && !s.loggedKeys && len(frame) > 0 {
		keys := make([]string, 0, len(frame))
		for k := range frame {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		monitoring.Logger().Debug().Strs("keys", keys).Msg("first frame result keys")
		s.loggedKeys = true
	}

	cfg := s.cfg.Load()
	est := extract.Resolve(frame)
	snr, snrKnown := quality.Estimate(est)

	sample := gate.Sample{
		RawBPM:       est.RawBPM,
		HasBPM:       est.HasBPM,
		InitProgress: est.InitProgress,
		SNRdB:        snr,
		SNRKnown:     snrKnown,
		Spectrum:     est.Spectrum,
	}
	decision := cfg.Evaluate(sample, s.smoothed, s.hasSmoothed)
	if decision.Valid {
		s.Accept(est.RawBPM, now)
	} else if est.HasBPM {
		monitoring.Logger().Debug().
			Float64("raw_bpm", est.RawBPM).
			Str("reason", string(decision.Reason)).
			Msg("frame rejected")
	}

	return s.emitDue(now, est, snr, snrKnown, decision)
}

// emitDue produces one record for every whole second elapsed up to now,
// catching up after stalls. All catch-up records of one call share the
// same content except for their second index; the cursor never moves
// backward and never skips a second.
func (s *State) emitDue(now time.Time, est extract.Estimates, snr float64, snrKnown bool, decision gate.Decision) []emit.Record {
	if now.Unix() < s.nextTick {
		return nil
	}

	cfg := s.cfg.Load()
	var bpmText string
	notes := make([]string, 0, 6)

	if held, ok := s.Held(now); ok {
		bpmText = emit.FormatValue(held)
		notes = append(notes, "held=1")
	}
	if snrKnown {
		notes = append(notes, "snr="+emit.FormatValue(snr))
	}
	notes = append(notes, "init="+emit.FormatValue(est.InitProgress))

	// Surface the raw estimate only when it was in-band but rejected by a
	// later gate, so downstream can see near-misses without trusting them.
	if est.HasBPM && !decision.Valid {
		if lo, hi := cfg.BandBPM(); est.RawBPM >= lo && est.RawBPM <= hi {
			notes = append(notes, "raw="+emit.FormatValue(est.RawBPM))
		}
	}
	if s.debug {
		if est.HasFEst {
			notes = append(notes, "f_est="+emit.FormatValue(est.FEstBPM))
		}
		if est.HasFDftEst {
			notes = append(notes, "f_dft="+emit.FormatValue(est.FDftEstBPM))
		}
	}

	var records []emit.Record
	for now.Unix() >= s.nextTick {
		records = append(records, emit.Record{
			EmittedAt:  now,
			UnixSecond: s.nextTick,
			BPM:        bpmText,
			Notes:      notes,
		})
		s.nextTick++
	}
	return records
}

// smooth reduces the buffer to one value. The median tie-break for even
// counts picks the lower-middle element of the sorted buffer; downstream
// consumers depend on that exact choice.
func smooth(window []float64, method string) float64 {
	if method == gate.SmoothMean {
		return stat.Mean(window, nil)
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}
