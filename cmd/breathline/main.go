// breathline streams validated breathing-rate estimates from an A111
// sleep-breathing session as one CSV-ish line per second on stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/emit"
	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/pipeline"
	"github.com/banshee-data/breath.report/internal/sensor"
)

var exampleUsage = strings.TrimSpace(`
  breathline --host 192.168.1.40
  breathline --serial-port /dev/ttyUSB0 --out session.csv
  breathline --dev fixtures/night1.ndjson --debug
  breathline --host sensor.local --snr-min 8 --hold-last-for 10
`)

func newRootCommand(out io.Writer) *cobra.Command {
	cfg := config.DefaultConfig()
	var (
		cfgPath     string
		holdSeconds float64
		watchConfig bool
	)

	root := &cobra.Command{
		Use:           "breathline",
		Short:         "Stream gated breathing-rate estimates from a radar sensor, one line per second",
		Example:       exampleUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
			if changed["hold-last-for"] {
				cfg.HoldLastFor = time.Duration(holdSeconds * float64(time.Second))
			}
			if changed["dev"] {
				changed["fixtures"] = true
			}

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}
			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}
			config.ApplyEnvConfig(&cfg, changed)

			if err := cfg.Validate(); err != nil {
				return err
			}
			monitoring.SetVerbose(cfg.Debug)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !watchConfig || cfgFile == "" {
				cfgFile = ""
			}
			return run(ctx, cfg, changed, cfgFile, out)
		},
	}

	f := root.Flags()
	f.StringVar(&cfg.Host, "host", cfg.Host, "sensor host (TCP session)")
	f.StringVar(&cfg.SerialPort, "serial-port", cfg.SerialPort, "sensor serial port (UART session)")
	f.StringVar(&cfg.Fixtures, "dev", cfg.Fixtures, "replay a recorded NDJSON frame file instead of hardware")
	f.Float64Var(&cfg.RangeStart, "r0", cfg.RangeStart, "range window start in metres")
	f.Float64Var(&cfg.RangeEnd, "r1", cfg.RangeEnd, "range window end in metres")
	f.Float64Var(&cfg.UpdateRate, "rate", cfg.UpdateRate, "sensor update rate in Hz")
	f.IntVar(&cfg.DFTLength, "n-dft", cfg.DFTLength, "estimator DFT length")
	f.Float64Var(&cfg.FreqLow, "f-low", cfg.FreqLow, "lower edge of the plausible breathing band in Hz")
	f.Float64Var(&cfg.FreqHigh, "f-high", cfg.FreqHigh, "upper edge of the plausible breathing band in Hz")
	f.Float64Var(&cfg.SNRMin, "snr-min", cfg.SNRMin, "minimum SNR in dB for a frame to count")
	f.Float64Var(&holdSeconds, "hold-last-for", cfg.HoldLastFor.Seconds(), "seconds to hold the last good value through dropouts")
	f.IntVar(&cfg.SmoothWindow, "smooth-window", cfg.SmoothWindow, "number of accepted values in the smoothing window")
	f.StringVar(&cfg.SmoothMethod, "smooth", cfg.SmoothMethod, "smoothing method: median or mean")
	f.Float64Var(&cfg.ProminenceMin, "prominence-min", cfg.ProminenceMin, "minimum spectral peak prominence ratio")
	f.Float64Var(&cfg.MaxStepBPM, "max-step-bpm", cfg.MaxStepBPM, "largest accepted jump from the previous value in BPM")
	f.Float64Var(&cfg.MaxRatio, "max-ratio", cfg.MaxRatio, "largest accepted ratio against the previous value")
	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "verbose logging plus estimator fields in the note column")
	f.StringVar(&cfg.Out, "out", cfg.Out, "append the record stream to this file as well as stdout")
	f.StringVar(&cfgPath, "config", "", "config file (default ~/.breathline/config.toml)")
	f.BoolVar(&watchConfig, "watch-config", false, "reload validity tuning when the config file changes")

	return root
}

// run owns the session, the pipeline and the writer for one recording.
func run(ctx context.Context, cfg config.Config, changed map[string]bool, watchPath string, out io.Writer) error {
	log := monitoring.Logger()

	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	writer := emit.NewWriter(out)
	if cfg.Out != "" {
		writer, err = emit.NewTeeWriter(out, cfg.Out)
		if err != nil {
			return err
		}
	}
	defer writer.Close()

	state := pipeline.NewState(cfg.Gate(), time.Now())
	state.SetDebug(cfg.Debug)

	if watchPath != "" {
		go func() {
			if err := config.Watch(ctx, watchPath, cfg, changed, state.SetConfig); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	if err := writer.WriteHeader(); err != nil {
		return err
	}

	log.Info().
		Float64("snr_min", cfg.SNRMin).
		Float64("f_low", cfg.FreqLow).
		Float64("f_high", cfg.FreqHigh).
		Dur("hold_last_for", cfg.HoldLastFor).
		Msg("streaming")

	return stream(ctx, session, state, writer)
}

// stream runs the frame loop until the session ends. Interrupt and
// fixture exhaustion are normal completions; a live session dropping the
// link mid-stream is a failure so supervisors can tell a dead recording
// from a finished one.
func stream(ctx context.Context, session sensor.Session, state *pipeline.State, writer *emit.Writer) error {
	log := monitoring.Logger()
	for {
		frame, err := session.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Info().Msg("interrupted, stopping")
				return nil
			case errors.Is(err, io.EOF):
				log.Info().Msg("replay finished")
				return nil
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}
		for _, rec := range state.ProcessFrame(frame, time.Now()) {
			if err := writer.WriteRecord(rec); err != nil {
				return fmt.Errorf("write record: %w", err)
			}
		}
	}
}

// openSession picks the frame source the configuration selects.
func openSession(cfg config.Config) (sensor.Session, error) {
	switch {
	case cfg.Fixtures != "":
		b, err := os.ReadFile(cfg.Fixtures)
		if err != nil {
			return nil, fmt.Errorf("read fixtures: %w", err)
		}
		m, err := sensor.NewMockSession(b)
		if err != nil {
			return nil, err
		}
		// Pace replay at the configured update rate so tick emission
		// behaves as it would live.
		m.SetFrameDelay(time.Duration(float64(time.Second) / cfg.UpdateRate))
		return m, nil
	case cfg.SerialPort != "":
		return sensor.OpenSerial(cfg.SerialPort, cfg.Session())
	default:
		return sensor.Dial(cfg.Session())
	}
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		monitoring.Logger().Error().Err(err).Msg("breathline failed")
		os.Exit(1)
	}
}
