package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/breath.report/internal/config"
	"github.com/banshee-data/breath.report/internal/emit"
	"github.com/banshee-data/breath.report/internal/extract"
	"github.com/banshee-data/breath.report/internal/monitoring"
	"github.com/banshee-data/breath.report/internal/pipeline"
	"github.com/banshee-data/breath.report/internal/sensor"
)

func init() {
	monitoring.Mute()
}

func TestFlagDefaults(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})

	tests := []struct {
		flag string
		want string
	}{
		{flag: "r0", want: "0.4"},
		{flag: "r1", want: "0.6"},
		{flag: "rate", want: "12"},
		{flag: "n-dft", want: "15"},
		{flag: "f-low", want: "0.12"},
		{flag: "f-high", want: "0.7"},
		{flag: "snr-min", want: "10"},
		{flag: "hold-last-for", want: "5"},
		{flag: "smooth-window", want: "5"},
		{flag: "smooth", want: "median"},
		{flag: "prominence-min", want: "1.6"},
		{flag: "max-step-bpm", want: "6"},
		{flag: "max-ratio", want: "1.5"},
		{flag: "debug", want: "false"},
	}
	for _, tc := range tests {
		f := root.Flags().Lookup(tc.flag)
		require.NotNil(t, f, "flag --%s missing", tc.flag)
		assert.Equal(t, tc.want, f.DefValue, "flag --%s default", tc.flag)
	}

	// n_dft is a dimensionless length, not a duration.
	assert.Equal(t, "estimator DFT length", root.Flags().Lookup("n-dft").Usage)
}

type endingSession struct {
	err error
}

func (s endingSession) Next(ctx context.Context) (extract.FrameResult, error) {
	return nil, s.err
}

func (s endingSession) Close() error { return nil }

func TestStreamLiveDisconnectFails(t *testing.T) {
	cfg := config.DefaultConfig()
	state := pipeline.NewState(cfg.Gate(), time.Now())
	writer := emit.NewWriter(&bytes.Buffer{})

	err := stream(context.Background(), endingSession{err: sensor.ErrSessionEnded}, state, writer)
	require.Error(t, err)
	assert.ErrorIs(t, err, sensor.ErrSessionEnded)
}

func TestStreamReplayEndIsNormal(t *testing.T) {
	m, err := sensor.NewMockSession([]byte("{\"f_est\":0.25,\"init_progress\":1.0}\n"))
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	state := pipeline.NewState(cfg.Gate(), time.Now())
	writer := emit.NewWriter(&bytes.Buffer{})

	assert.NoError(t, stream(context.Background(), m, state, writer))
}

func TestNoSourceFails(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})
	// Point at a config path that does not exist so the run depends only
	// on flags.
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.toml")})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame source")
}

func TestOpenSessionMissingFixture(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fixtures = filepath.Join(t.TempDir(), "missing.ndjson")

	_, err := openSession(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read fixtures")
}

func TestDevReplayWritesHeader(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "frames.ndjson")
	require.NoError(t, os.WriteFile(fixture, []byte(
		"{\"f_est\":0.25,\"init_progress\":1.0,\"snr\":15.0}\n{\"f_est\":0.26,\"init_progress\":1.0,\"snr\":15.0}\n",
	), 0o644))

	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{
		"--dev", fixture,
		"--config", filepath.Join(dir, "none.toml"),
	})

	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, emit.Header, lines[0])
	for _, l := range lines[1:] {
		assert.Equal(t, 4, strings.Count(l, ",")+1, "record %q should have four columns", l)
	}
}

func TestFileConfigOverridesDefaultsButNotFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("snr_min = 8.0\nmax_ratio = 2.0\n"), 0o644))

	cfg := config.DefaultConfig()
	fc, err := config.LoadFileConfig(cfgPath)
	require.NoError(t, err)
	require.NoError(t, config.ApplyFileConfig(&cfg, fc, map[string]bool{"max-ratio": true}))

	assert.Equal(t, 8.0, cfg.SNRMin)
	assert.Equal(t, 1.5, cfg.MaxRatio, "flagged option keeps its flag value")
}
