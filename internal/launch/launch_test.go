package launch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/breath.report/internal/monitoring"
)

func init() {
	monitoring.Mute()
}

func twoProgramPlan(root string) Plan {
	plan := DefaultPlan()
	plan.SessionRoot = root
	plan.StartAfter = 0
	plan.Programs = []Program{
		{Name: "radar", Workdir: ".", Command: "true", Stdout: "radar.out", Stderr: "radar.err"},
		{Name: "belt", Workdir: ".", Command: "true", Stdout: "belt.out", Stderr: "belt.err"},
	}
	return plan
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[session]
out_dir = "data/sessions"
label = "20060102_1504"

[sync]
start_after = "2.5s"

[run]
max_duration = "1h"
grace = "10s"

[[program]]
name = "radar"
workdir = "/opt/radar"
command = "breathline --host sensor.local"
stdout = "radar_stdout.log"

[[program]]
name = "belt"
command = "belt-recorder --port /dev/ttyUSB1"
`), 0o644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	require.NoError(t, plan.Validate())

	assert.Equal(t, "data/sessions", plan.SessionRoot)
	assert.Equal(t, "20060102_1504", plan.Label)
	assert.Equal(t, 2500*time.Millisecond, plan.StartAfter)
	assert.Equal(t, time.Hour, plan.MaxDuration)
	assert.Equal(t, 10*time.Second, plan.Grace)

	require.Len(t, plan.Programs, 2)
	assert.Equal(t, "/opt/radar", plan.Programs[0].Workdir)
	assert.Equal(t, "radar_stdout.log", plan.Programs[0].Stdout)
	assert.Equal(t, "radar.err", plan.Programs[0].Stderr, "stderr falls back to <name>.err")
	assert.Equal(t, ".", plan.Programs[1].Workdir, "workdir falls back to the current directory")
	assert.Equal(t, "belt.out", plan.Programs[1].Stdout)
}

func TestLoadPlanBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nstart_after = \"soon\"\n"), 0o644))

	_, err := LoadPlan(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start_after")
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr string
	}{
		{name: "valid", mutate: func(p *Plan) {}},
		{name: "no programs", mutate: func(p *Plan) {
			p.Programs = nil
		}, wantErr: "at least one program"},
		{name: "duplicate names", mutate: func(p *Plan) {
			p.Programs[1].Name = "radar"
		}, wantErr: "duplicate program name"},
		{name: "missing command", mutate: func(p *Plan) {
			p.Programs[0].Command = ""
		}, wantErr: "no command"},
		{name: "negative start", mutate: func(p *Plan) {
			p.StartAfter = -time.Second
		}, wantErr: "start_after"},
		{name: "zero grace", mutate: func(p *Plan) {
			p.Grace = 0
		}, wantErr: "grace"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := twoProgramPlan(t.TempDir())
			tc.mutate(&plan)
			err := plan.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	plan := DefaultPlan()
	plan.SessionRoot = "data/raw"
	plan.Label = "20060102_150405"
	plan.StartAfter = 3 * time.Second

	now := time.Date(2026, 8, 23, 22, 15, 4, 0, time.UTC)
	s := NewSession(plan, now)

	assert.Equal(t, filepath.Join("data", "raw", "20260823_221504"), s.Dir)
	assert.Equal(t, now.Add(3*time.Second), s.StartAt)
	assert.NotEmpty(t, s.ID)

	// Session ids are unique per run.
	assert.NotEqual(t, s.ID, NewSession(plan, now).ID)
}

func TestShouldEscalate(t *testing.T) {
	now := time.Unix(1000, 0)

	assert.False(t, shouldEscalate(time.Time{}, false, now), "no interrupt yet")
	assert.False(t, shouldEscalate(now.Add(time.Second), false, now), "grace still running")
	assert.True(t, shouldEscalate(now.Add(-time.Second), false, now), "grace expired")
	assert.False(t, shouldEscalate(now.Add(-time.Second), true, now), "already killed")
}

func TestRunnerRunsToCompletion(t *testing.T) {
	root := t.TempDir()
	plan := twoProgramPlan(root)
	plan.Programs[0].Command = "echo radar-frame"
	plan.Programs[1].Command = "echo belt-sample"
	require.NoError(t, plan.Validate())

	session := NewSession(plan, time.Now())
	r := NewRunner(plan, session)
	require.NoError(t, r.Run(context.Background()))

	out, err := os.ReadFile(filepath.Join(session.Dir, "radar.out"))
	require.NoError(t, err)
	assert.Equal(t, "radar-frame\n", string(out))

	id, err := os.ReadFile(filepath.Join(session.Dir, "run_id"))
	require.NoError(t, err)
	assert.Equal(t, session.ID+"\n", string(id))
}

func TestRunnerInterruptStopsPrograms(t *testing.T) {
	root := t.TempDir()
	plan := twoProgramPlan(root)
	plan.Programs[0].Command = "sleep 30"
	plan.Programs[1].Command = "sleep 30"
	plan.Grace = 2 * time.Second
	require.NoError(t, plan.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	r := NewRunner(plan, NewSession(plan, time.Now()))
	require.NoError(t, r.Run(ctx))
	assert.Less(t, time.Since(start), 10*time.Second, "interrupt should stop the run well before the sleeps finish")
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	root := t.TempDir()
	plan := twoProgramPlan(root)
	plan.StartAfter = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := NewSession(plan, time.Now())
	r := NewRunner(plan, session)
	require.NoError(t, r.Run(ctx))

	// Nothing ran, but the session directory and run id exist.
	_, err := os.Stat(filepath.Join(session.Dir, "run_id"))
	assert.NoError(t, err)
}
