// Package launch starts a set of recording programs at one shared
// future instant so their output streams line up, then supervises them:
// Ctrl-C or a duration cap interrupts every process group, and a grace
// timeout escalates to SIGKILL.
package launch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
)

// Program is one recording process under supervision.
type Program struct {
	Name    string
	Workdir string
	Command string
	Stdout  string
	Stderr  string
}

// Plan describes a synchronized recording run.
type Plan struct {
	// SessionRoot is the directory session folders are created under.
	SessionRoot string
	// Label is the time layout used to name the session folder.
	Label string

	// StartAfter is the delay before the shared start instant.
	StartAfter time.Duration
	// MaxDuration stops the run after this long; zero means unlimited.
	MaxDuration time.Duration
	// Grace is how long interrupted programs get to exit before SIGKILL.
	Grace time.Duration

	Programs []Program
}

// DefaultPlan returns a plan with run timing defaults and no programs.
func DefaultPlan() Plan {
	return Plan{
		SessionRoot: "data/raw",
		Label:       "20060102_150405",
		StartAfter:  3 * time.Second,
		Grace:       5 * time.Second,
	}
}

// Validate checks the plan is runnable.
func (p *Plan) Validate() error {
	if p.SessionRoot == "" {
		return fmt.Errorf("session root is required")
	}
	if p.Label == "" {
		return fmt.Errorf("session label layout is required")
	}
	if p.StartAfter < 0 {
		return fmt.Errorf("start_after must be non-negative, got %v", p.StartAfter)
	}
	if p.MaxDuration < 0 {
		return fmt.Errorf("max_duration must be non-negative, got %v", p.MaxDuration)
	}
	if p.Grace <= 0 {
		return fmt.Errorf("grace must be positive, got %v", p.Grace)
	}
	if len(p.Programs) == 0 {
		return fmt.Errorf("at least one program is required")
	}
	seen := make(map[string]bool)
	for i, prog := range p.Programs {
		if prog.Name == "" {
			return fmt.Errorf("program %d has no name", i)
		}
		if seen[prog.Name] {
			return fmt.Errorf("duplicate program name %q", prog.Name)
		}
		seen[prog.Name] = true
		if prog.Command == "" {
			return fmt.Errorf("program %q has no command", prog.Name)
		}
	}
	return nil
}

// filePlan is the TOML shape of a Plan. Durations are strings.
type filePlan struct {
	Session struct {
		OutDir string `toml:"out_dir"`
		Label  string `toml:"label"`
	} `toml:"session"`
	Sync struct {
		StartAfter string `toml:"start_after"`
	} `toml:"sync"`
	Run struct {
		MaxDuration string `toml:"max_duration"`
		Grace       string `toml:"grace"`
	} `toml:"run"`
	Programs []struct {
		Name    string `toml:"name"`
		Workdir string `toml:"workdir"`
		Command string `toml:"command"`
		Stdout  string `toml:"stdout"`
		Stderr  string `toml:"stderr"`
	} `toml:"program"`
}

// LoadPlan reads a TOML run plan, filling absent values from
// DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	plan := DefaultPlan()

	b, err := os.ReadFile(path)
	if err != nil {
		return plan, err
	}
	var fp filePlan
	if err := toml.Unmarshal(b, &fp); err != nil {
		return plan, fmt.Errorf("parse %s: %w", path, err)
	}

	if fp.Session.OutDir != "" {
		plan.SessionRoot = fp.Session.OutDir
	}
	if fp.Session.Label != "" {
		plan.Label = fp.Session.Label
	}
	if err := parsePlanDuration(fp.Sync.StartAfter, &plan.StartAfter, "start_after"); err != nil {
		return plan, err
	}
	if err := parsePlanDuration(fp.Run.MaxDuration, &plan.MaxDuration, "max_duration"); err != nil {
		return plan, err
	}
	if err := parsePlanDuration(fp.Run.Grace, &plan.Grace, "grace"); err != nil {
		return plan, err
	}

	for _, p := range fp.Programs {
		prog := Program{
			Name:    p.Name,
			Workdir: p.Workdir,
			Command: p.Command,
			Stdout:  p.Stdout,
			Stderr:  p.Stderr,
		}
		if prog.Workdir == "" {
			prog.Workdir = "."
		}
		if prog.Stdout == "" {
			prog.Stdout = prog.Name + ".out"
		}
		if prog.Stderr == "" {
			prog.Stderr = prog.Name + ".err"
		}
		plan.Programs = append(plan.Programs, prog)
	}

	return plan, nil
}

func parsePlanDuration(value string, dst *time.Duration, key string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = d
	return nil
}

// Session is one concrete run of a plan: a unique id, a timestamped
// output directory and the shared start instant.
type Session struct {
	ID      string
	Dir     string
	StartAt time.Time
}

// NewSession derives a session from the plan at the given wall time.
// The directory is not created; Runner does that.
func NewSession(plan Plan, now time.Time) Session {
	return Session{
		ID:      uuid.NewString(),
		Dir:     filepath.Join(plan.SessionRoot, now.Format(plan.Label)),
		StartAt: now.Add(plan.StartAfter),
	}
}
