package launch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/breath.report/internal/monitoring"
)

// pollInterval paces the supervision loop while programs run.
const pollInterval = 200 * time.Millisecond

// proc is one supervised program with its output files.
type proc struct {
	program Program
	cmd     *exec.Cmd
	stdout  *os.File
	stderr  *os.File
	done    chan error
	exited  bool
}

// Runner executes a plan: creates the session directory, starts every
// program in its own process group at the shared instant, and supervises
// until they exit or are stopped.
type Runner struct {
	plan    Plan
	session Session
	procs   []*proc
}

// NewRunner binds a validated plan to a session.
func NewRunner(plan Plan, session Session) *Runner {
	return &Runner{plan: plan, session: session}
}

// Session returns the run's session.
func (r *Runner) Session() Session {
	return r.session
}

// Run executes the plan. It returns nil when every program has exited,
// including runs stopped by the context or the duration cap; only setup
// failures are errors.
func (r *Runner) Run(ctx context.Context) error {
	if err := os.MkdirAll(r.session.Dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	idPath := filepath.Join(r.session.Dir, "run_id")
	if err := os.WriteFile(idPath, []byte(r.session.ID+"\n"), 0o644); err != nil {
		return fmt.Errorf("write run id: %w", err)
	}
	defer r.closeFiles()

	log := monitoring.Logger()
	log.Info().
		Str("run_id", r.session.ID).
		Str("dir", r.session.Dir).
		Time("start_at", r.session.StartAt).
		Int("programs", len(r.plan.Programs)).
		Msg("session scheduled")

	if err := r.openFiles(); err != nil {
		return err
	}

	// Hold every program until the shared instant so their first output
	// lines carry comparable timestamps.
	if err := sleepUntil(ctx, r.session.StartAt); err != nil {
		log.Info().Msg("stopped before start instant")
		return nil
	}

	if err := r.startAll(); err != nil {
		r.signalAll(syscall.SIGKILL)
		return err
	}

	var capCh <-chan time.Time
	if r.plan.MaxDuration > 0 {
		capTimer := time.NewTimer(r.plan.MaxDuration)
		defer capTimer.Stop()
		capCh = capTimer.C
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	ctxCh := ctx.Done()
	var killAt time.Time
	killed := false
	interrupt := func(reason string) {
		if !killAt.IsZero() {
			return
		}
		log.Info().Str("reason", reason).Msg("stopping all programs")
		r.signalAll(syscall.SIGINT)
		killAt = time.Now().Add(r.plan.Grace)
	}

	for r.running() > 0 {
		select {
		case <-ctxCh:
			interrupt("interrupt")
			ctxCh = nil
		case <-capCh:
			interrupt("duration cap reached")
			capCh = nil
		case <-ticker.C:
		}
		r.reap()
		if shouldEscalate(killAt, killed, time.Now()) {
			log.Warn().Dur("grace", r.plan.Grace).Msg("grace expired, killing remaining programs")
			r.signalAll(syscall.SIGKILL)
			killed = true
		}
	}

	log.Info().Str("run_id", r.session.ID).Str("dir", r.session.Dir).Msg("session complete")
	return nil
}

func (r *Runner) openFiles() error {
	for _, program := range r.plan.Programs {
		stdout, err := os.Create(filepath.Join(r.session.Dir, program.Stdout))
		if err != nil {
			return fmt.Errorf("open stdout for %s: %w", program.Name, err)
		}
		stderr, err := os.Create(filepath.Join(r.session.Dir, program.Stderr))
		if err != nil {
			stdout.Close()
			return fmt.Errorf("open stderr for %s: %w", program.Name, err)
		}
		r.procs = append(r.procs, &proc{
			program: program,
			stdout:  stdout,
			stderr:  stderr,
			done:    make(chan error, 1),
		})
	}
	return nil
}

func (r *Runner) startAll() error {
	log := monitoring.Logger()
	for _, p := range r.procs {
		cmd := exec.Command("/bin/sh", "-c", p.program.Command)
		cmd.Dir = p.program.Workdir
		cmd.Stdout = p.stdout
		cmd.Stderr = p.stderr
		// Own process group so signals reach the whole command tree.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			p.exited = true
			return fmt.Errorf("start %s: %w", p.program.Name, err)
		}
		p.cmd = cmd
		log.Info().Str("program", p.program.Name).Int("pid", cmd.Process.Pid).Msg("started")
		go func(p *proc) {
			p.done <- p.cmd.Wait()
		}(p)
	}
	return nil
}

// reap collects exit statuses without blocking.
func (r *Runner) reap() {
	log := monitoring.Logger()
	for _, p := range r.procs {
		if p.exited {
			continue
		}
		select {
		case err := <-p.done:
			p.exited = true
			if err != nil {
				log.Warn().Str("program", p.program.Name).Err(err).Msg("exited")
			} else {
				log.Info().Str("program", p.program.Name).Msg("exited cleanly")
			}
		default:
		}
	}
}

func (r *Runner) running() int {
	n := 0
	for _, p := range r.procs {
		if !p.exited {
			n++
		}
	}
	return n
}

// signalAll signals every program's process group.
func (r *Runner) signalAll(sig syscall.Signal) {
	for _, p := range r.procs {
		if p.exited || p.cmd == nil || p.cmd.Process == nil {
			continue
		}
		// Negative pid targets the group created by Setpgid.
		if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil {
			monitoring.Logger().Warn().
				Str("program", p.program.Name).
				Str("signal", sig.String()).
				Err(err).
				Msg("signal failed")
		}
	}
}

// shouldEscalate reports whether an interrupted run has outlived its
// grace period and still needs a SIGKILL pass.
func shouldEscalate(killAt time.Time, killed bool, now time.Time) bool {
	return !killAt.IsZero() && !killed && now.After(killAt)
}

func (r *Runner) closeFiles() {
	for _, p := range r.procs {
		if p.stdout != nil {
			p.stdout.Close()
		}
		if p.stderr != nil {
			p.stderr.Close()
		}
	}
}

// sleepUntil blocks until the instant or the context ends.
func sleepUntil(ctx context.Context, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
