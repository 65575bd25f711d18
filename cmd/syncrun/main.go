// syncrun starts a set of recording programs at one shared instant and
// supervises them until they finish or are stopped.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/breath.report/internal/launch"
	"github.com/banshee-data/breath.report/internal/monitoring"
)

var exampleUsage = strings.TrimSpace(`
  syncrun --plan runs/night.toml
  syncrun --plan runs/night.toml --start-after 10s --max-duration 8h
`)

func newRootCommand() *cobra.Command {
	var (
		planPath    string
		startAfter  time.Duration
		maxDuration time.Duration
		verbose     bool
	)

	root := &cobra.Command{
		Use:           "syncrun",
		Short:         "Start recording programs at one synchronized instant",
		Example:       exampleUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			monitoring.SetVerbose(verbose)

			plan, err := launch.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("start-after") {
				plan.StartAfter = startAfter
			}
			if cmd.Flags().Changed("max-duration") {
				plan.MaxDuration = maxDuration
			}
			if err := plan.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := launch.NewRunner(plan, launch.NewSession(plan, time.Now()))
			return runner.Run(ctx)
		},
	}

	f := root.Flags()
	f.StringVar(&planPath, "plan", "run.toml", "TOML run plan")
	f.DurationVar(&startAfter, "start-after", 0, "override the plan's delay before the shared start instant")
	f.DurationVar(&maxDuration, "max-duration", 0, "override the plan's duration cap (0 = unlimited)")
	f.BoolVar(&verbose, "verbose", false, "verbose logging")

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		monitoring.Logger().Error().Err(err).Msg("syncrun failed")
		os.Exit(1)
	}
}
