package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Run      string
	Interval time.Duration
	Once     bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Emit timer ticks so time-based rules fire",
		Long: `Emit a TimerTick for the run on a fixed interval until interrupted.
Each tick propagates every team of the run, which is how after_start
rules fire. A failed tick is logged and the next one still runs.

Examples:
  hunt serve --def hunt.cue --run spring --interval 30s
  hunt serve --once`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runServe(ctx, opts, s)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run id (default from HUNT_RUN)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "tick interval (default from HUNT_TICK_INTERVAL)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "emit a single tick and exit")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, s *session) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = s.cfg.TickInterval
	}
	run := s.run(opts.Run)
	ticker := s.engine.NewTicker(run, interval)

	if opts.Once {
		if err := ticker.Tick(ctx); err != nil {
			return s.fail("tick", err)
		}
		if s.formatter.Format == "json" {
			return s.formatter.Success(RunResult{Run: run, Changed: true})
		}
		fmt.Fprintf(s.formatter.Writer, "%s Ticked run %s\n", checkMark(), run)
		return nil
	}

	s.formatter.VerboseLog("Serving run %s every %s", run, interval)
	err := ticker.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return s.fail("serve", err)
	}
	return nil
}
