package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
)

// TransitionResult is the output of every command that may move a puzzle.
type TransitionResult struct {
	Team    hunt.TeamID   `json:"team,omitempty"`
	Puzzle  hunt.PuzzleID `json:"puzzle"`
	Status  hunt.Status   `json:"status,omitempty"`
	Changed bool          `json:"changed"`
}

// RunResult is the output of init, start and reset.
type RunResult struct {
	Run     hunt.RunID    `json:"run"`
	Teams   []hunt.TeamID `json:"teams,omitempty"`
	Puzzles int           `json:"puzzles,omitempty"`
	Changed bool          `json:"changed"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var run string
	var teams []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Register a run, its teams and the hunt's puzzles",
		Long: `Register a hunt run, its teams and every puzzle of the definition.

Safe to repeat: existing rows are kept. A team already registered to a
different run is an error.

Examples:
  hunt init --def hunt.cue --run spring --team red --team blue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				runID := s.run(run)
				ids := make([]hunt.TeamID, 0, len(teams))
				for _, t := range teams {
					ids = append(ids, hunt.TeamID(t))
				}
				if err := s.engine.Bootstrap(ctx, runID, ids...); err != nil {
					return s.fail("init", err)
				}

				result := RunResult{Run: runID, Teams: ids, Puzzles: len(s.engine.Puzzles()), Changed: true}
				if s.formatter.Format == "json" {
					return s.formatter.Success(result)
				}
				fmt.Fprintf(s.formatter.Writer, "%s Initialized run %s: %d team(s), %d puzzle(s)\n",
					checkMark(), runID, len(ids), result.Puzzles)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "run id (default from HUNT_RUN)")
	cmd.Flags().StringArrayVar(&teams, "team", nil, "team id (repeatable)")

	return cmd
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	var run string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a hunt run",
		Long: `Record the run's start marker and propagate every team.

Only the first start changes anything; later starts report unchanged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				runID := s.run(run)
				changed, err := s.engine.StartRun(ctx, runID)
				if err != nil {
					return s.fail("start", err)
				}

				result := RunResult{Run: runID, Changed: changed}
				if s.formatter.Format == "json" {
					return s.formatter.Success(result)
				}
				if changed {
					fmt.Fprintf(s.formatter.Writer, "%s Run %s started\n", checkMark(), runID)
				} else {
					fmt.Fprintf(s.formatter.Writer, "Run %s already started\n", runID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "run id (default from HUNT_RUN)")

	return cmd
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var team, puzzle, answer string
	var correct bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a judged answer submission",
		Long: `Record a judged submission. A correct submission for a puzzle that is
open for answers moves it to the definition's solved status; anything
else is recorded without changing state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if err := requireFlag(f, "team", team); err != nil {
				return err
			}
			if err := requireFlag(f, "puzzle", puzzle); err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				t, p := hunt.TeamID(team), hunt.PuzzleID(puzzle)
				if err := s.requireTeam(ctx, t); err != nil {
					return s.fail("submit", err)
				}
				before, err := s.engine.Visibility(ctx, t, p)
				if err != nil {
					return s.fail("submit", err)
				}
				if err := s.engine.Process(ctx, &event.SubmissionJudged{
					Team:    t,
					Puzzle:  p,
					Answer:  answer,
					Correct: correct,
				}); err != nil {
					return s.fail("submit", err)
				}
				return s.reportTransition(ctx, t, p, before)
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&puzzle, "puzzle", "", "puzzle id")
	cmd.Flags().StringVar(&answer, "answer", "", "submitted answer (recorded only)")
	cmd.Flags().BoolVar(&correct, "correct", false, "the answer was judged correct")

	return cmd
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(rootOpts *RootOptions) *cobra.Command {
	var run, team, puzzle string

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Force-release a puzzle",
		Long: `Move a puzzle to the definition's release status for one team or, without
--team, for every team of the run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if err := requireFlag(f, "puzzle", puzzle); err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if s.plugin.Definition().ReleaseStatus == "" {
					msg := "hunt definition has no release_status"
					_ = s.formatter.Error(ErrCodeUsage, msg, nil)
					return NewExitError(ExitCommandError, msg)
				}

				ev := &event.PuzzleReleased{Team: hunt.TeamID(team), Puzzle: hunt.PuzzleID(puzzle)}
				if team == "" {
					ev.Run = s.run(run)
				}
				if err := s.engine.Process(ctx, ev); err != nil {
					return s.fail("release", err)
				}

				result := TransitionResult{Team: ev.Team, Puzzle: ev.Puzzle, Status: s.plugin.Definition().ReleaseStatus, Changed: true}
				if s.formatter.Format == "json" {
					return s.formatter.Success(result)
				}
				target := string(ev.Run)
				if ev.Team != "" {
					target = string(ev.Team)
				}
				fmt.Fprintf(s.formatter.Writer, "%s Released %s for %s\n", checkMark(), ev.Puzzle, target)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "run id when releasing for every team (default from HUNT_RUN)")
	cmd.Flags().StringVar(&team, "team", "", "team id (default: every team of the run)")
	cmd.Flags().StringVar(&puzzle, "puzzle", "", "puzzle id")

	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	var team, puzzle, target string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a puzzle's status for a team",
		Long: `Perform an external transition. The status policy decides whether the
current status may move to the target; a refused transition exits 2 with
E_REJECTED and leaves no trace.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			for _, fl := range [][2]string{{"team", team}, {"puzzle", puzzle}, {"status", target}} {
				if err := requireFlag(f, fl[0], fl[1]); err != nil {
					return err
				}
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				t, p := hunt.TeamID(team), hunt.PuzzleID(puzzle)
				before, err := s.engine.Visibility(ctx, t, p)
				if err != nil {
					return s.fail("set", err)
				}
				changed, err := s.engine.SetVisibility(ctx, t, p, hunt.Status(target))
				if err != nil {
					return s.fail("set", err)
				}
				if !changed {
					return s.formatter.Rejected(fmt.Sprintf("%s/%s: %s → %s not allowed", t, p, before, target))
				}
				return s.reportTransition(ctx, t, p, before)
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&puzzle, "puzzle", "", "puzzle id")
	cmd.Flags().StringVar(&target, "status", "", "target status")

	return cmd
}

// NewHintCommand creates the hint command.
func NewHintCommand(rootOpts *RootOptions) *cobra.Command {
	var team, puzzle string
	var cost int64

	cmd := &cobra.Command{
		Use:           "hint",
		Short:         "Record an answered hint request",
		Long:          `Record an answered hint. The cost is deducted from the hunt's hint property, never below zero.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if err := requireFlag(f, "team", team); err != nil {
				return err
			}
			if err := requireFlag(f, "puzzle", puzzle); err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				hints := s.plugin.Definition().Hints
				if hints == nil {
					msg := "hunt definition has no hints"
					_ = s.formatter.Error(ErrCodeUsage, msg, nil)
					return NewExitError(ExitCommandError, msg)
				}

				t := hunt.TeamID(team)
				if err := s.requireTeam(ctx, t); err != nil {
					return s.fail("hint", err)
				}
				if err := s.engine.Process(ctx, &event.HintResolved{
					Team:   t,
					Puzzle: hunt.PuzzleID(puzzle),
					HintID: "hint-" + uuid.NewString(),
					Cost:   cost,
				}); err != nil {
					return s.fail("hint", err)
				}

				props, err := s.engine.TeamProperties(ctx, t)
				if err != nil {
					return s.fail("hint", err)
				}
				remaining := hunt.Native(props[hints.Property])
				if s.formatter.Format == "json" {
					return s.formatter.Success(map[string]any{"team": t, hints.Property: remaining})
				}
				fmt.Fprintf(s.formatter.Writer, "%s %s.%s = %v\n", checkMark(), t, hints.Property, remaining)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&puzzle, "puzzle", "", "puzzle id")
	cmd.Flags().Int64Var(&cost, "cost", 1, "hint cost")

	return cmd
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var run string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a run's progress",
		Long: `Delete every visibility, history entry and team property of the run's
teams and clear its start marker. Teams and puzzles stay registered.
No events are emitted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				runID := s.run(run)
				if err := s.engine.ResetHunt(ctx, runID); err != nil {
					return s.fail("reset", err)
				}
				if s.formatter.Format == "json" {
					return s.formatter.Success(RunResult{Run: runID, Changed: true})
				}
				fmt.Fprintf(s.formatter.Writer, "%s Run %s reset\n", checkMark(), runID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "run id (default from HUNT_RUN)")

	return cmd
}

// reportTransition prints the puzzle's status after a command, noting
// whether it moved from before.
func (s *session) reportTransition(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, before hunt.Status) error {
	after, err := s.engine.Visibility(ctx, team, puzzle)
	if err != nil {
		return s.fail("read visibility", err)
	}

	result := TransitionResult{Team: team, Puzzle: puzzle, Status: after, Changed: after != before}
	if s.formatter.Format == "json" {
		return s.formatter.Success(result)
	}
	if result.Changed {
		fmt.Fprintf(s.formatter.Writer, "%s %s/%s: %s → %s\n", checkMark(), team, puzzle, colorStatus(before), colorStatus(after))
	} else {
		fmt.Fprintf(s.formatter.Writer, "%s/%s: %s (unchanged)\n", team, puzzle, colorStatus(after))
	}
	return nil
}

// requireTeam returns a not-found error for an unregistered team.
func (s *session) requireTeam(ctx context.Context, team hunt.TeamID) error {
	_, err := s.engine.Store().TeamRun(ctx, team)
	return err
}
