package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/hunt"
)

// BoardResult is a team's full board.
type BoardResult struct {
	Team       hunt.TeamID    `json:"team"`
	Puzzles    []PuzzleStatus `json:"puzzles"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PuzzleStatus is one row of a board.
type PuzzleStatus struct {
	Puzzle hunt.PuzzleID `json:"puzzle"`
	Status hunt.Status   `json:"status"`
}

// HistoryResult is the transition history of one (team, puzzle).
type HistoryResult struct {
	Team    hunt.TeamID         `json:"team"`
	Puzzle  hunt.PuzzleID       `json:"puzzle"`
	Entries []hunt.HistoryEntry `json:"entries"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var team string

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show a team's board",
		Long:          `Show the status of every puzzle for a team, in definition order, followed by the team's properties.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(rootOpts.formatter(cmd), "team", team); err != nil {
				return err
			}
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return s.showBoard(ctx, hunt.TeamID(team))
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team id")

	return cmd
}

func (s *session) showBoard(ctx context.Context, team hunt.TeamID) error {
	board, err := s.engine.Board(ctx, team)
	if err != nil {
		return s.fail("status", err)
	}
	props, err := s.engine.TeamProperties(ctx, team)
	if err != nil {
		return s.fail("status", err)
	}

	result := BoardResult{
		Team:       team,
		Puzzles:    make([]PuzzleStatus, 0, len(board)),
		Properties: make(map[string]any, len(props)),
	}
	for _, v := range board {
		result.Puzzles = append(result.Puzzles, PuzzleStatus{Puzzle: v.Puzzle, Status: v.Status})
	}
	for k, v := range props {
		result.Properties[k] = hunt.Native(v)
	}

	if s.formatter.Format == "json" {
		return s.formatter.Success(result)
	}

	w := s.formatter.Writer
	fmt.Fprintf(w, "Team %s\n", team)
	for _, p := range result.Puzzles {
		fmt.Fprintf(w, "  %-20s %s\n", p.Puzzle, colorStatus(p.Status))
	}
	if len(props) > 0 {
		fmt.Fprintln(w, "Properties:")
		for _, k := range hunt.Map(props).SortedKeys() {
			data, err := hunt.MarshalValue(props[k])
			if err != nil {
				return s.fail("status", err)
			}
			fmt.Fprintf(w, "  %s = %s\n", k, data)
		}
	}
	return nil
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var team, puzzle string

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Show a puzzle's transition history for a team",
		Long:          `Show every successful transition of one puzzle for one team, oldest first.`,
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
				entries, err := s.engine.VisibilityHistory(ctx, t, p)
				if err != nil {
					return s.fail("history", err)
				}
				if entries == nil {
					entries = []hunt.HistoryEntry{}
				}

				if s.formatter.Format == "json" {
					return s.formatter.Success(HistoryResult{Team: t, Puzzle: p, Entries: entries})
				}
				if len(entries) == 0 {
					fmt.Fprintf(s.formatter.Writer, "No history for %s/%s\n", t, p)
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(s.formatter.Writer, "%s  %s\n", e.At.UTC().Format(time.RFC3339), colorStatus(e.Status))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team id")
	cmd.Flags().StringVar(&puzzle, "puzzle", "", "puzzle id")

	return cmd
}
