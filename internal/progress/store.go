// Package progress is the authoritative state store for hunt progress.
//
// It owns every read and write of team visibilities, visibility history,
// team properties and the run start marker, and it is the single place the
// antecedent-transition rule of the status policy is enforced. Successful
// changes are emitted through the event dispatcher after they are durable.
//
// Rejections are routine and reported as a false result, never an error.
// Errors mean an unknown entity (hunt.ErrNotFound), a storage fault, or a
// failure raised by an event processor reacting to the change.
package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/metrics"
	"github.com/roach88/hunt/internal/status"
)

// Store validates and applies progress changes over a Backend.
//
// Thread-safety model: every method is safe from any goroutine. Per-(team,
// puzzle) safety comes from the backend's conditional writes, not from
// locks held here.
type Store struct {
	policy     status.Policy
	backend    Backend
	dispatcher *event.Dispatcher
	clock      hunt.Clock
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for history timestamps.
// Default: hunt.SystemClock.
func WithClock(c hunt.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the store logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a progress Store. The dispatcher receives VisibilityChanged,
// PropertyChanged and HuntStarted events.
func New(policy status.Policy, backend Backend, dispatcher *event.Dispatcher, opts ...Option) *Store {
	s := &Store{
		policy:     policy,
		backend:    backend,
		dispatcher: dispatcher,
		clock:      hunt.SystemClock{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active status policy.
func (s *Store) Policy() status.Policy {
	return s.policy
}

// Visibility returns the persisted status of (team, puzzle), or the policy
// default when no row exists. Only storage faults are returned as errors.
func (s *Store) Visibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (hunt.Status, error) {
	st, ok, err := s.backend.Visibility(ctx, team, puzzle)
	if err != nil {
		return "", fmt.Errorf("get visibility: %w", err)
	}
	if !ok {
		return s.policy.Default(), nil
	}
	return st, nil
}

// SetVisibility attempts to move (team, puzzle) to target.
//
// The transition succeeds only if target is allowed by the policy and the
// current status is one of its antecedents. The row is materialized at the
// default status first, so a never-touched puzzle transitions from the
// default. Exactly one of several concurrent identical calls can succeed.
//
// On success a history entry is appended and VisibilityChanged is
// dispatched before returning true. If a processor fails, the transition
// stays committed and (true, err) is returned.
func (s *Store) SetVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, target hunt.Status, external bool) (bool, error) {
	if !s.policy.IsAllowed(target) {
		s.reject(ctx, team, puzzle, target, "not_allowed")
		return false, nil
	}

	if err := s.backend.EnsureVisibility(ctx, team, puzzle, s.policy.Default()); err != nil {
		return false, fmt.Errorf("set visibility: %w", err)
	}

	from := s.policy.Antecedents(target)
	if len(from) == 0 {
		s.reject(ctx, team, puzzle, target, "no_antecedents")
		return false, nil
	}

	prev, changed, err := s.backend.TransitionVisibility(ctx, team, puzzle, from, target, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("set visibility: %w", err)
	}
	if !changed {
		s.reject(ctx, team, puzzle, target, "antecedent_mismatch")
		return false, nil
	}

	metrics.RecordTransition(ctx, string(team), string(target), external)
	s.logger.Info("visibility changed",
		"team", team,
		"puzzle", puzzle,
		"from", prev,
		"to", target,
		"external", external,
	)

	if err := s.dispatcher.Process(ctx, &event.VisibilityChanged{
		Team:     team,
		Puzzle:   puzzle,
		Status:   target,
		Previous: prev,
		External: external,
	}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) reject(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, target hunt.Status, reason string) {
	metrics.RecordRejected(ctx, string(target), reason)
	s.logger.Debug("visibility transition rejected",
		"team", team,
		"puzzle", puzzle,
		"target", target,
		"reason", reason,
	)
}

// CanSubmit reports whether answers to puzzle are accepted for team in its
// current status.
func (s *Store) CanSubmit(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (bool, error) {
	st, err := s.Visibility(ctx, team, puzzle)
	if err != nil {
		return false, err
	}
	return s.policy.AllowsSubmission(st), nil
}

// ExplicitVisibilities returns materialized rows matching the filter.
// Pairs at the implied default are not included.
func (s *Store) ExplicitVisibilities(ctx context.Context, filter hunt.VisibilityFilter) ([]hunt.Visibility, error) {
	out, err := s.backend.Visibilities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get explicit visibilities: %w", err)
	}
	return out, nil
}

// VisibilityHistory returns every successful transition of (team, puzzle)
// in ascending time.
func (s *Store) VisibilityHistory(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) ([]hunt.HistoryEntry, error) {
	out, err := s.backend.History(ctx, team, puzzle)
	if err != nil {
		return nil, fmt.Errorf("get visibility history: %w", err)
	}
	return out, nil
}

// RecordHuntRunStart sets the run's start marker if unset and dispatches
// HuntStarted. Only the first caller gets true.
func (s *Store) RecordHuntRunStart(ctx context.Context, run hunt.RunID) (bool, error) {
	changed, err := s.backend.RecordRunStart(ctx, run, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("record hunt run start: %w", err)
	}
	if !changed {
		return false, nil
	}

	s.logger.Info("hunt run started", "run", run)
	if err := s.dispatcher.Process(ctx, &event.HuntStarted{Run: run}); err != nil {
		return true, err
	}
	return true, nil
}

// RunInfo returns a run and its start marker.
func (s *Store) RunInfo(ctx context.Context, run hunt.RunID) (hunt.Run, error) {
	r, err := s.backend.Run(ctx, run)
	if err != nil {
		return hunt.Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// TeamRun returns the run a team belongs to.
func (s *Store) TeamRun(ctx context.Context, team hunt.TeamID) (hunt.RunID, error) {
	run, err := s.backend.TeamRun(ctx, team)
	if err != nil {
		return "", fmt.Errorf("get team run: %w", err)
	}
	return run, nil
}

// Teams returns every team of a run.
func (s *Store) Teams(ctx context.Context, run hunt.RunID) ([]hunt.TeamID, error) {
	teams, err := s.backend.Teams(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// EnsureRun registers a run.
func (s *Store) EnsureRun(ctx context.Context, run hunt.RunID) error {
	if err := s.backend.EnsureRun(ctx, run); err != nil {
		return fmt.Errorf("register run: %w", err)
	}
	return nil
}

// RegisterTeam adds team to run. The run must exist.
func (s *Store) RegisterTeam(ctx context.Context, team hunt.TeamID, run hunt.RunID) error {
	if err := s.backend.EnsureTeam(ctx, team, run); err != nil {
		return fmt.Errorf("register team: %w", err)
	}
	return nil
}

// RegisterPuzzle adds a puzzle id to the registered puzzle set.
func (s *Store) RegisterPuzzle(ctx context.Context, puzzle hunt.PuzzleID) error {
	if err := s.backend.EnsurePuzzle(ctx, puzzle); err != nil {
		return fmt.Errorf("register puzzle: %w", err)
	}
	return nil
}

// ResetHunt deletes every visibility, history entry and property of the
// run's teams and clears the start marker. Administrative; emits nothing.
func (s *Store) ResetHunt(ctx context.Context, run hunt.RunID) error {
	if _, err := s.backend.Run(ctx, run); err != nil {
		return fmt.Errorf("reset hunt: %w", err)
	}
	if err := s.backend.ResetRun(ctx, run); err != nil {
		return fmt.Errorf("reset hunt: %w", err)
	}
	s.logger.Warn("hunt run reset", "run", run)
	return nil
}
