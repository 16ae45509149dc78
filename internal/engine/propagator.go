package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/metrics"
	"github.com/roach88/hunt/internal/progress"
)

// propagator recomputes derived state for a team until a fixed point.
//
// A pass takes a snapshot, asks the calculator for updates, applies
// property updates and, only if none changed anything, visibility updates.
// Any change starts another pass; a pass with no change ends propagation.
//
// INVARIANTS:
//   - registered after every plugin processor, so it sees the effects of
//     domain handlers for the same event
//   - a team is never propagated re-entrantly on one call chain: writes made
//     by the loop dispatch events that would re-trigger it, and the outer
//     loop re-snapshots anyway
//   - concurrent triggers on different goroutines are not serialized
type propagator struct {
	store     *progress.Store
	calc      Calculator
	puzzles   []hunt.PuzzleID
	maxPasses int
	statuses  int
	// adaptive widens the cap when the calculator proposes more property
	// keys than the plugin declared through PropertyKeyer.
	adaptive bool
	clock    hunt.Clock
	logger   *slog.Logger
}

// maxDerivedKeys bounds how far an undeclared key set can widen the
// derived pass cap, so a calculator inventing keys still fails to converge.
const maxDerivedKeys = 32

type inFlightKey struct{}

// inFlight reports whether team is already propagating on this call chain.
func inFlight(ctx context.Context, team hunt.TeamID) bool {
	teams, _ := ctx.Value(inFlightKey{}).([]hunt.TeamID)
	return slices.Contains(teams, team)
}

func withInFlight(ctx context.Context, team hunt.TeamID) context.Context {
	teams, _ := ctx.Value(inFlightKey{}).([]hunt.TeamID)
	return context.WithValue(ctx, inFlightKey{}, append(slices.Clip(teams), team))
}

// Process implements event.Processor.
func (p *propagator) Process(ctx context.Context, e event.Event) error {
	switch ev := e.(type) {
	case *event.HuntStarted:
		return p.propagateRun(ctx, ev.Run)
	case *event.TimerTick:
		return p.propagateScope(ctx, ev.Run, ev.Team)
	case *event.PuzzleReleased:
		return p.propagateScope(ctx, ev.Run, ev.Team)
	default:
		if team := event.TeamOf(e); team != "" {
			return p.Propagate(ctx, team)
		}
		return nil
	}
}

// propagateScope propagates one team if set, otherwise every team of run.
func (p *propagator) propagateScope(ctx context.Context, run hunt.RunID, team hunt.TeamID) error {
	if team != "" {
		return p.Propagate(ctx, team)
	}
	if run == "" {
		p.logger.Debug("propagation skipped: event names neither team nor run")
		return nil
	}
	return p.propagateRun(ctx, run)
}

func (p *propagator) propagateRun(ctx context.Context, run hunt.RunID) error {
	teams, err := p.store.Teams(ctx, run)
	if err != nil {
		return err
	}
	for _, team := range teams {
		if err := p.Propagate(ctx, team); err != nil {
			return err
		}
	}
	return nil
}

// Propagate runs the worklist loop for one team.
func (p *propagator) Propagate(ctx context.Context, team hunt.TeamID) error {
	if inFlight(ctx, team) {
		return nil
	}
	ctx = withInFlight(ctx, team)

	quota := NewPassQuota(p.maxPasses)
	keys := make(map[string]bool)
	for {
		if err := quota.Check(string(team)); err != nil {
			metrics.RecordNotConverged(ctx, string(team))
			p.logger.Error("propagation did not converge",
				"team", team,
				"passes", quota.Current(),
				"limit", quota.Limit(),
			)
			return err
		}
		metrics.RecordPropagationPass(ctx, string(team))

		changed, err := p.pass(ctx, team, keys)
		if err != nil {
			return err
		}
		if p.adaptive {
			quota.Raise(DefaultPassLimit(len(p.puzzles), p.statuses, min(len(keys), maxDerivedKeys)))
		}
		if !changed {
			p.logger.Debug("propagation converged",
				"team", team,
				"passes", quota.Current(),
			)
			return nil
		}
	}
}

// pass runs one snapshot-compute-apply cycle and reports whether anything
// changed. Proposed property keys are added to keys.
func (p *propagator) pass(ctx context.Context, team hunt.TeamID, keys map[string]bool) (bool, error) {
	snap, err := p.snapshot(ctx, team)
	if err != nil {
		return false, fmt.Errorf("propagate %s: %w", team, err)
	}

	updates, err := p.calc.ComputeUpdates(ctx, snap)
	if err != nil {
		return false, newCalculatorError(string(team), err)
	}

	// Property writes are conditional on the snapshot value. A write lost to
	// a concurrent processor leaves the snapshot stale, so another pass runs.
	changed := false
	for _, key := range sortedKeys(updates.Properties) {
		keys[hunt.NormalizeKey(key)] = true
		prev, _ := snap.Property(key)
		next := updates.Properties[key]
		if hunt.Equal(prev, next) {
			continue
		}
		ok, err := p.store.CompareAndSetTeamProperty(ctx, team, key, prev, next)
		if err != nil {
			return false, err
		}
		if !ok {
			p.logger.Debug("derived property raced a concurrent write",
				"team", team,
				"key", key,
			)
		}
		changed = true
	}
	if changed {
		return true, nil
	}

	for _, puzzle := range p.order(updates.Visibilities) {
		ok, err := p.store.SetVisibility(ctx, team, puzzle, updates.Visibilities[puzzle], false)
		if err != nil {
			return false, err
		}
		changed = changed || ok
	}
	return changed, nil
}

// snapshot reads the team's run, properties and full visibility board.
func (p *propagator) snapshot(ctx context.Context, team hunt.TeamID) (Snapshot, error) {
	runID, err := p.store.TeamRun(ctx, team)
	if err != nil {
		return Snapshot{}, err
	}
	run, err := p.store.RunInfo(ctx, runID)
	if err != nil {
		return Snapshot{}, err
	}
	props, err := p.store.TeamProperties(ctx, team)
	if err != nil {
		return Snapshot{}, err
	}
	explicit, err := p.store.ExplicitVisibilities(ctx, hunt.VisibilityFilter{Team: team})
	if err != nil {
		return Snapshot{}, err
	}

	def := p.store.Policy().Default()
	vis := make(map[hunt.PuzzleID]hunt.Status, len(p.puzzles))
	for _, puzzle := range p.puzzles {
		vis[puzzle] = def
	}
	for _, v := range explicit {
		vis[v.Puzzle] = v.Status
	}

	return Snapshot{
		Run:          run,
		Now:          p.clock.Now(),
		Team:         team,
		Properties:   props,
		Visibilities: vis,
	}, nil
}

// order returns the puzzles of updates in hunt order, then any unknown
// puzzles sorted, so application order is deterministic.
func (p *propagator) order(updates map[hunt.PuzzleID]hunt.Status) []hunt.PuzzleID {
	out := make([]hunt.PuzzleID, 0, len(updates))
	seen := make(map[hunt.PuzzleID]bool, len(updates))
	for _, puzzle := range p.puzzles {
		if _, ok := updates[puzzle]; ok {
			out = append(out, puzzle)
			seen[puzzle] = true
		}
	}
	var rest []hunt.PuzzleID
	for puzzle := range updates {
		if !seen[puzzle] {
			rest = append(rest, puzzle)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
