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
	"github.com/roach88/hunt/internal/status"
)

// Config is the explicit configuration of one engine instance.
// Nothing is read from process-wide state, so independent engines can run
// side by side.
type Config struct {
	// MaxPasses caps propagation passes per team.
	// Zero means DefaultPassLimit for the plugin's shape.
	MaxPasses int

	// Clock stamps history entries, events and snapshots.
	// Default: hunt.SystemClock.
	Clock hunt.Clock

	// IDs generates event ids. Default: event.UUIDv7Generator.
	IDs event.IDGenerator

	// Logger receives engine logs. Default: slog.Default().
	Logger *slog.Logger

	// Observers see every event before any plugin processor or the
	// propagator, so they record events in dispatch order. An observer
	// error aborts the dispatch like any other processor error.
	Observers []event.Processor
}

// Engine wires a plugin, a progress store and the propagator together.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - events are processed synchronously on the caller's goroutine
//   - per-(team, puzzle) transitions are serialized by the backend
type Engine struct {
	cfg        Config
	plugin     Plugin
	backend    progress.Backend
	dispatcher *event.Dispatcher
	store      *progress.Store
	prop       *propagator
}

// New builds an engine for plugin over backend.
//
// Observers are registered first, then plugin processors, then the
// propagator, so for any event the domain handlers run before derived
// state is recomputed.
func New(cfg Config, backend progress.Backend, plugin Plugin) (*Engine, error) {
	if plugin == nil {
		return nil, newPluginError("plugin is required", nil)
	}
	if plugin.Policy() == nil {
		return nil, newPluginError("plugin has no status policy", nil)
	}
	if plugin.Calculator() == nil {
		return nil, newPluginError("plugin has no calculator", nil)
	}

	if cfg.Clock == nil {
		cfg.Clock = hunt.SystemClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = event.UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := metrics.Init(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	puzzles := slices.Clone(plugin.Puzzles())
	statuses := len(plugin.Policy().Statuses())
	derivedCap := cfg.MaxPasses <= 0
	if derivedCap {
		properties := 0
		if pk, ok := plugin.(PropertyKeyer); ok {
			properties = len(pk.PropertyKeys())
		}
		cfg.MaxPasses = DefaultPassLimit(len(puzzles), statuses, properties)
	}

	d := event.NewDispatcher(
		event.WithIDGenerator(cfg.IDs),
		event.WithClock(cfg.Clock),
		event.WithLogger(cfg.Logger),
	)
	for i, o := range cfg.Observers {
		d.Register(fmt.Sprintf("observer-%d", i), o)
	}

	s := progress.New(plugin.Policy(), backend, d,
		progress.WithClock(cfg.Clock),
		progress.WithLogger(cfg.Logger),
	)

	if err := plugin.Register(d, s); err != nil {
		return nil, newPluginError("register plugin processors", err)
	}

	prop := &propagator{
		store:     s,
		calc:      plugin.Calculator(),
		puzzles:   puzzles,
		maxPasses: cfg.MaxPasses,
		statuses:  statuses,
		adaptive:  derivedCap,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
	d.Register("propagator", prop)

	cfg.Logger.Debug("engine ready",
		"puzzles", len(puzzles),
		"statuses", statuses,
		"max_passes", cfg.MaxPasses,
		"processors", d.Len(),
	)

	return &Engine{
		cfg:        cfg,
		plugin:     plugin,
		backend:    backend,
		dispatcher: d,
		store:      s,
		prop:       prop,
	}, nil
}

// Close closes the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}

// Store returns the progress store.
func (e *Engine) Store() *progress.Store {
	return e.store
}

// Dispatcher returns the event dispatcher, for registering observers.
func (e *Engine) Dispatcher() *event.Dispatcher {
	return e.dispatcher
}

// Policy returns the plugin's status policy.
func (e *Engine) Policy() status.Policy {
	return e.plugin.Policy()
}

// Puzzles returns the hunt's puzzle set.
func (e *Engine) Puzzles() []hunt.PuzzleID {
	return slices.Clone(e.prop.puzzles)
}

// MaxPasses returns the effective propagation pass cap.
func (e *Engine) MaxPasses() int {
	return e.cfg.MaxPasses
}

// Bootstrap registers run, every plugin puzzle and the given teams.
// Idempotent.
func (e *Engine) Bootstrap(ctx context.Context, run hunt.RunID, teams ...hunt.TeamID) error {
	if err := e.store.EnsureRun(ctx, run); err != nil {
		return err
	}
	for _, puzzle := range e.prop.puzzles {
		if err := e.store.RegisterPuzzle(ctx, puzzle); err != nil {
			return err
		}
	}
	for _, team := range teams {
		if err := e.store.RegisterTeam(ctx, team, run); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTeam adds a team to an existing run.
func (e *Engine) RegisterTeam(ctx context.Context, team hunt.TeamID, run hunt.RunID) error {
	return e.store.RegisterTeam(ctx, team, run)
}

// Process dispatches an inbound event. The first processor error aborts
// dispatch and is returned.
func (e *Engine) Process(ctx context.Context, ev event.Event) error {
	return e.dispatcher.Process(ctx, ev)
}

// StartRun records the run's start marker. Only the first call returns true;
// it also dispatches HuntStarted, which propagates every team of the run.
func (e *Engine) StartRun(ctx context.Context, run hunt.RunID) (bool, error) {
	return e.store.RecordHuntRunStart(ctx, run)
}

// SetVisibility performs an externally initiated transition.
func (e *Engine) SetVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, target hunt.Status) (bool, error) {
	return e.store.SetVisibility(ctx, team, puzzle, target, true)
}

// Visibility returns the status of (team, puzzle), defaulting when unset.
func (e *Engine) Visibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (hunt.Status, error) {
	return e.store.Visibility(ctx, team, puzzle)
}

// ExplicitVisibilities returns materialized visibility rows.
func (e *Engine) ExplicitVisibilities(ctx context.Context, filter hunt.VisibilityFilter) ([]hunt.Visibility, error) {
	return e.store.ExplicitVisibilities(ctx, filter)
}

// Board returns the status of every hunt puzzle for team, in hunt order.
func (e *Engine) Board(ctx context.Context, team hunt.TeamID) ([]hunt.Visibility, error) {
	if _, err := e.store.TeamRun(ctx, team); err != nil {
		return nil, err
	}
	explicit, err := e.store.ExplicitVisibilities(ctx, hunt.VisibilityFilter{Team: team})
	if err != nil {
		return nil, err
	}
	current := make(map[hunt.PuzzleID]hunt.Status, len(explicit))
	for _, v := range explicit {
		current[v.Puzzle] = v.Status
	}

	def := e.plugin.Policy().Default()
	board := make([]hunt.Visibility, 0, len(e.prop.puzzles))
	for _, puzzle := range e.prop.puzzles {
		st, ok := current[puzzle]
		if !ok {
			st = def
		}
		board = append(board, hunt.Visibility{Team: team, Puzzle: puzzle, Status: st})
	}
	return board, nil
}

// TeamProperties returns a team's decoded properties.
func (e *Engine) TeamProperties(ctx context.Context, team hunt.TeamID) (map[string]hunt.Value, error) {
	return e.store.TeamProperties(ctx, team)
}

// VisibilityHistory returns the transition log of (team, puzzle).
func (e *Engine) VisibilityHistory(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) ([]hunt.HistoryEntry, error) {
	return e.store.VisibilityHistory(ctx, team, puzzle)
}

// RunInfo returns a run and its start marker.
func (e *Engine) RunInfo(ctx context.Context, run hunt.RunID) (hunt.Run, error) {
	return e.store.RunInfo(ctx, run)
}

// Teams returns every team of a run.
func (e *Engine) Teams(ctx context.Context, run hunt.RunID) ([]hunt.TeamID, error) {
	return e.store.Teams(ctx, run)
}

// ResetHunt wipes a run's progress. Administrative.
func (e *Engine) ResetHunt(ctx context.Context, run hunt.RunID) error {
	return e.store.ResetHunt(ctx, run)
}

// Propagate recomputes derived state for team to a fixed point.
func (e *Engine) Propagate(ctx context.Context, team hunt.TeamID) error {
	if _, err := e.store.TeamRun(ctx, team); err != nil {
		return err
	}
	return e.prop.Propagate(ctx, team)
}
