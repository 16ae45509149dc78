package engine

import (
	"context"
	"time"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/progress"
	"github.com/roach88/hunt/internal/status"
)

// Snapshot is the read-only state a calculator sees for one team.
type Snapshot struct {
	// Run is the team's hunt run with its start marker.
	Run hunt.Run

	// Now is the engine clock reading taken for this pass.
	Now time.Time

	// Team is the team being propagated.
	Team hunt.TeamID

	// Properties are the team's decoded properties.
	Properties map[string]hunt.Value

	// Visibilities holds every puzzle of the hunt, at its explicit status or
	// the policy default.
	Visibilities map[hunt.PuzzleID]hunt.Status
}

// Status returns the status of puzzle in the snapshot.
func (s Snapshot) Status(puzzle hunt.PuzzleID) hunt.Status {
	return s.Visibilities[puzzle]
}

// Property returns a property value and whether it is set.
func (s Snapshot) Property(key string) (hunt.Value, bool) {
	v, ok := s.Properties[hunt.NormalizeKey(key)]
	return v, ok
}

// Updates is what a calculator proposes for one pass.
type Updates struct {
	Properties   map[string]hunt.Value
	Visibilities map[hunt.PuzzleID]hunt.Status
}

// Empty reports whether nothing is proposed.
func (u Updates) Empty() bool {
	return len(u.Properties) == 0 && len(u.Visibilities) == 0
}

// Calculator computes derived property and visibility updates for a team.
// It must be a pure function of the snapshot.
type Calculator interface {
	ComputeUpdates(ctx context.Context, snap Snapshot) (Updates, error)
}

// CalculatorFunc adapts a function to the Calculator interface.
type CalculatorFunc func(ctx context.Context, snap Snapshot) (Updates, error)

// ComputeUpdates implements Calculator.
func (f CalculatorFunc) ComputeUpdates(ctx context.Context, snap Snapshot) (Updates, error) {
	return f(ctx, snap)
}

// Plugin is a hunt definition: the only source of hunt-specific knowledge.
//
// The engine calls Register once during New, before registering its own
// propagator, so the plugin's processors run first for every event.
type Plugin interface {
	// Policy returns the status policy.
	Policy() status.Policy

	// Puzzles returns the hunt's puzzle set in display order.
	Puzzles() []hunt.PuzzleID

	// Register installs the plugin's event processors.
	Register(d *event.Dispatcher, s *progress.Store) error

	// Calculator returns the unlock calculator used by propagation.
	Calculator() Calculator
}

// PropertyKeyer is optionally implemented by plugins whose calculators
// write a known set of property keys. The count feeds the default pass cap.
// Without it the derived cap starts from zero keys and widens as a
// propagation sees the calculator propose keys, up to maxDerivedKeys.
// An explicit Config.MaxPasses is never widened.
type PropertyKeyer interface {
	PropertyKeys() []string
}
