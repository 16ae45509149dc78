package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/progress"
	"github.com/roach88/hunt/internal/rules"
	"github.com/roach88/hunt/internal/status"
)

// Plugin is an engine.Plugin built from a Definition.
//
// Processors:
//   - SubmissionJudged (correct, puzzle open for submission) moves the
//     puzzle to the solved status
//   - PuzzleReleased moves the puzzle to the release status, for one team
//     or every team of the run
//   - HintResolved deducts the hint cost from the hint property, never
//     below zero
type Plugin struct {
	def      *Definition
	policy   *status.Table
	rules    *rules.Set
	puzzles  map[hunt.PuzzleID]bool
	unlocked []hunt.Status
	logger   *slog.Logger
}

var (
	_ engine.Plugin        = (*Plugin)(nil)
	_ engine.PropertyKeyer = (*Plugin)(nil)
)

// PluginOption configures a Plugin.
type PluginOption func(*Plugin)

// WithLogger sets the plugin's logger.
func WithLogger(l *slog.Logger) PluginOption {
	return func(p *Plugin) {
		p.logger = l
	}
}

// NewPlugin validates def and builds its policy and rule set.
// Validation errors are returned joined.
func NewPlugin(def *Definition, opts ...PluginOption) (*Plugin, error) {
	if verrs := Validate(def); len(verrs) > 0 {
		errs := make([]error, 0, len(verrs))
		for _, ve := range verrs {
			errs = append(errs, ve)
		}
		return nil, fmt.Errorf("invalid hunt definition: %w", errors.Join(errs...))
	}

	policy, err := status.New(status.Spec{
		Statuses:    def.Statuses,
		Default:     def.Default,
		Submittable: def.Submittable,
		Antecedents: def.Antecedents,
	})
	if err != nil {
		return nil, fmt.Errorf("build status policy: %w", err)
	}

	p := &Plugin{
		def:      def,
		policy:   policy,
		rules:    rules.New(policy),
		puzzles:  make(map[hunt.PuzzleID]bool, len(def.Puzzles)),
		unlocked: append(slices.Clone(def.Submittable), def.SolvedStatus),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, pz := range def.Puzzles {
		p.puzzles[pz] = true
	}

	for _, ps := range def.Properties {
		fn := rules.InitialValue(ps.Key, ps.Initial)
		if ps.CountStatus != "" {
			fn = rules.CountStatus(ps.CountStatus, ps.Puzzles...)
		}
		if err := p.rules.Property(ps.Key, fn); err != nil {
			return nil, err
		}
	}
	if def.Hints != nil {
		if err := p.rules.Property(def.Hints.Property, rules.InitialValue(def.Hints.Property, hunt.Int(def.Hints.Initial))); err != nil {
			return nil, err
		}
	}
	for i, r := range def.Rules {
		if err := p.rules.Rule(r.Puzzle, r.Status, p.predicate(r.When)); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}

	return p, nil
}

// Definition returns the compiled definition.
func (p *Plugin) Definition() *Definition {
	return p.def
}

// Policy implements engine.Plugin.
func (p *Plugin) Policy() status.Policy {
	return p.policy
}

// Puzzles implements engine.Plugin.
func (p *Plugin) Puzzles() []hunt.PuzzleID {
	return slices.Clone(p.def.Puzzles)
}

// Calculator implements engine.Plugin.
func (p *Plugin) Calculator() engine.Calculator {
	return p.rules
}

// PropertyKeys implements engine.PropertyKeyer.
func (p *Plugin) PropertyKeys() []string {
	return p.rules.PropertyKeys()
}

// Register implements engine.Plugin.
func (p *Plugin) Register(d *event.Dispatcher, s *progress.Store) error {
	event.On(d, "submission", func(ctx context.Context, e *event.SubmissionJudged) error {
		return p.onSubmission(ctx, s, e)
	})
	if p.def.ReleaseStatus != "" {
		event.On(d, "release", func(ctx context.Context, e *event.PuzzleReleased) error {
			return p.onRelease(ctx, s, e)
		})
	}
	if p.def.Hints != nil {
		event.On(d, "hints", func(ctx context.Context, e *event.HintResolved) error {
			return p.onHint(ctx, s, e)
		})
	}
	return nil
}

func (p *Plugin) onSubmission(ctx context.Context, s *progress.Store, e *event.SubmissionJudged) error {
	if !e.Correct {
		return nil
	}
	open, err := s.CanSubmit(ctx, e.Team, e.Puzzle)
	if err != nil {
		return err
	}
	if !open {
		p.logger.Debug("submission ignored: puzzle not open",
			"team", e.Team,
			"puzzle", e.Puzzle,
		)
		return nil
	}
	_, err = s.SetVisibility(ctx, e.Team, e.Puzzle, p.def.SolvedStatus, false)
	return err
}

func (p *Plugin) onRelease(ctx context.Context, s *progress.Store, e *event.PuzzleReleased) error {
	if !p.puzzles[e.Puzzle] {
		return hunt.NewNotFound("puzzle", string(e.Puzzle))
	}

	teams := []hunt.TeamID{e.Team}
	if e.Team == "" {
		var err error
		if teams, err = s.Teams(ctx, e.Run); err != nil {
			return err
		}
	}

	for _, team := range teams {
		if _, err := s.SetVisibility(ctx, team, e.Puzzle, p.def.ReleaseStatus, false); err != nil {
			return err
		}
	}
	return nil
}

// onHint spends hint tokens. The decrement is a conditional update that is
// retried on conflict, so concurrent hints each deduct their cost.
func (p *Plugin) onHint(ctx context.Context, s *progress.Store, e *event.HintResolved) error {
	_, err := s.UpdateTeamProperty(ctx, e.Team, p.def.Hints.Property, func(cur hunt.Value) (hunt.Value, error) {
		tokens := p.def.Hints.Initial
		if v, ok := cur.(hunt.Int); ok {
			tokens = int64(v)
		}
		return hunt.Int(max(tokens-e.Cost, 0)), nil
	})
	return err
}

// predicate compiles a condition. Statuses come from the definition, so
// "solved" means SolvedStatus and "unlocked" means any submittable status
// or SolvedStatus.
func (p *Plugin) predicate(c Condition) rules.Predicate {
	var preds []rules.Predicate

	if c.HuntStarted {
		preds = append(preds, rules.HuntStarted())
	}
	if c.AfterStart > 0 {
		preds = append(preds, rules.AfterStart(c.AfterStart))
	}
	for _, pz := range c.Solved {
		preds = append(preds, rules.HasStatus(pz, p.def.SolvedStatus))
	}
	for _, pz := range c.Unlocked {
		preds = append(preds, rules.HasStatus(pz, p.unlocked...))
	}
	for _, pz := range sortedPuzzles(c.Status) {
		preds = append(preds, rules.HasStatus(pz, c.Status[pz]))
	}
	if c.SolvedCount > 0 {
		preds = append(preds, rules.StatusCount(c.SolvedCount, p.def.SolvedStatus))
	}
	keys := make([]string, 0, len(c.PropertyAtLeast))
	for k := range c.PropertyAtLeast {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		preds = append(preds, rules.PropertyAtLeast(k, c.PropertyAtLeast[k]))
	}
	for _, sub := range c.All {
		preds = append(preds, p.predicate(sub))
	}
	if len(c.Any) > 0 {
		anyOf := make([]rules.Predicate, 0, len(c.Any))
		for _, sub := range c.Any {
			anyOf = append(anyOf, p.predicate(sub))
		}
		preds = append(preds, rules.Any(anyOf...))
	}
	if c.Not != nil {
		preds = append(preds, rules.Not(p.predicate(*c.Not)))
	}

	return rules.All(preds...)
}
