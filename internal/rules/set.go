// Package rules provides a declarative unlock calculator.
//
// A Set holds two kinds of rules. Property rules derive team properties and
// are evaluated in registration order, each seeing the values proposed by
// the rules before it. Visibility rules say "puzzle becomes S when P".
// They are evaluated status by status in policy order, and only for
// puzzles whose current status is an antecedent of S. The first status
// whose rule holds wins for that puzzle in this pass; later statuses are
// reached in later passes.
//
// Sets are immutable once handed to an engine and safe for concurrent use.
package rules

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/status"
)

type propertyRule struct {
	key string
	fn  PropertyFunc
}

type visibilityRule struct {
	puzzle hunt.PuzzleID
	target hunt.Status
	when   Predicate
}

// Set is a rule-based engine.Calculator.
type Set struct {
	policy     status.Policy
	properties []propertyRule
	visibility []visibilityRule
}

var _ engine.Calculator = (*Set)(nil)

// New returns an empty rule set for policy.
func New(policy status.Policy) *Set {
	return &Set{policy: policy}
}

// Property registers a derived property. Keys are NFC normalized.
func (s *Set) Property(key string, fn PropertyFunc) error {
	key = hunt.NormalizeKey(key)
	if key == "" {
		return errors.New("property rule: empty key")
	}
	if fn == nil {
		return fmt.Errorf("property rule %q: nil function", key)
	}
	s.properties = append(s.properties, propertyRule{key: key, fn: fn})
	return nil
}

// Rule registers "puzzle becomes target when cond".
//
// target must be allowed by the policy and have at least one antecedent,
// otherwise the rule could never fire.
func (s *Set) Rule(puzzle hunt.PuzzleID, target hunt.Status, cond Predicate) error {
	if puzzle == "" {
		return errors.New("visibility rule: empty puzzle")
	}
	if !s.policy.IsAllowed(target) {
		return fmt.Errorf("visibility rule %s -> %s: status not allowed by policy", puzzle, target)
	}
	if len(s.policy.Antecedents(target)) == 0 {
		return fmt.Errorf("visibility rule %s -> %s: status has no antecedents", puzzle, target)
	}
	if cond == nil {
		return fmt.Errorf("visibility rule %s -> %s: nil condition", puzzle, target)
	}
	s.visibility = append(s.visibility, visibilityRule{puzzle: puzzle, target: target, when: cond})
	return nil
}

// Len returns the number of registered rules of both kinds.
func (s *Set) Len() int {
	return len(s.properties) + len(s.visibility)
}

// PropertyKeys returns the distinct keys written by property rules, in
// registration order.
func (s *Set) PropertyKeys() []string {
	var keys []string
	for _, r := range s.properties {
		if !slices.Contains(keys, r.key) {
			keys = append(keys, r.key)
		}
	}
	return keys
}

// ComputeUpdates implements engine.Calculator.
func (s *Set) ComputeUpdates(ctx context.Context, snap engine.Snapshot) (engine.Updates, error) {
	if err := ctx.Err(); err != nil {
		return engine.Updates{}, err
	}
	return engine.Updates{
		Properties:   s.computeProperties(snap),
		Visibilities: s.computeVisibilities(snap),
	}, nil
}

func (s *Set) computeProperties(snap engine.Snapshot) map[string]hunt.Value {
	out := make(map[string]hunt.Value)
	if len(s.properties) == 0 {
		return out
	}

	view := snap
	view.Properties = maps.Clone(snap.Properties)
	if view.Properties == nil {
		view.Properties = make(map[string]hunt.Value)
	}

	for _, r := range s.properties {
		v, ok := r.fn(view)
		if !ok {
			continue
		}
		out[r.key] = v
		view.Properties[r.key] = v
	}
	return out
}

func (s *Set) computeVisibilities(snap engine.Snapshot) map[hunt.PuzzleID]hunt.Status {
	out := make(map[hunt.PuzzleID]hunt.Status)
	for _, target := range s.policy.Statuses() {
		from := s.policy.Antecedents(target)
		for _, r := range s.visibility {
			if r.target != target {
				continue
			}
			if _, done := out[r.puzzle]; done {
				continue
			}
			if !slices.Contains(from, snap.Status(r.puzzle)) {
				continue
			}
			if r.when(snap) {
				out[r.puzzle] = target
			}
		}
	}
	return out
}
