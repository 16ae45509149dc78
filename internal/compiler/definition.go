package compiler

import (
	"slices"
	"time"

	"github.com/roach88/hunt/internal/hunt"
)

// Definition is the compiled form of a CUE hunt definition.
// It is plain data; NewPlugin turns it into an engine plugin.
type Definition struct {
	Name        string                        `json:"name,omitempty"`
	Statuses    []hunt.Status                 `json:"statuses"`
	Default     hunt.Status                   `json:"default"`
	Submittable []hunt.Status                 `json:"submittable"`
	Antecedents map[hunt.Status][]hunt.Status `json:"antecedents"`
	Puzzles     []hunt.PuzzleID               `json:"puzzles"`

	// SolvedStatus is set by a correct submission.
	SolvedStatus hunt.Status `json:"solved_status"`

	// ReleaseStatus is set by a force release. Empty disables releases.
	ReleaseStatus hunt.Status `json:"release_status,omitempty"`

	Rules      []RuleSpec     `json:"rules,omitempty"`
	Properties []PropertySpec `json:"properties,omitempty"`
	Hints      *HintSpec      `json:"hints,omitempty"`
}

// RuleSpec is "Puzzle becomes Status when When holds".
type RuleSpec struct {
	Puzzle hunt.PuzzleID `json:"puzzle"`
	Status hunt.Status   `json:"status"`
	When   Condition     `json:"when"`
}

// Condition is a conjunction of every set field.
// The zero Condition always holds.
type Condition struct {
	HuntStarted     bool                          `json:"hunt_started,omitempty"`
	AfterStart      time.Duration                 `json:"after_start,omitempty"`
	Solved          []hunt.PuzzleID               `json:"solved,omitempty"`
	Unlocked        []hunt.PuzzleID               `json:"unlocked,omitempty"`
	Status          map[hunt.PuzzleID]hunt.Status `json:"status,omitempty"`
	SolvedCount     int                           `json:"solved_count,omitempty"`
	PropertyAtLeast map[string]int64              `json:"property_at_least,omitempty"`
	All             []Condition                   `json:"all,omitempty"`
	Any             []Condition                   `json:"any,omitempty"`
	Not             *Condition                    `json:"not,omitempty"`
}

// References returns every puzzle the condition reads, in first-seen order.
func (c Condition) References() []hunt.PuzzleID {
	var out []hunt.PuzzleID
	seen := make(map[hunt.PuzzleID]bool)
	add := func(ps ...hunt.PuzzleID) {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}

	add(c.Solved...)
	add(c.Unlocked...)
	for _, p := range sortedPuzzles(c.Status) {
		add(p)
	}
	for _, sub := range c.All {
		add(sub.References()...)
	}
	for _, sub := range c.Any {
		add(sub.References()...)
	}
	if c.Not != nil {
		add(c.Not.References()...)
	}
	return out
}

// PropertySpec derives a team property.
//
// With CountStatus set the property is the number of Puzzles (all puzzles
// when empty) at that status. Otherwise Initial is written once, while the
// property is unset.
type PropertySpec struct {
	Key         string          `json:"key"`
	CountStatus hunt.Status     `json:"count_status,omitempty"`
	Puzzles     []hunt.PuzzleID `json:"puzzles,omitempty"`
	Initial     hunt.Value      `json:"-"`
}

// HintSpec names the Int property that resolved hints draw from.
type HintSpec struct {
	Property string `json:"property"`
	Initial  int64  `json:"initial"`
}

func sortedPuzzles[V any](m map[hunt.PuzzleID]V) []hunt.PuzzleID {
	keys := make([]hunt.PuzzleID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
