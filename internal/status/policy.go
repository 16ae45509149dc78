// Package status defines the pluggable status policy of a hunt.
//
// A policy names the finite, ordered set of visibility statuses, the default
// status of a puzzle nobody has touched, which statuses accept answer
// submissions, and the antecedent relation: the statuses a puzzle may move
// FROM to reach a given status.
//
// Policies are pure and stateless. Querying an unknown status yields an
// empty result instead of an error so callers can probe freely.
package status

import (
	"fmt"
	"slices"

	"github.com/roach88/hunt/internal/hunt"
)

// Policy is the contract every hunt's status policy satisfies.
type Policy interface {
	// Statuses returns every allowed status in evaluation order.
	Statuses() []hunt.Status

	// Default returns the status implied when no explicit row exists.
	Default() hunt.Status

	// IsAllowed reports whether s is a member of the allowed set.
	IsAllowed(s hunt.Status) bool

	// AllowsSubmission reports whether answers may be submitted in status s.
	AllowsSubmission(s hunt.Status) bool

	// Antecedents returns the statuses a puzzle may transition from to reach s.
	Antecedents(s hunt.Status) []hunt.Status

	// Successors returns every status whose antecedent set contains s.
	Successors(s hunt.Status) []hunt.Status
}

// Spec is the declarative input to New.
type Spec struct {
	// Statuses lists allowed statuses in evaluation order.
	Statuses []hunt.Status

	// Default must be a member of Statuses.
	Default hunt.Status

	// Submittable lists statuses that accept submissions.
	Submittable []hunt.Status

	// Antecedents maps a target status to the statuses it may be reached from.
	// A status without an entry cannot be transitioned into.
	Antecedents map[hunt.Status][]hunt.Status
}

// Table is the map-backed Policy implementation.
type Table struct {
	order       []hunt.Status
	allowed     map[hunt.Status]bool
	def         hunt.Status
	submittable map[hunt.Status]bool
	antecedents map[hunt.Status][]hunt.Status
	successors  map[hunt.Status][]hunt.Status
}

var _ Policy = (*Table)(nil)

// New validates spec and builds a Table.
//
// Returns an error if the status list is empty or has duplicates, if the
// default is not allowed, or if any antecedent or submittable entry names
// an unknown status.
func New(spec Spec) (*Table, error) {
	if len(spec.Statuses) == 0 {
		return nil, fmt.Errorf("status policy: at least one status is required")
	}

	t := &Table{
		order:       slices.Clone(spec.Statuses),
		allowed:     make(map[hunt.Status]bool, len(spec.Statuses)),
		def:         spec.Default,
		submittable: make(map[hunt.Status]bool),
		antecedents: make(map[hunt.Status][]hunt.Status),
		successors:  make(map[hunt.Status][]hunt.Status),
	}

	for _, s := range spec.Statuses {
		if s == "" {
			return nil, fmt.Errorf("status policy: empty status name")
		}
		if t.allowed[s] {
			return nil, fmt.Errorf("status policy: duplicate status %q", s)
		}
		t.allowed[s] = true
	}

	if !t.allowed[spec.Default] {
		return nil, fmt.Errorf("status policy: default %q is not an allowed status", spec.Default)
	}

	for _, s := range spec.Submittable {
		if !t.allowed[s] {
			return nil, fmt.Errorf("status policy: submittable status %q is not allowed", s)
		}
		t.submittable[s] = true
	}

	for target, froms := range spec.Antecedents {
		if !t.allowed[target] {
			return nil, fmt.Errorf("status policy: antecedents given for unknown status %q", target)
		}
		for _, from := range froms {
			if !t.allowed[from] {
				return nil, fmt.Errorf("status policy: %q lists unknown antecedent %q", target, from)
			}
		}
		t.antecedents[target] = slices.Clone(froms)
	}

	// Successors follow policy order so callers iterate deterministically.
	for _, target := range t.order {
		for _, from := range t.antecedents[target] {
			t.successors[from] = append(t.successors[from], target)
		}
	}

	return t, nil
}

// MustNew is New that panics on an invalid spec. For package-level policies.
func MustNew(spec Spec) *Table {
	t, err := New(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Statuses implements Policy.
func (t *Table) Statuses() []hunt.Status {
	return slices.Clone(t.order)
}

// Default implements Policy.
func (t *Table) Default() hunt.Status {
	return t.def
}

// IsAllowed implements Policy.
func (t *Table) IsAllowed(s hunt.Status) bool {
	return t.allowed[s]
}

// AllowsSubmission implements Policy.
func (t *Table) AllowsSubmission(s hunt.Status) bool {
	return t.submittable[s]
}

// Antecedents implements Policy.
func (t *Table) Antecedents(s hunt.Status) []hunt.Status {
	return slices.Clone(t.antecedents[s])
}

// Successors implements Policy.
func (t *Table) Successors(s hunt.Status) []hunt.Status {
	return slices.Clone(t.successors[s])
}

// IsAntecedent reports whether from is an allowed antecedent of to.
func IsAntecedent(p Policy, from, to hunt.Status) bool {
	return slices.Contains(p.Antecedents(to), from)
}
