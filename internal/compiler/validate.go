package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/hunt/internal/hunt"
)

// Validation error codes (E100-E199)
const (
	// Policy errors (E101-E109)
	ErrNoStatuses         = "E101" // statuses list is empty
	ErrDuplicateStatus    = "E102" // status listed twice
	ErrUnknownStatus      = "E103" // reference to a status not in statuses
	ErrDefaultNotAllowed  = "E104" // default not in statuses
	ErrSolvedUnreachable  = "E105" // solved_status has no submittable antecedent
	ErrReleaseUnreachable = "E106" // release_status has no antecedents

	// Puzzle and rule errors (E110-E119)
	ErrNoPuzzles         = "E110" // puzzle set is empty
	ErrDuplicatePuzzle   = "E111" // puzzle listed twice
	ErrUnknownPuzzle     = "E112" // reference to a puzzle not in puzzles
	ErrUnreachableTarget = "E113" // rule target has no antecedents

	// Property errors (E120-E129)
	ErrDuplicateProperty = "E120" // property key declared twice
	ErrInvalidProperty   = "E121" // property key empty
)

// ValidationError represents a hunt definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled definition for dangling references and
// unreachable statuses. Returns all errors found (does not fail-fast).
func Validate(def *Definition) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	// Policy
	if len(def.Statuses) == 0 {
		add("statuses", ErrNoStatuses, "at least one status is required")
	}
	known := make(map[hunt.Status]bool, len(def.Statuses))
	for i, st := range def.Statuses {
		if known[st] {
			add(fmt.Sprintf("statuses[%d]", i), ErrDuplicateStatus, "duplicate status %q", st)
		}
		known[st] = true
	}
	if !known[def.Default] {
		add("default", ErrDefaultNotAllowed, "default %q is not a listed status", def.Default)
	}
	for i, st := range def.Submittable {
		if !known[st] {
			add(fmt.Sprintf("submittable[%d]", i), ErrUnknownStatus, "unknown status %q", st)
		}
	}
	for _, target := range sortedStatuses(def.Antecedents) {
		if !known[target] {
			add("antecedents."+string(target), ErrUnknownStatus, "unknown status %q", target)
		}
		for i, from := range def.Antecedents[target] {
			if !known[from] {
				add(fmt.Sprintf("antecedents.%s[%d]", target, i), ErrUnknownStatus, "unknown status %q", from)
			}
		}
	}

	switch {
	case !known[def.SolvedStatus]:
		add("solved_status", ErrUnknownStatus, "unknown status %q", def.SolvedStatus)
	case !slices.ContainsFunc(def.Antecedents[def.SolvedStatus], func(s hunt.Status) bool {
		return slices.Contains(def.Submittable, s)
	}):
		add("solved_status", ErrSolvedUnreachable,
			"%q cannot be reached from any submittable status", def.SolvedStatus)
	}

	if def.ReleaseStatus != "" {
		switch {
		case !known[def.ReleaseStatus]:
			add("release_status", ErrUnknownStatus, "unknown status %q", def.ReleaseStatus)
		case len(def.Antecedents[def.ReleaseStatus]) == 0:
			add("release_status", ErrReleaseUnreachable, "%q has no antecedents", def.ReleaseStatus)
		}
	}

	// Puzzles
	if len(def.Puzzles) == 0 {
		add("puzzles", ErrNoPuzzles, "at least one puzzle is required")
	}
	puzzles := make(map[hunt.PuzzleID]bool, len(def.Puzzles))
	for i, p := range def.Puzzles {
		if puzzles[p] {
			add(fmt.Sprintf("puzzles[%d]", i), ErrDuplicatePuzzle, "duplicate puzzle %q", p)
		}
		puzzles[p] = true
	}

	// Rules
	for i, r := range def.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if !puzzles[r.Puzzle] {
			add(field+".puzzle", ErrUnknownPuzzle, "unknown puzzle %q", r.Puzzle)
		}
		switch {
		case !known[r.Status]:
			add(field+".status", ErrUnknownStatus, "unknown status %q", r.Status)
		case len(def.Antecedents[r.Status]) == 0:
			add(field+".status", ErrUnreachableTarget, "nothing transitions into %q", r.Status)
		}
		errs = append(errs, validateCondition(r.When, field+".when", known, puzzles)...)
	}

	// Properties
	keys := make(map[string]bool)
	for i, p := range def.Properties {
		field := fmt.Sprintf("properties[%d]", i)
		if p.Key == "" {
			add(field+".key", ErrInvalidProperty, "key must be non-empty")
		}
		if keys[p.Key] {
			add(field+".key", ErrDuplicateProperty, "duplicate property %q", p.Key)
		}
		keys[p.Key] = true
		if p.CountStatus != "" && !known[p.CountStatus] {
			add(field+".count_status", ErrUnknownStatus, "unknown status %q", p.CountStatus)
		}
		for j, pz := range p.Puzzles {
			if !puzzles[pz] {
				add(fmt.Sprintf("%s.puzzles[%d]", field, j), ErrUnknownPuzzle, "unknown puzzle %q", pz)
			}
		}
	}
	if def.Hints != nil {
		if def.Hints.Property == "" {
			add("hints.property", ErrInvalidProperty, "hint property must be non-empty")
		}
		if keys[def.Hints.Property] {
			add("hints.property", ErrDuplicateProperty, "hint property %q is also a derived property", def.Hints.Property)
		}
	}

	return errs
}

func validateCondition(c Condition, field string, known map[hunt.Status]bool, puzzles map[hunt.PuzzleID]bool) []ValidationError {
	var errs []ValidationError
	checkPuzzles := func(name string, ps []hunt.PuzzleID) {
		for i, p := range ps {
			if !puzzles[p] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.%s[%d]", field, name, i),
					Message: fmt.Sprintf("unknown puzzle %q", p),
					Code:    ErrUnknownPuzzle,
				})
			}
		}
	}

	checkPuzzles("solved", c.Solved)
	checkPuzzles("unlocked", c.Unlocked)
	for _, p := range sortedPuzzles(c.Status) {
		if !puzzles[p] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.status.%s", field, p),
				Message: fmt.Sprintf("unknown puzzle %q", p),
				Code:    ErrUnknownPuzzle,
			})
		}
		if !known[c.Status[p]] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.status.%s", field, p),
				Message: fmt.Sprintf("unknown status %q", c.Status[p]),
				Code:    ErrUnknownStatus,
			})
		}
	}
	for i, sub := range c.All {
		errs = append(errs, validateCondition(sub, fmt.Sprintf("%s.all[%d]", field, i), known, puzzles)...)
	}
	for i, sub := range c.Any {
		errs = append(errs, validateCondition(sub, fmt.Sprintf("%s.any[%d]", field, i), known, puzzles)...)
	}
	if c.Not != nil {
		errs = append(errs, validateCondition(*c.Not, field+".not", known, puzzles)...)
	}
	return errs
}

func sortedStatuses[V any](m map[hunt.Status]V) []hunt.Status {
	keys := make([]hunt.Status, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
