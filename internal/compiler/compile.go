// Package compiler turns CUE hunt definitions into engine plugins.
//
// A hunt definition declares the status policy, the puzzle set, the
// unlock rules and the derived team properties:
//
//	hunt: {
//		statuses: ["INVISIBLE", "VISIBLE", "UNLOCKED", "SOLVED"]
//		default:  "INVISIBLE"
//		...
//		rules: [{puzzle: "p2", status: "UNLOCKED", when: {solved: ["p1"]}}]
//	}
//
// CompileHunt parses the CUE value into a Definition, Validate checks it
// against the policy, AnalyzeCycles reports rule dependency cycles and
// NewPlugin wires a valid Definition into the engine.
package compiler

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hunt/internal/hunt"
)

// CompileString compiles CUE source and parses its top-level "hunt" field.
func CompileString(filename, src string) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	huntVal := v.LookupPath(cue.ParsePath("hunt"))
	if !huntVal.Exists() {
		return nil, &CompileError{
			Field:   "hunt",
			Message: "no hunt definition found",
			Pos:     v.Pos(),
		}
	}
	return CompileHunt(huntVal)
}

// CompileFile reads and compiles a single CUE file.
func CompileFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hunt definition: %w", err)
	}
	return CompileString(path, string(data))
}

// CompileHunt parses a CUE value into a Definition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the hunt struct itself:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	def, err := CompileHunt(v.LookupPath(cue.ParsePath("hunt")))
//
// CompileHunt only checks shapes. Cross-references (unknown statuses,
// unknown puzzles) are reported by Validate.
func CompileHunt(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{}
	var err error

	if def.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}

	statuses, err := requiredStrings(v, "statuses")
	if err != nil {
		return nil, err
	}
	def.Statuses = toStatuses(statuses)

	defaultStatus, err := requiredString(v, "default")
	if err != nil {
		return nil, err
	}
	def.Default = hunt.Status(defaultStatus)

	submittable, err := optionalStrings(v, "submittable")
	if err != nil {
		return nil, err
	}
	def.Submittable = toStatuses(submittable)

	if def.Antecedents, err = parseAntecedents(v); err != nil {
		return nil, err
	}

	puzzles, err := requiredStrings(v, "puzzles")
	if err != nil {
		return nil, err
	}
	for _, p := range puzzles {
		def.Puzzles = append(def.Puzzles, hunt.PuzzleID(p))
	}

	solved, err := requiredString(v, "solved_status")
	if err != nil {
		return nil, err
	}
	def.SolvedStatus = hunt.Status(solved)

	release, err := optionalString(v, "release_status")
	if err != nil {
		return nil, err
	}
	def.ReleaseStatus = hunt.Status(release)

	if def.Rules, err = parseRules(v); err != nil {
		return nil, err
	}
	if def.Properties, err = parseProperties(v); err != nil {
		return nil, err
	}
	if def.Hints, err = parseHints(v); err != nil {
		return nil, err
	}

	return def, nil
}

// parseAntecedents reads the antecedents struct: target status -> sources.
func parseAntecedents(v cue.Value) (map[hunt.Status][]hunt.Status, error) {
	out := make(map[hunt.Status][]hunt.Status)
	antVal := v.LookupPath(cue.ParsePath("antecedents"))
	if !antVal.Exists() {
		return out, nil
	}

	iter, err := antVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		from, err := stringList(iter.Value(), "antecedents."+iter.Selector().Unquoted())
		if err != nil {
			return nil, err
		}
		out[hunt.Status(iter.Selector().Unquoted())] = toStatuses(from)
	}
	return out, nil
}

// parseRules reads the ordered rule list.
func parseRules(v cue.Value) ([]RuleSpec, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, nil
	}

	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []RuleSpec
	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		field := fmt.Sprintf("rules[%d]", i)

		puzzle, err := requiredString(rv, "puzzle")
		if err != nil {
			return nil, prefixed(err, field)
		}
		target, err := requiredString(rv, "status")
		if err != nil {
			return nil, prefixed(err, field)
		}

		rule := RuleSpec{Puzzle: hunt.PuzzleID(puzzle), Status: hunt.Status(target)}
		whenVal := rv.LookupPath(cue.ParsePath("when"))
		if whenVal.Exists() {
			if rule.When, err = parseCondition(whenVal, field+".when"); err != nil {
				return nil, err
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseCondition reads a when struct. Every field present is AND-ed.
func parseCondition(v cue.Value, field string) (Condition, error) {
	var c Condition
	if v.IncompleteKind() != cue.StructKind {
		return c, &CompileError{Field: field, Message: "condition must be a struct", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return c, formatCUEError(err)
	}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		fv := iter.Value()
		sub := field + "." + key

		switch key {
		case "hunt_started":
			if c.HuntStarted, err = fv.Bool(); err != nil {
				return c, formatCUEError(err)
			}
		case "after_start":
			s, err := fv.String()
			if err != nil {
				return c, formatCUEError(err)
			}
			d, err := time.ParseDuration(s)
			if err != nil || d < 0 {
				return c, &CompileError{Field: sub, Message: fmt.Sprintf("invalid duration %q", s), Pos: fv.Pos()}
			}
			c.AfterStart = d
		case "solved", "unlocked":
			ps, err := stringList(fv, sub)
			if err != nil {
				return c, err
			}
			for _, p := range ps {
				if key == "solved" {
					c.Solved = append(c.Solved, hunt.PuzzleID(p))
				} else {
					c.Unlocked = append(c.Unlocked, hunt.PuzzleID(p))
				}
			}
		case "status":
			m, err := stringMap(fv, sub)
			if err != nil {
				return c, err
			}
			c.Status = make(map[hunt.PuzzleID]hunt.Status, len(m))
			for p, s := range m {
				c.Status[hunt.PuzzleID(p)] = hunt.Status(s)
			}
		case "solved_count":
			n, err := fv.Int64()
			if err != nil {
				return c, formatCUEError(err)
			}
			if n < 0 {
				return c, &CompileError{Field: sub, Message: "must not be negative", Pos: fv.Pos()}
			}
			c.SolvedCount = int(n)
		case "property_at_least":
			c.PropertyAtLeast = make(map[string]int64)
			pit, err := fv.Fields()
			if err != nil {
				return c, formatCUEError(err)
			}
			for pit.Next() {
				n, err := pit.Value().Int64()
				if err != nil {
					return c, formatCUEError(err)
				}
				c.PropertyAtLeast[hunt.NormalizeKey(pit.Selector().Unquoted())] = n
			}
		case "all", "any":
			lit, err := fv.List()
			if err != nil {
				return c, formatCUEError(err)
			}
			for i := 0; lit.Next(); i++ {
				nested, err := parseCondition(lit.Value(), fmt.Sprintf("%s[%d]", sub, i))
				if err != nil {
					return c, err
				}
				if key == "all" {
					c.All = append(c.All, nested)
				} else {
					c.Any = append(c.Any, nested)
				}
			}
		case "not":
			nested, err := parseCondition(fv, sub)
			if err != nil {
				return c, err
			}
			c.Not = &nested
		default:
			return c, &CompileError{Field: sub, Message: fmt.Sprintf("unknown condition %q", key), Pos: fv.Pos()}
		}
	}
	return c, nil
}

// parseProperties reads the derived property list.
func parseProperties(v cue.Value) ([]PropertySpec, error) {
	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return nil, nil
	}

	iter, err := propsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var props []PropertySpec
	for i := 0; iter.Next(); i++ {
		pv := iter.Value()
		field := fmt.Sprintf("properties[%d]", i)

		key, err := requiredString(pv, "key")
		if err != nil {
			return nil, prefixed(err, field)
		}
		spec := PropertySpec{Key: hunt.NormalizeKey(key)}

		count, err := optionalString(pv, "count_status")
		if err != nil {
			return nil, prefixed(err, field)
		}
		spec.CountStatus = hunt.Status(count)

		puzzles, err := optionalStrings(pv, "puzzles")
		if err != nil {
			return nil, prefixed(err, field)
		}
		for _, p := range puzzles {
			spec.Puzzles = append(spec.Puzzles, hunt.PuzzleID(p))
		}

		initVal := pv.LookupPath(cue.ParsePath("initial"))
		if initVal.Exists() {
			var native any
			if err := initVal.Decode(&native); err != nil {
				return nil, formatCUEError(err)
			}
			if spec.Initial, err = hunt.ValueOf(native); err != nil {
				return nil, &CompileError{Field: field + ".initial", Message: err.Error(), Pos: initVal.Pos()}
			}
		}

		if spec.CountStatus == "" && spec.Initial == nil {
			return nil, &CompileError{
				Field:   field,
				Message: "property needs count_status or initial",
				Pos:     pv.Pos(),
			}
		}
		props = append(props, spec)
	}
	return props, nil
}

func parseHints(v cue.Value) (*HintSpec, error) {
	hintsVal := v.LookupPath(cue.ParsePath("hints"))
	if !hintsVal.Exists() {
		return nil, nil
	}
	prop, err := requiredString(hintsVal, "property")
	if err != nil {
		return nil, prefixed(err, "hints")
	}
	spec := &HintSpec{Property: hunt.NormalizeKey(prop)}

	initVal := hintsVal.LookupPath(cue.ParsePath("initial"))
	if initVal.Exists() {
		if spec.Initial, err = initVal.Int64(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return spec, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func requiredStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	return stringList(fv, field)
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	return stringList(fv, field)
}

func stringList(v cue.Value, field string) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a list of strings", Pos: v.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringMap(v cue.Value, field string) (map[string]string, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a struct of strings", Pos: v.Pos()}
	}
	out := make(map[string]string)
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out[iter.Selector().Unquoted()] = s
	}
	return out, nil
}

func toStatuses(ss []string) []hunt.Status {
	out := make([]hunt.Status, 0, len(ss))
	for _, s := range ss {
		out = append(out, hunt.Status(s))
	}
	return out
}

// prefixed qualifies a CompileError's field with its parent path.
func prefixed(err error, parent string) error {
	if ce, ok := err.(*CompileError); ok {
		return &CompileError{Field: parent + "." + ce.Field, Message: ce.Message, Pos: ce.Pos}
	}
	return err
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
