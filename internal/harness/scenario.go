package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRun is the run id used when a scenario names none.
const DefaultRun = "run-1"

// Scenario defines a progression scenario: a hunt definition, the teams
// playing it, a sequence of steps and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Hunt is the path to the CUE hunt definition.
	// LoadScenario resolves it relative to the scenario file.
	Hunt string `yaml:"hunt"`

	// Run is the hunt run every team belongs to.
	Run string `yaml:"run,omitempty"`

	// Teams are registered in order before the first step.
	Teams []string `yaml:"teams"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action applied to the engine.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	Team   string `yaml:"team,omitempty"`
	Puzzle string `yaml:"puzzle,omitempty"`
	Status string `yaml:"status,omitempty"`
	Answer string `yaml:"answer,omitempty"`

	// Correct defaults to true for submit.
	Correct *bool `yaml:"correct,omitempty"`

	// Duration is a Go duration string (advance).
	Duration string `yaml:"duration,omitempty"`

	// Cost is the hint cost (hint).
	Cost int64 `yaml:"cost,omitempty"`

	// Parallel issues the same set call this many times at once.
	Parallel int `yaml:"parallel,omitempty"`

	// Expect is "changed" or "unchanged" (start, set).
	Expect string `yaml:"expect,omitempty"`

	// ExpectError is a substring of the error the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step action constants.
const (
	ActionStart     = "start"
	ActionSubmit    = "submit"
	ActionRelease   = "release"
	ActionSet       = "set"
	ActionHint      = "hint"
	ActionAdvance   = "advance"
	ActionTick      = "tick"
	ActionPropagate = "propagate"
	ActionReset     = "reset"
)

// Expect values.
const (
	ExpectChanged   = "changed"
	ExpectUnchanged = "unchanged"
)

// EventMatch selects trace events. Empty fields match anything.
type EventMatch struct {
	Kind     string `yaml:"kind"`
	Team     string `yaml:"team,omitempty"`
	Puzzle   string `yaml:"puzzle,omitempty"`
	Status   string `yaml:"status,omitempty"`
	Previous string `yaml:"previous,omitempty"`
	Key      string `yaml:"key,omitempty"`
	External *bool  `yaml:"external,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status": Team's puzzle has Status
	// - "property": Team's property Key equals Value
	// - "history": Team's puzzle moved through History, in order
	// - "trace_contains": an event matches Event
	// - "trace_count": exactly Count events match Event
	// - "trace_order": events matching Events appear in that order
	Type string `yaml:"type"`

	Team   string `yaml:"team,omitempty"`
	Puzzle string `yaml:"puzzle,omitempty"`
	Status string `yaml:"status,omitempty"`
	Key    string `yaml:"key,omitempty"`

	// Value is the expected property value, as plain YAML.
	Value any `yaml:"value,omitempty"`

	History []string `yaml:"history,omitempty"`

	Event  *EventMatch  `yaml:"event,omitempty"`
	Events []EventMatch `yaml:"events,omitempty"`
	Count  int          `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus        = "status"
	AssertProperty      = "property"
	AssertHistory       = "history"
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file, resolving the hunt
// path relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Hunt != "" && !filepath.IsAbs(scenario.Hunt) {
		scenario.Hunt = filepath.Join(filepath.Dir(path), scenario.Hunt)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Hunt == "" {
		return fmt.Errorf("hunt is required")
	}
	if _, err := os.Stat(s.Hunt); os.IsNotExist(err) {
		return fmt.Errorf("hunt file not found: %s", s.Hunt)
	}

	if len(s.Teams) == 0 {
		return fmt.Errorf("teams list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its action.
func validateStep(index int, st *Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("steps[%d]: %s is required for %s", index, field, st.Action)
		}
		return nil
	}

	var err error
	switch st.Action {
	case ActionStart, ActionTick, ActionReset:
	case ActionSubmit:
		err = firstErr(need("team", st.Team), need("puzzle", st.Puzzle))
	case ActionRelease:
		err = need("puzzle", st.Puzzle)
	case ActionSet:
		err = firstErr(need("team", st.Team), need("puzzle", st.Puzzle), need("status", st.Status))
	case ActionHint:
		err = firstErr(need("team", st.Team), need("puzzle", st.Puzzle))
	case ActionPropagate:
		err = need("team", st.Team)
	case ActionAdvance:
		if err = need("duration", st.Duration); err == nil {
			if _, perr := time.ParseDuration(st.Duration); perr != nil {
				err = fmt.Errorf("steps[%d]: invalid duration %q", index, st.Duration)
			}
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	if err != nil {
		return err
	}

	switch st.Expect {
	case "", ExpectChanged, ExpectUnchanged:
	default:
		return fmt.Errorf("steps[%d]: expect must be %q or %q", index, ExpectChanged, ExpectUnchanged)
	}
	if st.Expect != "" && st.Action != ActionStart && st.Action != ActionSet {
		return fmt.Errorf("steps[%d]: expect is only supported for start and set", index)
	}
	if st.Parallel < 0 || (st.Parallel > 1 && st.Action != ActionSet) {
		return fmt.Errorf("steps[%d]: parallel is only supported for set", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	var missing []string
	switch a.Type {
	case AssertStatus:
		missing = blank(map[string]string{"team": a.Team, "puzzle": a.Puzzle, "status": a.Status})
	case AssertProperty:
		missing = blank(map[string]string{"team": a.Team, "key": a.Key})
		if a.Value == nil {
			missing = append(missing, "value")
		}
	case AssertHistory:
		missing = blank(map[string]string{"team": a.Team, "puzzle": a.Puzzle})
	case AssertTraceContains:
		if a.Event == nil || a.Event.Kind == "" {
			missing = append(missing, "event.kind")
		}
	case AssertTraceCount:
		if a.Event == nil || a.Event.Kind == "" {
			missing = append(missing, "event.kind")
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) < 2 {
			return fmt.Errorf("assertions[%d]: at least two events are required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if len(missing) > 0 {
		return fmt.Errorf("assertions[%d]: %s required for %s", index, strings.Join(missing, ", "), a.Type)
	}
	return nil
}

// blank returns the sorted names of empty fields.
func blank(fields map[string]string) []string {
	var out []string
	for name, v := range fields {
		if v == "" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
