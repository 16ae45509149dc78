package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/hunt"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context, trace assertions only
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, describe(ev))
		}
	}

	return buf.String()
}

// describe renders a trace event on one line.
func describe(e TraceEvent) string {
	parts := []string{e.Kind}
	add := func(name, v string) {
		if v != "" {
			parts = append(parts, name+"="+v)
		}
	}
	add("run", e.Run)
	add("team", e.Team)
	add("puzzle", e.Puzzle)
	add("status", e.Status)
	add("previous", e.Previous)
	add("key", e.Key)
	if e.Value != nil {
		if data, err := hunt.MarshalValue(e.Value); err == nil {
			add("value", string(data))
		}
	}
	if e.External {
		parts = append(parts, "external")
	}
	return strings.Join(parts, " ")
}

// String renders the pattern like describe renders events.
func (m EventMatch) String() string {
	te := TraceEvent{Kind: m.Kind, Team: m.Team, Puzzle: m.Puzzle, Status: m.Status, Previous: m.Previous, Key: m.Key}
	if m.External != nil {
		te.External = *m.External
	}
	return describe(te)
}

// Matches reports whether e satisfies every set field of m.
func (m EventMatch) Matches(e TraceEvent) bool {
	eq := func(want, got string) bool { return want == "" || want == got }
	return m.Kind == e.Kind &&
		eq(m.Team, e.Team) &&
		eq(m.Puzzle, e.Puzzle) &&
		eq(m.Status, e.Status) &&
		eq(m.Previous, e.Previous) &&
		eq(m.Key, e.Key) &&
		(m.External == nil || *m.External == e.External)
}

// assertTraceContains checks that some event matches the pattern.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	if slices.ContainsFunc(trace, assertion.Event.Matches) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: assertion.Event.String(),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count events match the pattern.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, e := range trace {
		if assertion.Event.Matches(e) {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %s", assertion.Count, assertion.Event),
		Actual:   fmt.Sprintf("%d occurrences", count),
		Trace:    trace,
	}
}

// assertTraceOrder checks that the patterns match events in order.
// Matches don't need to be consecutive; each pattern takes the first
// matching event after the previous pattern's match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, m := range assertion.Events {
		idx := slices.IndexFunc(trace[pos:], m.Matches)
		if idx < 0 {
			actual := fmt.Sprintf("no %s after position %d", m, pos)
			if !slices.ContainsFunc(trace, m.Matches) {
				actual = fmt.Sprintf("missing event: %s", m)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%d events in order, failed at events[%d]", len(assertion.Events), i),
				Actual:   actual,
				Trace:    trace,
			}
		}
		pos += idx + 1
	}
	return nil
}

// AssertionContext provides engine access for state assertions.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func assertStatus(actx *AssertionContext, a Assertion) error {
	got, err := actx.Engine.Visibility(actx.Ctx, hunt.TeamID(a.Team), hunt.PuzzleID(a.Puzzle))
	if err != nil {
		return err
	}
	if string(got) == a.Status {
		return nil
	}
	return &AssertionError{
		Type:     AssertStatus,
		Expected: fmt.Sprintf("%s/%s is %s", a.Team, a.Puzzle, a.Status),
		Actual:   string(got),
	}
}

func assertProperty(actx *AssertionContext, a Assertion) error {
	want, err := hunt.ValueOf(a.Value)
	if err != nil {
		return fmt.Errorf("assertion value: %w", err)
	}
	props, err := actx.Engine.TeamProperties(actx.Ctx, hunt.TeamID(a.Team))
	if err != nil {
		return err
	}

	key := hunt.NormalizeKey(a.Key)
	got, ok := props[key]
	if ok && hunt.Equal(want, got) {
		return nil
	}

	wantJSON, _ := hunt.MarshalValue(want)
	actual := "unset"
	if ok {
		data, _ := hunt.MarshalValue(got)
		actual = string(data)
	}
	return &AssertionError{
		Type:     AssertProperty,
		Expected: fmt.Sprintf("%s.%s = %s", a.Team, key, wantJSON),
		Actual:   actual,
	}
}

func assertHistory(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Engine.VisibilityHistory(actx.Ctx, hunt.TeamID(a.Team), hunt.PuzzleID(a.Puzzle))
	if err != nil {
		return err
	}
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, string(e.Status))
	}
	want := a.History
	if want == nil {
		want = []string{}
	}
	if slices.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertHistory,
		Expected: fmt.Sprintf("%s/%s history %v", a.Team, a.Puzzle, want),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides engine access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains, AssertTraceCount:
			if assertion.Event == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an event", i, assertion.Type)
			} else if assertion.Type == AssertTraceContains {
				err = assertTraceContains(result.Trace, assertion)
			} else {
				err = assertTraceCount(result.Trace, assertion)
			}
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertStatus, AssertProperty, AssertHistory:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertStatus:
				err = assertStatus(actx, assertion)
			case AssertProperty:
				err = assertProperty(actx, assertion)
			default:
				err = assertHistory(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
