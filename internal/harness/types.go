package harness

import (
	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
)

// TraceEvent is the deterministic projection of one dispatched event.
// Ids and timestamps are left out so traces compare across runs.
type TraceEvent struct {
	Seq      int        `json:"seq"`
	Kind     string     `json:"kind"`
	Run      string     `json:"run,omitempty"`
	Team     string     `json:"team,omitempty"`
	Puzzle   string     `json:"puzzle,omitempty"`
	Status   string     `json:"status,omitempty"`
	Previous string     `json:"previous,omitempty"`
	External bool       `json:"external,omitempty"`
	Correct  bool       `json:"correct,omitempty"`
	Key      string     `json:"key,omitempty"`
	Value    hunt.Value `json:"-"`
	Cost     int64      `json:"cost,omitempty"`
}

// traceEventOf projects e. seq is 1-based.
func traceEventOf(seq int, e event.Event) TraceEvent {
	te := TraceEvent{
		Seq:  seq,
		Kind: string(e.Kind()),
		Team: string(event.TeamOf(e)),
	}
	switch ev := e.(type) {
	case *event.HuntStarted:
		te.Run = string(ev.Run)
	case *event.SubmissionJudged:
		te.Puzzle = string(ev.Puzzle)
		te.Correct = ev.Correct
	case *event.PuzzleReleased:
		te.Run = string(ev.Run)
		te.Puzzle = string(ev.Puzzle)
	case *event.TimerTick:
		te.Run = string(ev.Run)
	case *event.VisibilityChanged:
		te.Puzzle = string(ev.Puzzle)
		te.Status = string(ev.Status)
		te.Previous = string(ev.Previous)
		te.External = ev.External
	case *event.PropertyChanged:
		te.Key = ev.Key
		te.Value = ev.Value
	case *event.HintResolved:
		te.Puzzle = string(ev.Puzzle)
		te.Cost = ev.Cost
	case *event.Custom:
		te.Key = ev.Name
		if ev.Payload != nil {
			te.Value = ev.Payload
		}
	}
	return te
}

// canonical converts the event to a hunt.Map holding only set fields.
func (e TraceEvent) canonical() hunt.Map {
	m := hunt.Map{
		"seq":  hunt.Int(e.Seq),
		"kind": hunt.String(e.Kind),
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = hunt.String(v)
		}
	}
	set("run", e.Run)
	set("team", e.Team)
	set("puzzle", e.Puzzle)
	set("status", e.Status)
	set("previous", e.Previous)
	set("key", e.Key)
	if e.External {
		m["external"] = hunt.Bool(true)
	}
	if e.Correct {
		m["correct"] = hunt.Bool(true)
	}
	if e.Value != nil {
		m["value"] = e.Value
	}
	if e.Cost != 0 {
		m["cost"] = hunt.Int(e.Cost)
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every dispatched event in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final board of every team: team -> puzzle -> status.
	State map[string]map[string]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
