package event

import (
	"time"

	"github.com/roach88/hunt/internal/hunt"
)

// Kind tags an event for registry lookup.
type Kind string

// Built-in event kinds.
const (
	KindHuntStarted       Kind = "hunt_started"
	KindSubmissionJudged  Kind = "submission_judged"
	KindPuzzleReleased    Kind = "puzzle_released"
	KindTimerTick         Kind = "timer_tick"
	KindVisibilityChanged Kind = "visibility_changed"
	KindPropertyChanged   Kind = "property_changed"
	KindHintResolved      Kind = "hint_resolved"
)

// customPrefix prefixes the kind of every Custom event.
const customPrefix = "custom:"

// CustomKind returns the kind tag of a hunt-specific event name.
func CustomKind(name string) Kind {
	return Kind(customPrefix + name)
}

// Meta is stamped on every event by the dispatcher if not already set.
type Meta struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// Header exposes the metadata for stamping. Embedding Meta provides it.
func (m *Meta) Header() *Meta {
	return m
}

// Event is implemented by pointers to the event structs in this package.
type Event interface {
	Kind() Kind
	Header() *Meta
}

// HuntStarted records the hunt run's start marker being set.
type HuntStarted struct {
	Meta
	Run hunt.RunID `json:"run"`
}

// Kind implements Event.
func (*HuntStarted) Kind() Kind { return KindHuntStarted }

// SubmissionJudged records the outcome of an answer submission.
type SubmissionJudged struct {
	Meta
	Team    hunt.TeamID   `json:"team"`
	Puzzle  hunt.PuzzleID `json:"puzzle"`
	Answer  string        `json:"answer,omitempty"`
	Correct bool          `json:"correct"`
}

// Kind implements Event.
func (*SubmissionJudged) Kind() Kind { return KindSubmissionJudged }

// PuzzleReleased force-releases a puzzle, for one team or, with an empty
// Team, for every team of Run.
type PuzzleReleased struct {
	Meta
	Run    hunt.RunID    `json:"run,omitempty"`
	Team   hunt.TeamID   `json:"team,omitempty"`
	Puzzle hunt.PuzzleID `json:"puzzle"`
}

// Kind implements Event.
func (*PuzzleReleased) Kind() Kind { return KindPuzzleReleased }

// TimerTick is emitted by an external periodic source so time-based rules
// can fire. An empty Team means every team of Run.
type TimerTick struct {
	Meta
	Run  hunt.RunID  `json:"run,omitempty"`
	Team hunt.TeamID `json:"team,omitempty"`
}

// Kind implements Event.
func (*TimerTick) Kind() Kind { return KindTimerTick }

// VisibilityChanged is emitted by the progress store after every
// successful transition.
type VisibilityChanged struct {
	Meta
	Team     hunt.TeamID   `json:"team"`
	Puzzle   hunt.PuzzleID `json:"puzzle"`
	Status   hunt.Status   `json:"status"`
	Previous hunt.Status   `json:"previous"`
	External bool          `json:"external"`
}

// Kind implements Event.
func (*VisibilityChanged) Kind() Kind { return KindVisibilityChanged }

// PropertyChanged is emitted by the progress store after a team property
// write that actually changed the stored value.
type PropertyChanged struct {
	Meta
	Team  hunt.TeamID `json:"team"`
	Key   string      `json:"key"`
	Value hunt.Value  `json:"-"`
}

// Kind implements Event.
func (*PropertyChanged) Kind() Kind { return KindPropertyChanged }

// HintResolved records a hint request being answered for a team.
type HintResolved struct {
	Meta
	Team   hunt.TeamID   `json:"team"`
	Puzzle hunt.PuzzleID `json:"puzzle"`
	HintID string        `json:"hint_id"`
	Cost   int64         `json:"cost"`
}

// Kind implements Event.
func (*HintResolved) Kind() Kind { return KindHintResolved }

// Custom carries a hunt-specific event the engine knows nothing about.
type Custom struct {
	Meta
	Name    string      `json:"name"`
	Team    hunt.TeamID `json:"team,omitempty"`
	Payload hunt.Map    `json:"-"`
}

// Kind implements Event.
func (c *Custom) Kind() Kind { return CustomKind(c.Name) }

// TeamOf returns the team an event is scoped to, or "" for run-wide events.
func TeamOf(e Event) hunt.TeamID {
	switch ev := e.(type) {
	case *SubmissionJudged:
		return ev.Team
	case *PuzzleReleased:
		return ev.Team
	case *TimerTick:
		return ev.Team
	case *VisibilityChanged:
		return ev.Team
	case *PropertyChanged:
		return ev.Team
	case *HintResolved:
		return ev.Team
	case *Custom:
		return ev.Team
	default:
		return ""
	}
}
