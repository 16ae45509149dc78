package hunt

import "time"

// RunID identifies one run of the hunt.
type RunID string

// TeamID identifies a participating team.
type TeamID string

// PuzzleID identifies a puzzle within the hunt's puzzle set.
type PuzzleID string

// Status is a visibility status drawn from the active status policy.
type Status string

// Run is one instance of the competition with a single start marker.
type Run struct {
	ID        RunID      `json:"id"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Started reports whether the run has a start marker at or before now.
func (r Run) Started(now time.Time) bool {
	return r.StartedAt != nil && !r.StartedAt.After(now)
}

// Visibility is the current status of one (team, puzzle) pair.
type Visibility struct {
	Team   TeamID   `json:"team"`
	Puzzle PuzzleID `json:"puzzle"`
	Status Status   `json:"status"`
}

// HistoryEntry is one append-only record of a successful transition.
type HistoryEntry struct {
	Team   TeamID    `json:"team"`
	Puzzle PuzzleID  `json:"puzzle"`
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// VisibilityFilter narrows explicit visibility queries.
// Zero-valued fields match everything.
type VisibilityFilter struct {
	Team   TeamID
	Puzzle PuzzleID
}
