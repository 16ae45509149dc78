package rules

import (
	"slices"
	"time"

	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/status"
)

// Predicate is a pure condition over a team snapshot.
type Predicate func(snap engine.Snapshot) bool

// Func turns an arbitrary function into a Predicate.
func Func(fn func(snap engine.Snapshot) bool) Predicate {
	return Predicate(fn)
}

// Always holds unconditionally.
func Always() Predicate {
	return func(engine.Snapshot) bool { return true }
}

// HuntStarted holds once the run's start marker is at or before now.
func HuntStarted() Predicate {
	return func(snap engine.Snapshot) bool {
		return snap.Run.Started(snap.Now)
	}
}

// AfterStart holds once d has elapsed since the run started.
func AfterStart(d time.Duration) Predicate {
	return func(snap engine.Snapshot) bool {
		if !snap.Run.Started(snap.Now) {
			return false
		}
		return snap.Now.Sub(*snap.Run.StartedAt) >= d
	}
}

// HasStatus holds if puzzle is at any of statuses.
func HasStatus(puzzle hunt.PuzzleID, statuses ...hunt.Status) Predicate {
	return func(snap engine.Snapshot) bool {
		return slices.Contains(statuses, snap.Status(puzzle))
	}
}

// Unlocked holds if puzzle is UNLOCKED or SOLVED under the standard policy.
func Unlocked(puzzle hunt.PuzzleID) Predicate {
	return HasStatus(puzzle, status.Unlocked, status.Solved)
}

// Solved holds if puzzle is SOLVED under the standard policy.
func Solved(puzzle hunt.PuzzleID) Predicate {
	return HasStatus(puzzle, status.Solved)
}

// SolvedCount holds if at least n of puzzles are SOLVED. With no puzzles,
// every puzzle in the snapshot counts.
func SolvedCount(n int, puzzles ...hunt.PuzzleID) Predicate {
	return StatusCount(n, status.Solved, puzzles...)
}

// StatusCount holds if at least n of puzzles are at st. With no puzzles,
// every puzzle in the snapshot counts.
func StatusCount(n int, st hunt.Status, puzzles ...hunt.PuzzleID) Predicate {
	count := CountStatus(st, puzzles...)
	return func(snap engine.Snapshot) bool {
		v, _ := count(snap)
		return int64(v.(hunt.Int)) >= int64(n)
	}
}

// PropertyAtLeast holds if the team property key is an Int >= n.
// A missing or non-Int property never holds.
func PropertyAtLeast(key string, n int64) Predicate {
	return func(snap engine.Snapshot) bool {
		v, ok := snap.Property(key)
		if !ok {
			return false
		}
		i, ok := v.(hunt.Int)
		return ok && int64(i) >= n
	}
}

// PropertyEquals holds if the team property key equals v.
func PropertyEquals(key string, v hunt.Value) Predicate {
	return func(snap engine.Snapshot) bool {
		got, ok := snap.Property(key)
		return ok && hunt.Equal(got, v)
	}
}

// All holds if every predicate holds. All() is true.
func All(preds ...Predicate) Predicate {
	return func(snap engine.Snapshot) bool {
		for _, p := range preds {
			if !p(snap) {
				return false
			}
		}
		return true
	}
}

// Any holds if at least one predicate holds. Any() is false.
func Any(preds ...Predicate) Predicate {
	return func(snap engine.Snapshot) bool {
		for _, p := range preds {
			if p(snap) {
				return true
			}
		}
		return false
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(snap engine.Snapshot) bool {
		return !p(snap)
	}
}
