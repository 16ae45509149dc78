package rules

import (
	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/hunt"
)

// PropertyFunc derives a team property from a snapshot. Returning false
// proposes nothing for the key.
type PropertyFunc func(snap engine.Snapshot) (hunt.Value, bool)

// CountStatus counts puzzles at st. With no puzzles, every puzzle in the
// snapshot is counted.
func CountStatus(st hunt.Status, puzzles ...hunt.PuzzleID) PropertyFunc {
	return func(snap engine.Snapshot) (hunt.Value, bool) {
		n := 0
		if len(puzzles) == 0 {
			for _, s := range snap.Visibilities {
				if s == st {
					n++
				}
			}
			return hunt.Int(n), true
		}
		for _, p := range puzzles {
			if snap.Status(p) == st {
				n++
			}
		}
		return hunt.Int(n), true
	}
}

// Constant always proposes v.
func Constant(v hunt.Value) PropertyFunc {
	return func(engine.Snapshot) (hunt.Value, bool) {
		return v, true
	}
}

// InitialValue proposes v only while the property is unset, so later
// writes by event processors are never overwritten.
func InitialValue(key string, v hunt.Value) PropertyFunc {
	return func(snap engine.Snapshot) (hunt.Value, bool) {
		if _, ok := snap.Property(key); ok {
			return nil, false
		}
		return v, true
	}
}
