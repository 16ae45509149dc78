package status

import "github.com/roach88/hunt/internal/hunt"

// Standard lifecycle statuses.
const (
	Invisible hunt.Status = "INVISIBLE"
	Visible   hunt.Status = "VISIBLE"
	Unlocked  hunt.Status = "UNLOCKED"
	Solved    hunt.Status = "SOLVED"
)

// Standard returns the four-status lifecycle most hunts use:
//
//	INVISIBLE -> VISIBLE -> UNLOCKED -> SOLVED
//
// UNLOCKED may also be reached straight from INVISIBLE. Nothing transitions
// into INVISIBLE. Only UNLOCKED puzzles accept submissions.
func Standard() *Table {
	return MustNew(Spec{
		Statuses:    []hunt.Status{Invisible, Visible, Unlocked, Solved},
		Default:     Invisible,
		Submittable: []hunt.Status{Unlocked},
		Antecedents: map[hunt.Status][]hunt.Status{
			Visible:  {Invisible},
			Unlocked: {Invisible, Visible},
			Solved:   {Unlocked},
		},
	})
}
