package engine

// PassQuota counts propagation passes for one team and enforces the cap.
//
// Each propagation owns a fresh PassQuota. The quota is checked before
// every snapshot-compute-apply pass.
//
// For an acyclic status policy each puzzle can advance at most
// len(statuses)-1 times, so visibility-changing passes are bounded by
// puzzles × statuses. Between two of them at most one pass per property
// key can change a property. A rule set that exceeds
// (puzzles × statuses + 1) × (properties + 1) passes is cycling.
type PassQuota struct {
	limit   int
	current int
}

// NewPassQuota creates a quota allowing limit passes.
func NewPassQuota(limit int) *PassQuota {
	return &PassQuota{limit: limit}
}

// DefaultPassLimit returns the conservative cap for a hunt shape.
func DefaultPassLimit(puzzles, statuses, properties int) int {
	return (puzzles*statuses + 1) * (properties + 1)
}

// Check increments the pass counter and validates it against the limit.
//
// Returns NotConvergedError if the quota is exceeded.
func (q *PassQuota) Check(team string) error {
	q.current++
	if q.current > q.limit {
		return &NotConvergedError{
			Team:   team,
			Passes: q.current,
			Limit:  q.limit,
		}
	}
	return nil
}

// Raise lifts the limit to at least limit. It never lowers it.
func (q *PassQuota) Raise(limit int) {
	q.limit = max(q.limit, limit)
}

// Current returns the number of passes checked so far.
func (q *PassQuota) Current() int {
	return q.current
}

// Limit returns the maximum number of passes.
func (q *PassQuota) Limit() int {
	return q.limit
}
