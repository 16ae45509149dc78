package progress

import (
	"context"
	"time"

	"github.com/roach88/hunt/internal/hunt"
)

// Backend is the persistence contract of the progress store.
// Implemented by the SQLite store and the postgres store.
//
// Every mutation is a single conditional write: callers rely on the boolean
// result being true for at most one of several concurrent identical calls.
type Backend interface {
	EnsureRun(ctx context.Context, run hunt.RunID) error
	EnsureTeam(ctx context.Context, team hunt.TeamID, run hunt.RunID) error
	EnsurePuzzle(ctx context.Context, puzzle hunt.PuzzleID) error
	Run(ctx context.Context, run hunt.RunID) (hunt.Run, error)
	TeamRun(ctx context.Context, team hunt.TeamID) (hunt.RunID, error)
	Teams(ctx context.Context, run hunt.RunID) ([]hunt.TeamID, error)
	PuzzleExists(ctx context.Context, puzzle hunt.PuzzleID) (bool, error)
	RecordRunStart(ctx context.Context, run hunt.RunID, at time.Time) (bool, error)
	ResetRun(ctx context.Context, run hunt.RunID) error

	Visibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (hunt.Status, bool, error)
	EnsureVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, def hunt.Status) error
	TransitionVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, from []hunt.Status, target hunt.Status, at time.Time) (hunt.Status, bool, error)
	Visibilities(ctx context.Context, filter hunt.VisibilityFilter) ([]hunt.Visibility, error)
	History(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) ([]hunt.HistoryEntry, error)

	TeamProperties(ctx context.Context, team hunt.TeamID) (map[string]string, error)
	SetTeamProperty(ctx context.Context, team hunt.TeamID, key, value string) (bool, error)
	// CompareAndSetTeamProperty writes value only while the stored text is
	// old, or while the key is unset when old is nil.
	CompareAndSetTeamProperty(ctx context.Context, team hunt.TeamID, key string, old *string, value string) (bool, error)

	Close() error
}
