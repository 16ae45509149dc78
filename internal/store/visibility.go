package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/hunt/internal/hunt"
)

// Visibility returns the explicit status of (team, puzzle).
// ok is false when no row has been materialized.
//
// Panics with *hunt.InvariantError if more than one row exists for the pair.
func (s *Store) Visibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (status hunt.Status, ok bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM visibilities
		WHERE team_id = ? AND puzzle_id = ?
	`, string(team), string(puzzle))
	if err != nil {
		return "", false, fmt.Errorf("read visibility: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return "", false, fmt.Errorf("scan visibility: %w", err)
		}
		found = append(found, st)
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("iterate visibility: %w", err)
	}

	switch len(found) {
	case 0:
		return "", false, nil
	case 1:
		return hunt.Status(found[0]), true, nil
	default:
		panic(&hunt.InvariantError{
			Table:   "visibilities",
			Key:     string(team) + "/" + string(puzzle),
			Message: fmt.Sprintf("%d rows for one (team, puzzle)", len(found)),
		})
	}
}

// EnsureVisibility materializes a (team, puzzle) row at the default status
// if none exists. Returns a NotFoundError for an unregistered team or puzzle.
func (s *Store) EnsureVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, def hunt.Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure visibility: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = ?`, string(team)); err != nil {
		return fmt.Errorf("ensure visibility: %w", err)
	} else if !ok {
		return hunt.NewNotFound("team", string(team))
	}
	if ok, err := exists(ctx, tx, `SELECT 1 FROM puzzles WHERE id = ?`, string(puzzle)); err != nil {
		return fmt.Errorf("ensure visibility: %w", err)
	} else if !ok {
		return hunt.NewNotFound("puzzle", string(puzzle))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO visibilities (team_id, puzzle_id, status) VALUES (?, ?, ?)
		ON CONFLICT(team_id, puzzle_id) DO NOTHING
	`, string(team), string(puzzle), string(def)); err != nil {
		return fmt.Errorf("ensure visibility: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure visibility: commit: %w", err)
	}
	return nil
}

// TransitionVisibility atomically moves (team, puzzle) to target if and only
// if its current status is one of from. On success a history row is appended
// in the same transaction and the previous status is returned.
//
// Two concurrent callers racing on the same antecedent state cannot both
// win: the UPDATE's WHERE clause is re-evaluated under the write lock and
// the loser sees zero rows affected.
//
// The history timestamp is max(at, last history timestamp for the pair), so
// history never runs backwards.
func (s *Store) TransitionVisibility(
	ctx context.Context,
	team hunt.TeamID,
	puzzle hunt.PuzzleID,
	from []hunt.Status,
	target hunt.Status,
	at time.Time,
) (previous hunt.Status, changed bool, err error) {
	if len(from) == 0 {
		return "", false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: begin tx: %w", err)
	}
	defer tx.Rollback()

	var prev string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM visibilities
		WHERE team_id = ? AND puzzle_id = ?
	`, string(team), string(puzzle)).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: read: %w", err)
	}

	args := []any{string(target), string(team), string(puzzle)}
	for _, st := range from {
		args = append(args, string(st))
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE visibilities SET status = ?
		WHERE team_id = ? AND puzzle_id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: update: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: rows affected: %w", err)
	}
	if n == 0 {
		return "", false, nil
	}
	if n > 1 {
		panic(&hunt.InvariantError{
			Table:   "visibilities",
			Key:     string(team) + "/" + string(puzzle),
			Message: fmt.Sprintf("conditional update touched %d rows", n),
		})
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO visibility_history (team_id, puzzle_id, status, at_ns)
		VALUES (?, ?, ?, MAX(?, COALESCE(
			(SELECT MAX(at_ns) FROM visibility_history WHERE team_id = ? AND puzzle_id = ?), 0)))
	`, string(team), string(puzzle), string(target), toNanos(at), string(team), string(puzzle)); err != nil {
		return "", false, fmt.Errorf("transition visibility: history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("transition visibility: commit: %w", err)
	}

	return hunt.Status(prev), true, nil
}

// Visibilities returns explicit visibility rows matching the filter,
// ordered by team then puzzle.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Visibilities(ctx context.Context, filter hunt.VisibilityFilter) ([]hunt.Visibility, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Team != "" {
		conds = append(conds, "team_id = ?")
		args = append(args, string(filter.Team))
	}
	if filter.Puzzle != "" {
		conds = append(conds, "puzzle_id = ?")
		args = append(args, string(filter.Puzzle))
	}

	query := `SELECT team_id, puzzle_id, status FROM visibilities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY team_id COLLATE BINARY ASC, puzzle_id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query visibilities: %w", err)
	}
	defer rows.Close()

	out := []hunt.Visibility{}
	for rows.Next() {
		var team, puzzle, st string
		if err := rows.Scan(&team, &puzzle, &st); err != nil {
			return nil, fmt.Errorf("scan visibility: %w", err)
		}
		out = append(out, hunt.Visibility{
			Team:   hunt.TeamID(team),
			Puzzle: hunt.PuzzleID(puzzle),
			Status: hunt.Status(st),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visibilities: %w", err)
	}
	return out, nil
}

// History returns the transition log of (team, puzzle) in ascending time.
// Returns an empty slice (not nil) if the pair never transitioned.
func (s *Store) History(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) ([]hunt.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, at_ns FROM visibility_history
		WHERE team_id = ? AND puzzle_id = ?
		ORDER BY at_ns ASC, id ASC
	`, string(team), string(puzzle))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []hunt.HistoryEntry{}
	for rows.Next() {
		var st string
		var ns int64
		if err := rows.Scan(&st, &ns); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, hunt.HistoryEntry{
			Team:   team,
			Puzzle: puzzle,
			Status: hunt.Status(st),
			At:     fromNanos(ns),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
