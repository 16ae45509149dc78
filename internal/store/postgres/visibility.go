package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/hunt/internal/hunt"
)

// Visibility returns the explicit status of (team, puzzle).
// ok is false when no row has been materialized.
func (s *Store) Visibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) (hunt.Status, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status FROM visibilities
		WHERE team_id = $1 AND puzzle_id = $2
	`, string(team), string(puzzle))
	if err != nil {
		return "", false, fmt.Errorf("read visibility: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", false, fmt.Errorf("read visibility: %w", err)
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

// EnsureVisibility materializes a row at the default status if absent.
func (s *Store) EnsureVisibility(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID, def hunt.Status) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ensure visibility: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = $1`, string(team)); err != nil {
		return fmt.Errorf("ensure visibility: %w", err)
	} else if !ok {
		return hunt.NewNotFound("team", string(team))
	}
	if ok, err := exists(ctx, tx, `SELECT 1 FROM puzzles WHERE id = $1`, string(puzzle)); err != nil {
		return fmt.Errorf("ensure visibility: %w", err)
	} else if !ok {
		return hunt.NewNotFound("puzzle", string(puzzle))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visibilities (team_id, puzzle_id, status) VALUES ($1, $2, $3)
		ON CONFLICT (team_id, puzzle_id) DO NOTHING
	`, string(team), string(puzzle), string(def)); err != nil {
		return fmt.Errorf("ensure visibility: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ensure visibility: commit: %w", err)
	}
	return nil
}

// TransitionVisibility moves (team, puzzle) to target only if its current
// status is one of from, appending history in the same transaction.
// The row is locked with FOR UPDATE so the previous status reported is the
// one the update replaced.
func (s *Store) TransitionVisibility(
	ctx context.Context,
	team hunt.TeamID,
	puzzle hunt.PuzzleID,
	from []hunt.Status,
	target hunt.Status,
	at time.Time,
) (hunt.Status, bool, error) {
	if len(from) == 0 {
		return "", false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prev string
	err = tx.QueryRow(ctx, `
		SELECT status FROM visibilities
		WHERE team_id = $1 AND puzzle_id = $2
		FOR UPDATE
	`, string(team), string(puzzle)).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: read: %w", err)
	}

	antecedents := make([]string, len(from))
	for i, st := range from {
		antecedents[i] = string(st)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE visibilities SET status = $1
		WHERE team_id = $2 AND puzzle_id = $3 AND status = ANY($4)
	`, string(target), string(team), string(puzzle), antecedents)
	if err != nil {
		return "", false, fmt.Errorf("transition visibility: update: %w", err)
	}

	switch n := tag.RowsAffected(); {
	case n == 0:
		return "", false, nil
	case n > 1:
		panic(&hunt.InvariantError{
			Table:   "visibilities",
			Key:     string(team) + "/" + string(puzzle),
			Message: "conditional update touched " + strconv.FormatInt(n, 10) + " rows",
		})
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO visibility_history (team_id, puzzle_id, status, at_ns)
		VALUES ($1, $2, $3, GREATEST($4::BIGINT, COALESCE(
			(SELECT MAX(at_ns) FROM visibility_history WHERE team_id = $1 AND puzzle_id = $2), 0)))
	`, string(team), string(puzzle), string(target), toNanos(at)); err != nil {
		return "", false, fmt.Errorf("transition visibility: history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("transition visibility: commit: %w", err)
	}
	return hunt.Status(prev), true, nil
}

// Visibilities returns explicit rows matching the filter, ordered by team
// then puzzle. Never nil.
func (s *Store) Visibilities(ctx context.Context, filter hunt.VisibilityFilter) ([]hunt.Visibility, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Team != "" {
		args = append(args, string(filter.Team))
		conds = append(conds, "team_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Puzzle != "" {
		args = append(args, string(filter.Puzzle))
		conds = append(conds, "puzzle_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT team_id, puzzle_id, status FROM visibilities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY team_id COLLATE "C" ASC, puzzle_id COLLATE "C" ASC`

	rows, err := s.pool.Query(ctx, query, args...)
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
func (s *Store) History(ctx context.Context, team hunt.TeamID, puzzle hunt.PuzzleID) ([]hunt.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, at_ns FROM visibility_history
		WHERE team_id = $1 AND puzzle_id = $2
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
