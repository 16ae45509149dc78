package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/hunt/internal/hunt"
)

// EnsureRun registers a run. Idempotent via ON CONFLICT DO NOTHING.
func (s *Store) EnsureRun(ctx context.Context, run hunt.RunID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, string(run))
	if err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}
	return nil
}

// EnsureTeam registers a team as a member of run.
// Returns a NotFoundError if the run is unknown. Re-registering a team is a
// no-op; membership never moves between runs.
func (s *Store) EnsureTeam(ctx context.Context, team hunt.TeamID, run hunt.RunID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ensure team: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM runs WHERE id = ?`, string(run)); err != nil {
		return fmt.Errorf("ensure team: %w", err)
	} else if !ok {
		return hunt.NewNotFound("run", string(run))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO teams (id, run_id) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, string(team), string(run)); err != nil {
		return fmt.Errorf("ensure team: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ensure team: commit: %w", err)
	}
	return nil
}

// EnsurePuzzle registers a puzzle id. Idempotent.
func (s *Store) EnsurePuzzle(ctx context.Context, puzzle hunt.PuzzleID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO puzzles (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, string(puzzle))
	if err != nil {
		return fmt.Errorf("ensure puzzle: %w", err)
	}
	return nil
}

// Run returns a run by id, or a NotFoundError.
func (s *Store) Run(ctx context.Context, run hunt.RunID) (hunt.Run, error) {
	var startedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at FROM runs WHERE id = ?
	`, string(run)).Scan(&startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return hunt.Run{}, hunt.NewNotFound("run", string(run))
	}
	if err != nil {
		return hunt.Run{}, fmt.Errorf("read run: %w", err)
	}

	r := hunt.Run{ID: run}
	if startedAt.Valid {
		t := fromNanos(startedAt.Int64)
		r.StartedAt = &t
	}
	return r, nil
}

// TeamRun returns the run a team belongs to, or a NotFoundError.
func (s *Store) TeamRun(ctx context.Context, team hunt.TeamID) (hunt.RunID, error) {
	var run string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM teams WHERE id = ?
	`, string(team)).Scan(&run)
	if errors.Is(err, sql.ErrNoRows) {
		return "", hunt.NewNotFound("team", string(team))
	}
	if err != nil {
		return "", fmt.Errorf("read team: %w", err)
	}
	return hunt.RunID(run), nil
}

// Teams returns every team of a run, ordered by id.
// Returns an empty slice (not nil) if the run has no teams.
func (s *Store) Teams(ctx context.Context, run hunt.RunID) ([]hunt.TeamID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM teams WHERE run_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, string(run))
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	teams := []hunt.TeamID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, hunt.TeamID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// PuzzleExists reports whether a puzzle id is registered.
func (s *Store) PuzzleExists(ctx context.Context, puzzle hunt.PuzzleID) (bool, error) {
	ok, err := exists(ctx, s.db, `SELECT 1 FROM puzzles WHERE id = ?`, string(puzzle))
	if err != nil {
		return false, fmt.Errorf("check puzzle: %w", err)
	}
	return ok, nil
}

// RecordRunStart sets the run's start marker if it is unset.
// Returns true only for the caller whose update actually set it.
func (s *Store) RecordRunStart(ctx context.Context, run hunt.RunID, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET started_at = ?
		WHERE id = ? AND started_at IS NULL
	`, toNanos(at), string(run))
	if err != nil {
		return false, fmt.Errorf("record run start: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record run start: rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "already started" from "no such run".
	if ok, err := exists(ctx, s.db, `SELECT 1 FROM runs WHERE id = ?`, string(run)); err != nil {
		return false, fmt.Errorf("record run start: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("run", string(run))
	}
	return false, nil
}

// ResetRun deletes all progress of a run's teams and clears its start
// marker. Teams, puzzles and the run row itself survive.
func (s *Store) ResetRun(ctx context.Context, run hunt.RunID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset run: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM visibility_history WHERE team_id IN (SELECT id FROM teams WHERE run_id = ?)`,
		`DELETE FROM visibilities WHERE team_id IN (SELECT id FROM teams WHERE run_id = ?)`,
		`DELETE FROM team_properties WHERE team_id IN (SELECT id FROM teams WHERE run_id = ?)`,
		`UPDATE runs SET started_at = NULL WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, string(run)); err != nil {
			return fmt.Errorf("reset run: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset run: commit: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exists runs a SELECT 1 query and reports whether it produced a row.
func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
