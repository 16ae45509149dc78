package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/hunt/internal/hunt"
)

// EnsureRun registers a run. Idempotent.
func (s *Store) EnsureRun(ctx context.Context, run hunt.RunID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, string(run))
	if err != nil {
		return fmt.Errorf("ensure run: %w", err)
	}
	return nil
}

// EnsureTeam registers a team as a member of run.
// Returns a NotFoundError if the run is unknown.
func (s *Store) EnsureTeam(ctx context.Context, team hunt.TeamID, run hunt.RunID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ensure team: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if ok, err := exists(ctx, tx, `SELECT 1 FROM runs WHERE id = $1`, string(run)); err != nil {
		return fmt.Errorf("ensure team: %w", err)
	} else if !ok {
		return hunt.NewNotFound("run", string(run))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO teams (id, run_id) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, string(team), string(run)); err != nil {
		return fmt.Errorf("ensure team: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ensure team: commit: %w", err)
	}
	return nil
}

// EnsurePuzzle registers a puzzle id. Idempotent.
func (s *Store) EnsurePuzzle(ctx context.Context, puzzle hunt.PuzzleID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO puzzles (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, string(puzzle))
	if err != nil {
		return fmt.Errorf("ensure puzzle: %w", err)
	}
	return nil
}

// Run returns a run by id, or a NotFoundError.
func (s *Store) Run(ctx context.Context, run hunt.RunID) (hunt.Run, error) {
	var startedAt *int64
	err := s.pool.QueryRow(ctx, `SELECT started_at FROM runs WHERE id = $1`, string(run)).Scan(&startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return hunt.Run{}, hunt.NewNotFound("run", string(run))
	}
	if err != nil {
		return hunt.Run{}, fmt.Errorf("read run: %w", err)
	}

	r := hunt.Run{ID: run}
	if startedAt != nil {
		t := fromNanos(*startedAt)
		r.StartedAt = &t
	}
	return r, nil
}

// TeamRun returns the run a team belongs to, or a NotFoundError.
func (s *Store) TeamRun(ctx context.Context, team hunt.TeamID) (hunt.RunID, error) {
	var run string
	err := s.pool.QueryRow(ctx, `SELECT run_id FROM teams WHERE id = $1`, string(team)).Scan(&run)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", hunt.NewNotFound("team", string(team))
	}
	if err != nil {
		return "", fmt.Errorf("read team: %w", err)
	}
	return hunt.RunID(run), nil
}

// Teams returns every team of a run ordered by id. Never nil.
func (s *Store) Teams(ctx context.Context, run hunt.RunID) ([]hunt.TeamID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM teams WHERE run_id = $1
		ORDER BY id COLLATE "C" ASC
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
	ok, err := exists(ctx, s.pool, `SELECT 1 FROM puzzles WHERE id = $1`, string(puzzle))
	if err != nil {
		return false, fmt.Errorf("check puzzle: %w", err)
	}
	return ok, nil
}

// RecordRunStart sets the run's start marker if it is unset.
// Returns true only for the caller whose update set it.
func (s *Store) RecordRunStart(ctx context.Context, run hunt.RunID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET started_at = $1
		WHERE id = $2 AND started_at IS NULL
	`, toNanos(at), string(run))
	if err != nil {
		return false, fmt.Errorf("record run start: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if ok, err := exists(ctx, s.pool, `SELECT 1 FROM runs WHERE id = $1`, string(run)); err != nil {
		return false, fmt.Errorf("record run start: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("run", string(run))
	}
	return false, nil
}

// ResetRun deletes all progress of a run's teams and clears its start marker.
func (s *Store) ResetRun(ctx context.Context, run hunt.RunID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset run: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`DELETE FROM visibility_history WHERE team_id IN (SELECT id FROM teams WHERE run_id = $1)`,
		`DELETE FROM visibilities WHERE team_id IN (SELECT id FROM teams WHERE run_id = $1)`,
		`DELETE FROM team_properties WHERE team_id IN (SELECT id FROM teams WHERE run_id = $1)`,
		`UPDATE runs SET started_at = NULL WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt, string(run)); err != nil {
			return fmt.Errorf("reset run: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset run: commit: %w", err)
	}
	return nil
}
