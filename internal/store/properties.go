package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/hunt/internal/hunt"
)

// TeamProperties returns every property of a team as canonical JSON text,
// keyed by property key.
// Returns an empty map (not nil) if the team has no properties.
func (s *Store) TeamProperties(ctx context.Context, team hunt.TeamID) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM team_properties
		WHERE team_id = ?
		ORDER BY key COLLATE BINARY ASC
	`, string(team))
	if err != nil {
		return nil, fmt.Errorf("query team properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan team property: %w", err)
		}
		if _, dup := out[key]; dup {
			panic(&hunt.InvariantError{
				Table:   "team_properties",
				Key:     string(team) + "/" + key,
				Message: "duplicate property row",
			})
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team properties: %w", err)
	}
	return out, nil
}

// SetTeamProperty writes a canonical JSON value for (team, key).
// The row is inserted if absent and otherwise updated only when the stored
// text differs. Returns true only if the stored value actually changed.
//
// Returns a NotFoundError for an unregistered team.
func (s *Store) SetTeamProperty(ctx context.Context, team hunt.TeamID, key, value string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("set team property: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = ?`, string(team)); err != nil {
		return false, fmt.Errorf("set team property: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("team", string(team))
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO team_properties (team_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(team_id, key) DO UPDATE SET value = excluded.value
		WHERE team_properties.value <> excluded.value
	`, string(team), key, value)
	if err != nil {
		return false, fmt.Errorf("set team property: upsert: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set team property: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("set team property: commit: %w", err)
	}
	return n > 0, nil
}

// CompareAndSetTeamProperty replaces the value of (team, key) only if the
// stored text equals *old. A nil old inserts only when no row exists.
// Returns false when another writer got there first.
//
// Returns a NotFoundError for an unregistered team.
func (s *Store) CompareAndSetTeamProperty(ctx context.Context, team hunt.TeamID, key string, old *string, value string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property: begin tx: %w", err)
	}
	defer tx.Rollback()

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = ?`, string(team)); err != nil {
		return false, fmt.Errorf("compare-and-set team property: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("team", string(team))
	}

	var result sql.Result
	if old == nil {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO team_properties (team_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(team_id, key) DO NOTHING
		`, string(team), key, value)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE team_properties SET value = ?
			WHERE team_id = ? AND key = ? AND value = ?
		`, value, string(team), key, *old)
	}
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("compare-and-set team property: commit: %w", err)
	}
	return n > 0, nil
}
