package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/roach88/hunt/internal/hunt"
)

// TeamProperties returns a team's properties as canonical JSON text.
// Never nil.
func (s *Store) TeamProperties(ctx context.Context, team hunt.TeamID) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value FROM team_properties
		WHERE team_id = $1
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

// SetTeamProperty upserts (team, key) and reports whether the stored text
// changed. Returns a NotFoundError for an unregistered team.
func (s *Store) SetTeamProperty(ctx context.Context, team hunt.TeamID, key, value string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("set team property: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = $1`, string(team)); err != nil {
		return false, fmt.Errorf("set team property: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("team", string(team))
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO team_properties (team_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (team_id, key) DO UPDATE SET value = EXCLUDED.value
		WHERE team_properties.value <> EXCLUDED.value
	`, string(team), key, value)
	if err != nil {
		return false, fmt.Errorf("set team property: upsert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("set team property: commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompareAndSetTeamProperty replaces (team, key) only while the stored text
// equals *old; a nil old inserts only when the key is unset. Concurrent
// callers queue on the row lock and the losers see zero rows affected.
func (s *Store) CompareAndSetTeamProperty(ctx context.Context, team hunt.TeamID, key string, old *string, value string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if ok, err := exists(ctx, tx, `SELECT 1 FROM teams WHERE id = $1`, string(team)); err != nil {
		return false, fmt.Errorf("compare-and-set team property: %w", err)
	} else if !ok {
		return false, hunt.NewNotFound("team", string(team))
	}

	var tag pgconn.CommandTag
	if old == nil {
		tag, err = tx.Exec(ctx, `
			INSERT INTO team_properties (team_id, key, value) VALUES ($1, $2, $3)
			ON CONFLICT (team_id, key) DO NOTHING
		`, string(team), key, value)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE team_properties SET value = $1
			WHERE team_id = $2 AND key = $3 AND value = $4
		`, value, string(team), key, *old)
	}
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("compare-and-set team property: commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
