package progress

import (
	"context"
	"fmt"

	"github.com/roach88/hunt/internal/event"
	"github.com/roach88/hunt/internal/hunt"
	"github.com/roach88/hunt/internal/metrics"
)

// TeamProperties returns every property of team, decoded.
// Returns an empty map (not nil) when the team has none.
func (s *Store) TeamProperties(ctx context.Context, team hunt.TeamID) (map[string]hunt.Value, error) {
	raw, err := s.backend.TeamProperties(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("get team properties: %w", err)
	}

	out := make(map[string]hunt.Value, len(raw))
	for key, text := range raw {
		v, err := hunt.UnmarshalValue([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("get team properties: decode %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

// SetTeamProperty writes value under the NFC form of key.
//
// Values are compared by canonical encoding: writing a value equal to the
// stored one returns false and dispatches nothing. On change,
// PropertyChanged is dispatched before returning true.
func (s *Store) SetTeamProperty(ctx context.Context, team hunt.TeamID, key string, value hunt.Value) (bool, error) {
	key = hunt.NormalizeKey(key)
	if key == "" {
		return false, fmt.Errorf("set team property: empty key")
	}

	data, err := hunt.MarshalValue(value)
	if err != nil {
		return false, fmt.Errorf("set team property %q: %w", key, err)
	}

	changed, err := s.backend.SetTeamProperty(ctx, team, key, string(data))
	if err != nil {
		return false, fmt.Errorf("set team property %q: %w", key, err)
	}
	if !changed {
		return false, nil
	}
	return true, s.propertyChanged(ctx, team, key, value, data)
}

// CompareAndSetTeamProperty writes value only while the stored value is
// canonically equal to old, or while the key is unset when old is nil.
// Returns false without writing when value equals old, and false when a
// concurrent writer changed the property first.
func (s *Store) CompareAndSetTeamProperty(ctx context.Context, team hunt.TeamID, key string, old, value hunt.Value) (bool, error) {
	key = hunt.NormalizeKey(key)
	if key == "" {
		return false, fmt.Errorf("compare-and-set team property: empty key")
	}

	data, err := hunt.MarshalValue(value)
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property %q: %w", key, err)
	}

	var expect *string
	if old != nil {
		prev, err := hunt.MarshalValue(old)
		if err != nil {
			return false, fmt.Errorf("compare-and-set team property %q: %w", key, err)
		}
		if string(prev) == string(data) {
			return false, nil
		}
		text := string(prev)
		expect = &text
	}

	return s.compareAndSet(ctx, team, key, expect, value, data)
}

func (s *Store) compareAndSet(ctx context.Context, team hunt.TeamID, key string, expect *string, value hunt.Value, data []byte) (bool, error) {
	changed, err := s.backend.CompareAndSetTeamProperty(ctx, team, key, expect, string(data))
	if err != nil {
		return false, fmt.Errorf("compare-and-set team property %q: %w", key, err)
	}
	if !changed {
		return false, nil
	}
	return true, s.propertyChanged(ctx, team, key, value, data)
}

// UpdateTeamProperty applies fn to the current value of key (nil when
// unset) and stores the result, retrying from a fresh read whenever a
// concurrent writer wins. Returns false when fn leaves the value unchanged.
func (s *Store) UpdateTeamProperty(ctx context.Context, team hunt.TeamID, key string, fn func(cur hunt.Value) (hunt.Value, error)) (bool, error) {
	key = hunt.NormalizeKey(key)
	if key == "" {
		return false, fmt.Errorf("update team property: empty key")
	}
	for {
		raw, err := s.backend.TeamProperties(ctx, team)
		if err != nil {
			return false, fmt.Errorf("update team property %q: %w", key, err)
		}

		var cur hunt.Value
		text, set := raw[key]
		if set {
			if cur, err = hunt.UnmarshalValue([]byte(text)); err != nil {
				return false, fmt.Errorf("update team property %q: %w", key, err)
			}
		}

		next, err := fn(cur)
		if err != nil {
			return false, err
		}
		data, err := hunt.MarshalValue(next)
		if err != nil {
			return false, fmt.Errorf("update team property %q: %w", key, err)
		}
		if set && string(data) == text {
			return false, nil
		}

		var expect *string
		if set {
			expect = &text
		}
		changed, err := s.compareAndSet(ctx, team, key, expect, next, data)
		if err != nil || changed {
			return changed, err
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		s.logger.Debug("team property update lost a race, retrying",
			"team", team,
			"key", key,
		)
	}
}

// propertyChanged records and dispatches a committed property change.
func (s *Store) propertyChanged(ctx context.Context, team hunt.TeamID, key string, value hunt.Value, data []byte) error {
	metrics.RecordPropertyUpdate(ctx, string(team), key)
	s.logger.Debug("team property changed",
		"team", team,
		"key", key,
		"value", string(data),
	)

	return s.dispatcher.Process(ctx, &event.PropertyChanged{
		Team:  team,
		Key:   key,
		Value: value,
	})
}
