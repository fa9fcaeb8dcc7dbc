package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const levelKeysKey = "levelKeys"

// LevelsStore caches the ordered grade level table.
type LevelsStore struct {
	storage Storage
	keys    []string
	levels  []Level
}

// NewLevelsStore creates a levels store over the given namespace.
func NewLevelsStore(storage Storage) *LevelsStore {
	return &LevelsStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
// Each level is stored under its own key plus an ordered key list.
func (s *LevelsStore) LoadFromData(ctx context.Context, levels []Level) error {
	if err := s.storage.Clear(ctx); err != nil {
		return err
	}

	s.keys = make([]string, 0, len(levels))
	s.levels = make([]Level, 0, len(levels))

	for _, level := range levels {
		raw, err := json.Marshal(level)
		if err != nil {
			return fmt.Errorf("marshal level %q: %w", level.Key, err)
		}
		if err := s.storage.Set(ctx, level.Key, string(raw)); err != nil {
			return err
		}
		s.levels = append(s.levels, level)
		s.keys = append(s.keys, level.Key)
	}

	rawKeys, err := json.Marshal(s.keys)
	if err != nil {
		return fmt.Errorf("marshal level keys: %w", err)
	}
	return s.storage.Set(ctx, levelKeysKey, string(rawKeys))
}

// LoadFromStorage restores the levels persisted by a previous session,
// preserving their order.
func (s *LevelsStore) LoadFromStorage(ctx context.Context) error {
	rawKeys, ok, err := s.storage.Get(ctx, levelKeysKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(rawKeys), &keys); err != nil {
		return fmt.Errorf("unmarshal level keys: %w", err)
	}

	s.keys = keys
	s.levels = make([]Level, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.storage.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("level %q listed but not stored", key)
		}
		var level Level
		if err := json.Unmarshal([]byte(raw), &level); err != nil {
			return fmt.Errorf("unmarshal level %q: %w", key, err)
		}
		s.levels = append(s.levels, level)
	}
	return nil
}

// ClearStorage wipes the levels namespace.
func (s *LevelsStore) ClearStorage(ctx context.Context) error {
	s.keys = nil
	s.levels = nil
	return s.storage.Clear(ctx)
}

// Has reports whether a level table is loaded.
func (s *LevelsStore) Has() bool {
	return len(s.levels) > 0
}

// Levels returns the cached level table in order.
func (s *LevelsStore) Levels() []Level {
	return s.levels
}

// Get returns the level with the given key.
func (s *LevelsStore) Get(key string) (Level, bool) {
	for _, level := range s.levels {
		if level.Key == key {
			return level, true
		}
	}
	return Level{}, false
}

// GradeFor returns the level with the greatest MinPoints that is still
// less than or equal to points. The second return value is false when no
// level qualifies (or no table is loaded).
func (s *LevelsStore) GradeFor(points float64) (Level, bool) {
	var best Level
	found := false
	for _, level := range s.levels {
		if level.MinPoints <= points && (!found || level.MinPoints >= best.MinPoints) {
			best = level
			found = true
		}
	}
	return best, found
}

// GradeKeyFor returns the grade key for the given points, or the empty
// string when no level qualifies.
func (s *LevelsStore) GradeKeyFor(points float64) string {
	level, ok := s.GradeFor(points)
	if !ok {
		return ""
	}
	return level.Key
}
