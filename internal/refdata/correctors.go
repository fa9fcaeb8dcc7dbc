package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	correctorKeysKey = "correctorKeys"
	activeKeyKey     = "activeKey"
)

// CorrectorsStore caches the corrector roster of the current item and the
// locally selected active corrector.
type CorrectorsStore struct {
	storage    Storage
	keys       []string
	correctors []Corrector
	activeKey  string
}

// NewCorrectorsStore creates a correctors store over the given namespace.
func NewCorrectorsStore(storage Storage) *CorrectorsStore {
	return &CorrectorsStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
// The active corrector selection is reset.
func (s *CorrectorsStore) LoadFromData(ctx context.Context, correctors []Corrector) error {
	if err := s.storage.Clear(ctx); err != nil {
		return err
	}

	s.keys = make([]string, 0, len(correctors))
	s.correctors = make([]Corrector, 0, len(correctors))
	s.activeKey = ""

	for _, corrector := range correctors {
		raw, err := json.Marshal(corrector)
		if err != nil {
			return fmt.Errorf("marshal corrector %q: %w", corrector.Key, err)
		}
		if err := s.storage.Set(ctx, corrector.Key, string(raw)); err != nil {
			return err
		}
		s.correctors = append(s.correctors, corrector)
		s.keys = append(s.keys, corrector.Key)
	}

	rawKeys, err := json.Marshal(s.keys)
	if err != nil {
		return fmt.Errorf("marshal corrector keys: %w", err)
	}
	if err := s.storage.Set(ctx, correctorKeysKey, string(rawKeys)); err != nil {
		return err
	}
	return s.storage.Set(ctx, activeKeyKey, s.activeKey)
}

// LoadFromStorage restores the roster persisted by a previous session.
func (s *CorrectorsStore) LoadFromStorage(ctx context.Context) error {
	rawKeys, ok, err := s.storage.Get(ctx, correctorKeysKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(rawKeys), &keys); err != nil {
		return fmt.Errorf("unmarshal corrector keys: %w", err)
	}

	active, _, err := s.storage.Get(ctx, activeKeyKey)
	if err != nil {
		return err
	}

	s.keys = keys
	s.activeKey = active
	s.correctors = make([]Corrector, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.storage.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("corrector %q listed but not stored", key)
		}
		var corrector Corrector
		if err := json.Unmarshal([]byte(raw), &corrector); err != nil {
			return fmt.Errorf("unmarshal corrector %q: %w", key, err)
		}
		s.correctors = append(s.correctors, corrector)
	}
	return nil
}

// ClearStorage wipes the correctors namespace.
func (s *CorrectorsStore) ClearStorage(ctx context.Context) error {
	s.keys = nil
	s.correctors = nil
	s.activeKey = ""
	return s.storage.Clear(ctx)
}

// Has reports whether any correctors are loaded.
func (s *CorrectorsStore) Has() bool {
	return len(s.correctors) > 0
}

// Correctors returns the cached roster in order.
func (s *CorrectorsStore) Correctors() []Corrector {
	return s.correctors
}

// Get returns the corrector with the given key.
func (s *CorrectorsStore) Get(key string) (Corrector, bool) {
	for _, corrector := range s.correctors {
		if corrector.Key == key {
			return corrector, true
		}
	}
	return Corrector{}, false
}

// Select marks a corrector as active and persists the selection.
func (s *CorrectorsStore) Select(ctx context.Context, key string) error {
	if _, ok := s.Get(key); !ok {
		return fmt.Errorf("unknown corrector %q", key)
	}
	s.activeKey = key
	return s.storage.Set(ctx, activeKeyKey, key)
}

// ActiveKey returns the key of the active corrector.
func (s *CorrectorsStore) ActiveKey() string {
	return s.activeKey
}

// ActiveTitle returns the title of the active corrector, or "".
func (s *CorrectorsStore) ActiveTitle() string {
	corrector, ok := s.Get(s.activeKey)
	if !ok {
		return ""
	}
	return corrector.Title
}
