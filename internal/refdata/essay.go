package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const essayKey = "essay"

// EssayStore caches the essay under correction. Read-only reference data.
type EssayStore struct {
	storage Storage
	essay   Essay
}

// NewEssayStore creates an essay store over the given namespace.
func NewEssayStore(storage Storage) *EssayStore {
	return &EssayStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
func (s *EssayStore) LoadFromData(ctx context.Context, essay Essay) error {
	raw, err := json.Marshal(essay)
	if err != nil {
		return fmt.Errorf("marshal essay: %w", err)
	}
	if err := s.storage.Set(ctx, essayKey, string(raw)); err != nil {
		return err
	}
	s.essay = essay
	return nil
}

// LoadFromStorage restores the essay persisted by a previous session.
func (s *EssayStore) LoadFromStorage(ctx context.Context) error {
	raw, ok, err := s.storage.Get(ctx, essayKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var essay Essay
	if err := json.Unmarshal([]byte(raw), &essay); err != nil {
		return fmt.Errorf("unmarshal essay: %w", err)
	}
	s.essay = essay
	return nil
}

// ClearStorage wipes the essay namespace.
func (s *EssayStore) ClearStorage(ctx context.Context) error {
	s.essay = Essay{}
	return s.storage.Clear(ctx)
}

// Data returns the cached essay.
func (s *EssayStore) Data() Essay {
	return s.essay
}
