package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const settingsKey = "settings"

// SettingsStore caches the correction settings of the task.
type SettingsStore struct {
	storage  Storage
	settings Settings
}

// NewSettingsStore creates a settings store over the given namespace.
func NewSettingsStore(storage Storage) *SettingsStore {
	return &SettingsStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
func (s *SettingsStore) LoadFromData(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.storage.Set(ctx, settingsKey, string(raw)); err != nil {
		return err
	}
	s.settings = settings
	return nil
}

// LoadFromStorage restores the settings persisted by a previous session.
func (s *SettingsStore) LoadFromStorage(ctx context.Context) error {
	raw, ok, err := s.storage.Get(ctx, settingsKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	s.settings = settings
	return nil
}

// ClearStorage wipes the settings namespace.
func (s *SettingsStore) ClearStorage(ctx context.Context) error {
	s.settings = Settings{}
	return s.storage.Clear(ctx)
}

// Data returns the cached settings.
func (s *SettingsStore) Data() Settings {
	return s.settings
}

// MaxPoints returns the maximum points that can be given.
func (s *SettingsStore) MaxPoints() float64 {
	return s.settings.MaxPoints
}
