package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const taskKey = "task"

// TimeSource converts client time to server time.
// Implemented by *clock.Reconciler.
type TimeSource interface {
	ServerTime(t time.Time) int64
}

// TaskStore caches the correction task.
// The correction deadline is evaluated against server time, never against
// the raw client clock.
type TaskStore struct {
	storage Storage
	clock   TimeSource
	task    Task
	loaded  bool
}

// NewTaskStore creates a task store over the given namespace.
func NewTaskStore(storage Storage, clock TimeSource) *TaskStore {
	return &TaskStore{storage: storage, clock: clock}
}

// LoadFromData persists and caches a backend payload.
func (s *TaskStore) LoadFromData(ctx context.Context, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.storage.Set(ctx, taskKey, string(raw)); err != nil {
		return err
	}
	s.task = task
	s.loaded = true
	return nil
}

// LoadFromStorage restores the task persisted by a previous session.
func (s *TaskStore) LoadFromStorage(ctx context.Context) error {
	raw, ok, err := s.storage.Get(ctx, taskKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}
	s.task = task
	s.loaded = true
	return nil
}

// ClearStorage wipes the task namespace.
func (s *TaskStore) ClearStorage(ctx context.Context) error {
	s.task = Task{}
	s.loaded = false
	return s.storage.Clear(ctx)
}

// Data returns the cached task.
func (s *TaskStore) Data() Task {
	return s.task
}

// Loaded reports whether a task has been loaded.
func (s *TaskStore) Loaded() bool {
	return s.loaded
}

// HasCorrectionEnd reports whether the task has a correction deadline.
func (s *TaskStore) HasCorrectionEnd() bool {
	return s.task.CorrectionEnd != 0
}

// RemainingSeconds returns the remaining correction time at the given
// client time. The second return value is false when the task has no
// deadline.
func (s *TaskStore) RemainingSeconds(now time.Time) (int64, bool) {
	if !s.HasCorrectionEnd() {
		return 0, false
	}
	remaining := s.task.CorrectionEnd - s.clock.ServerTime(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CorrectionEndReached reports whether the correction window has closed at
// the given client time. A task without a deadline never closes.
func (s *TaskStore) CorrectionEndReached(now time.Time) bool {
	remaining, ok := s.RemainingSeconds(now)
	return ok && remaining == 0
}
