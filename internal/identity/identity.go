// Package identity models the session identity of the corrector client
// and the startup classification that decides where the session boots
// from.
//
// The identity has two sources: the values persisted from the previous
// session, and freshly-observed launch parameters handed over by the
// hosting system. Comparing the two detects a context change (new user or
// environment), an item change, or a plain resume.
package identity

import (
	"context"
	"errors"
	"fmt"
)

// Storage keys within the identity namespace.
const (
	keyBackendURL     = "backendUrl"
	keyReturnURL      = "returnUrl"
	keyUserKey        = "userKey"
	keyEnvironmentKey = "environmentKey"
	keyItemKey        = "itemKey"
	keyDataToken      = "dataToken"
	keyFileToken      = "fileToken"
)

// ErrIncompleteIdentity reports that required identity fields are missing
// after merging persisted and observed values. This is a misconfiguration,
// not a transient fault: the caller must not retry.
var ErrIncompleteIdentity = errors.New("incomplete session identity")

// Identity identifies who is correcting what, and how to reach the backend.
//
// UserKey, EnvironmentKey and ItemKey are stable identifiers. DataToken and
// FileToken are short-lived capabilities rotated by every remote call.
type Identity struct {
	BackendURL     string
	ReturnURL      string
	UserKey        string
	EnvironmentKey string
	ItemKey        string
	DataToken      string
	FileToken      string
}

// Change classifies a startup against the previously persisted identity.
type Change int

const (
	// ChangeNone means the same user, environment and item: resume.
	ChangeNone Change = iota
	// ChangeItem means the same context but a different correction item.
	ChangeItem
	// ChangeContext means a different user or environment; any previously
	// cached item is invalid.
	ChangeContext
)

// String returns a readable name for logging.
func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "same context and item"
	case ChangeItem:
		return "new item"
	case ChangeContext:
		return "new context"
	default:
		return fmt.Sprintf("Change(%d)", int(c))
	}
}

// Merge applies observed launch parameters over the persisted identity and
// classifies the startup.
//
// A differing user or environment forces a new context and invalidates the
// stored item key. A differing item forces a new item. Backend URL, return
// URL and data token may change without forcing a reload. Empty observed
// values leave the persisted values in place.
func Merge(stored, observed Identity) (Identity, Change) {
	merged := stored
	change := ChangeNone

	if observed.UserKey != "" && observed.UserKey != merged.UserKey {
		merged.UserKey = observed.UserKey
		merged.ItemKey = ""
		change = ChangeContext
	}
	if observed.EnvironmentKey != "" && observed.EnvironmentKey != merged.EnvironmentKey {
		merged.EnvironmentKey = observed.EnvironmentKey
		merged.ItemKey = ""
		change = ChangeContext
	}
	if observed.ItemKey != "" && observed.ItemKey != merged.ItemKey {
		merged.ItemKey = observed.ItemKey
		if change == ChangeNone {
			change = ChangeItem
		}
	}

	if observed.BackendURL != "" {
		merged.BackendURL = observed.BackendURL
	}
	if observed.ReturnURL != "" {
		merged.ReturnURL = observed.ReturnURL
	}
	if observed.DataToken != "" {
		merged.DataToken = observed.DataToken
	}
	if observed.FileToken != "" {
		merged.FileToken = observed.FileToken
	}

	return merged, change
}

// Validate checks that all fields required for remote access are present.
// Returns ErrIncompleteIdentity naming the missing fields otherwise.
func (id Identity) Validate() error {
	var missing []string
	if id.BackendURL == "" {
		missing = append(missing, "backend url")
	}
	if id.ReturnURL == "" {
		missing = append(missing, "return url")
	}
	if id.UserKey == "" {
		missing = append(missing, "user key")
	}
	if id.EnvironmentKey == "" {
		missing = append(missing, "environment key")
	}
	if id.DataToken == "" {
		missing = append(missing, "data token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", ErrIncompleteIdentity, missing)
	}
	return nil
}

// Storage is the slice of the durable local store the identity needs.
// Implemented by *store.Namespace.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Load reads the identity persisted by a previous session.
// Missing keys load as empty fields; a fresh store yields a zero identity.
func Load(ctx context.Context, storage Storage) (Identity, error) {
	var id Identity
	fields := map[string]*string{
		keyBackendURL:     &id.BackendURL,
		keyReturnURL:      &id.ReturnURL,
		keyUserKey:        &id.UserKey,
		keyEnvironmentKey: &id.EnvironmentKey,
		keyItemKey:        &id.ItemKey,
		keyDataToken:      &id.DataToken,
		keyFileToken:      &id.FileToken,
	}
	for key, field := range fields {
		value, _, err := storage.Get(ctx, key)
		if err != nil {
			return Identity{}, fmt.Errorf("load identity: %w", err)
		}
		*field = value
	}
	return id, nil
}

// SaveTokens persists rotated tokens without touching the rest of the
// identity. Called on every token rotation so a crash never loses a
// capability the backend already invalidated the predecessor of.
func SaveTokens(ctx context.Context, storage Storage, dataToken, fileToken string) error {
	if err := storage.Set(ctx, keyDataToken, dataToken); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	if err := storage.Set(ctx, keyFileToken, fileToken); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// Save persists the identity for the next session.
func Save(ctx context.Context, storage Storage, id Identity) error {
	fields := map[string]string{
		keyBackendURL:     id.BackendURL,
		keyReturnURL:      id.ReturnURL,
		keyUserKey:        id.UserKey,
		keyEnvironmentKey: id.EnvironmentKey,
		keyItemKey:        id.ItemKey,
		keyDataToken:      id.DataToken,
		keyFileToken:      id.FileToken,
	}
	for key, value := range fields {
		if err := storage.Set(ctx, key, value); err != nil {
			return fmt.Errorf("save identity: %w", err)
		}
	}
	return nil
}
