package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const itemKeysKey = "itemKeys"

// ItemsStore caches the ordered list of correction items in the session
// context.
type ItemsStore struct {
	storage Storage
	keys    []string
	items   []Item
}

// NewItemsStore creates an items store over the given namespace.
func NewItemsStore(storage Storage) *ItemsStore {
	return &ItemsStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
func (s *ItemsStore) LoadFromData(ctx context.Context, items []Item) error {
	if err := s.storage.Clear(ctx); err != nil {
		return err
	}

	s.keys = make([]string, 0, len(items))
	s.items = make([]Item, 0, len(items))

	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item %q: %w", item.Key, err)
		}
		if err := s.storage.Set(ctx, item.Key, string(raw)); err != nil {
			return err
		}
		s.items = append(s.items, item)
		s.keys = append(s.keys, item.Key)
	}

	rawKeys, err := json.Marshal(s.keys)
	if err != nil {
		return fmt.Errorf("marshal item keys: %w", err)
	}
	return s.storage.Set(ctx, itemKeysKey, string(rawKeys))
}

// LoadFromStorage restores the items persisted by a previous session,
// preserving their order.
func (s *ItemsStore) LoadFromStorage(ctx context.Context) error {
	rawKeys, ok, err := s.storage.Get(ctx, itemKeysKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(rawKeys), &keys); err != nil {
		return fmt.Errorf("unmarshal item keys: %w", err)
	}

	s.keys = keys
	s.items = make([]Item, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.storage.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item %q listed but not stored", key)
		}
		var item Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return fmt.Errorf("unmarshal item %q: %w", key, err)
		}
		s.items = append(s.items, item)
	}
	return nil
}

// ClearStorage wipes the items namespace.
func (s *ItemsStore) ClearStorage(ctx context.Context) error {
	s.keys = nil
	s.items = nil
	return s.storage.Clear(ctx)
}

// Has reports whether any items are loaded.
func (s *ItemsStore) Has() bool {
	return len(s.keys) > 0
}

// FirstKey returns the key of the first item, or "" when empty.
func (s *ItemsStore) FirstKey() string {
	if len(s.keys) == 0 {
		return ""
	}
	return s.keys[0]
}

// LastKey returns the key of the last item, or "" when empty.
func (s *ItemsStore) LastKey() string {
	if len(s.keys) == 0 {
		return ""
	}
	return s.keys[len(s.keys)-1]
}

// PreviousKey returns the key preceding the given key, or "" when the key
// is first or unknown.
func (s *ItemsStore) PreviousKey(key string) string {
	for i := 1; i < len(s.keys); i++ {
		if s.keys[i] == key {
			return s.keys[i-1]
		}
	}
	return ""
}

// NextKey returns the key following the given key, or "" when the key is
// last or unknown.
func (s *ItemsStore) NextKey(key string) string {
	for i := 0; i < len(s.keys)-1; i++ {
		if s.keys[i] == key {
			return s.keys[i+1]
		}
	}
	return ""
}

// Get returns the item with the given key.
func (s *ItemsStore) Get(key string) (Item, bool) {
	for _, item := range s.items {
		if item.Key == key {
			return item, true
		}
	}
	return Item{}, false
}
