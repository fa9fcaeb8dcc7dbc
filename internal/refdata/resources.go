package refdata

import (
	"context"
	"encoding/json"
	"fmt"
)

const resourceKeysKey = "resourceKeys"

// ResourcesStore caches the resource list attached to the task.
// File resources are fetched through the signed resource URL of the
// remote session client; this store only holds the metadata.
type ResourcesStore struct {
	storage   Storage
	keys      []string
	resources []Resource
}

// NewResourcesStore creates a resources store over the given namespace.
func NewResourcesStore(storage Storage) *ResourcesStore {
	return &ResourcesStore{storage: storage}
}

// LoadFromData persists and caches a backend payload.
func (s *ResourcesStore) LoadFromData(ctx context.Context, resources []Resource) error {
	if err := s.storage.Clear(ctx); err != nil {
		return err
	}

	s.keys = make([]string, 0, len(resources))
	s.resources = make([]Resource, 0, len(resources))

	for _, resource := range resources {
		raw, err := json.Marshal(resource)
		if err != nil {
			return fmt.Errorf("marshal resource %q: %w", resource.Key, err)
		}
		if err := s.storage.Set(ctx, resource.Key, string(raw)); err != nil {
			return err
		}
		s.resources = append(s.resources, resource)
		s.keys = append(s.keys, resource.Key)
	}

	rawKeys, err := json.Marshal(s.keys)
	if err != nil {
		return fmt.Errorf("marshal resource keys: %w", err)
	}
	return s.storage.Set(ctx, resourceKeysKey, string(rawKeys))
}

// LoadFromStorage restores the resources persisted by a previous session.
func (s *ResourcesStore) LoadFromStorage(ctx context.Context) error {
	rawKeys, ok, err := s.storage.Get(ctx, resourceKeysKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(rawKeys), &keys); err != nil {
		return fmt.Errorf("unmarshal resource keys: %w", err)
	}

	s.keys = keys
	s.resources = make([]Resource, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.storage.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("resource %q listed but not stored", key)
		}
		var resource Resource
		if err := json.Unmarshal([]byte(raw), &resource); err != nil {
			return fmt.Errorf("unmarshal resource %q: %w", key, err)
		}
		s.resources = append(s.resources, resource)
	}
	return nil
}

// ClearStorage wipes the resources namespace.
func (s *ResourcesStore) ClearStorage(ctx context.Context) error {
	s.keys = nil
	s.resources = nil
	return s.storage.Clear(ctx)
}

// Has reports whether any resources are loaded.
func (s *ResourcesStore) Has() bool {
	return len(s.resources) > 0
}

// Resources returns the cached resource list in order.
func (s *ResourcesStore) Resources() []Resource {
	return s.resources
}

// Get returns the resource with the given key.
func (s *ResourcesStore) Get(key string) (Resource, bool) {
	for _, resource := range s.resources {
		if resource.Key == key {
			return resource, true
		}
	}
	return Resource{}, false
}
