package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Namespace is a handle on one logical document within the store.
// All operations are scoped to the namespace name.
type Namespace struct {
	db   *sql.DB
	name string
}

// Namespace returns a handle for the given logical document.
// The namespace does not need to exist beforehand; it comes into
// existence with its first Set.
func (s *Store) Namespace(name string) *Namespace {
	return &Namespace{db: s.db, name: name}
}

// ClearAll removes every key in every namespace.
// Used when the session context switches and all cached data is invalid.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear all namespaces: %w", err)
	}
	return nil
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Get reads a value. The second return value reports whether the key exists.
func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := n.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`,
		n.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", n.name, key, err)
	}
	return value, true, nil
}

// Set writes a value, replacing any existing value for the key.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value
	`, n.name, key, value)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", n.name, key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	_, err := n.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ? AND key = ?`, n.name, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", n.name, key, err)
	}
	return nil
}

// Clear removes every key in this namespace.
func (n *Namespace) Clear(ctx context.Context) error {
	_, err := n.db.ExecContext(ctx,
		`DELETE FROM kv WHERE namespace = ?`, n.name)
	if err != nil {
		return fmt.Errorf("clear %s: %w", n.name, err)
	}
	return nil
}

// Keys returns all keys in the namespace in lexical order.
func (n *Namespace) Keys(ctx context.Context) ([]string, error) {
	rows, err := n.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE namespace = ? ORDER BY key`, n.name)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", n.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("keys %s: %w", n.name, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keys %s: %w", n.name, err)
	}
	return keys, nil
}
