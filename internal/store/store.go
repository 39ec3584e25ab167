// Package store implements the row-level persistence underneath the
// authorisation engine: a key-value interface backing graph.Node,
// graph.Edge and the deletion-entry tombstones, selectable between a
// BadgerDB and a Pebble backend.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: not found")

// RowStore provides low-level key-value access to the underlying
// storage engine. It is implemented by both BadgerStore and
// PebbleStore so the writer can operate independently of which engine
// is configured.
type RowStore interface {
	// Get retrieves a value by exact key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Batch applies a set of writes and deletes atomically in a single
	// transaction. sets is a map of key to value; deletes lists keys to
	// remove. Implementations roll back entirely on any failure.
	Batch(ctx context.Context, sets map[string][]byte, deletes []string) error

	// Scan iterates all keys sharing prefix in lexicographic order,
	// beginning at startKey (or the first key in the prefix if empty).
	// fn receives a copy of each (key, value); returning false stops
	// the scan early.
	Scan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error

	// Close releases the underlying engine's resources.
	Close() error
}
