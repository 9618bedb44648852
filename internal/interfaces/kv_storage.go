package interfaces

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStorage defines operations for generic key/value storage.
// Document content and persisted session cookies live here.
type KeyValueStorage interface {
	// Get retrieves a value by key, returns ErrKeyNotFound if absent
	Get(ctx context.Context, key string) (string, error)

	// Set inserts or updates a key/value pair
	Set(ctx context.Context, key string, value string) error

	// Delete removes a key/value pair, returns ErrKeyNotFound if absent
	Delete(ctx context.Context, key string) error

	// Exists reports whether a key is present without fetching the value
	Exists(ctx context.Context, key string) (bool, error)

	// ListByPrefix returns all keys starting with the given prefix
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)
}
