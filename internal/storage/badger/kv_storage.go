package badger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bidscout/bidscout/internal/interfaces"
)

// kvPair is the stored representation of one key/value entry
type kvPair struct {
	Key   string `badgerhold:"unique"`
	Value string
}

// KVStorage implements the KeyValueStorage interface for Badger.
// Document content (base64) and persisted session cookies live here.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.KeyValueStorage = (*KVStorage)(nil)

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) *KVStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var pair kvPair
	err := s.db.Store().Get(key, &pair)
	if err == badgerhold.ErrNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return pair.Value, nil
}

// Set inserts or updates a key/value pair
func (s *KVStorage) Set(ctx context.Context, key string, value string) error {
	pair := kvPair{Key: key, Value: value}
	if err := s.db.Store().Upsert(key, &pair); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key/value pair
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(key, &kvPair{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrKeyNotFound
	}
	return err
}

// Exists reports whether a key is present
func (s *KVStorage) Exists(ctx context.Context, key string) (bool, error) {
	var pair kvPair
	err := s.db.Store().Get(key, &pair)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListByPrefix returns all keys starting with the given prefix
func (s *KVStorage) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var pairs []kvPair
	if err := s.db.Store().Find(&pairs, badgerhold.Where("Key").Ne("")); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if strings.HasPrefix(pair.Key, prefix) {
			keys = append(keys, pair.Key)
		}
	}
	return keys, nil
}
