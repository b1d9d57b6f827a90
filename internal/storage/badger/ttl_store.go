package badger

import (
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
)

// TTLStore implements the TTLStore interface over the raw Badger handle.
// Badger expires entries natively; a Get on an expired key behaves exactly
// like a Get on an absent key.
type TTLStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTTLStore creates a new TTLStore instance
func NewTTLStore(db *BadgerDB, logger arbor.ILogger) interfaces.TTLStore {
	return &TTLStore{
		db:     db,
		logger: logger,
	}
}

// SetWithTTL stores value under key, expiring after ttl
func (s *TTLStore) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Stored TTL entry")
	return nil
}

// Get returns the value, or ErrKeyNotFound for absent or expired keys
func (s *TTLStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Delete removes the key. Absent keys are a no-op.
func (s *TTLStore) Delete(key string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Ping verifies the store is reachable
func (s *TTLStore) Ping() error {
	return s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		return nil
	})
}
