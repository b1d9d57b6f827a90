package interfaces

import (
	"time"

	"github.com/ternarybob/capto/internal/models"
)

// TTLStore is a byte-oriented key-value store with per-entry expiry.
// Expired entries are indistinguishable from absent ones.
type TTLStore interface {
	// SetWithTTL stores value under key, expiring after ttl.
	SetWithTTL(key string, value []byte, ttl time.Duration) error

	// Get returns the value, or ErrKeyNotFound for absent or expired keys.
	Get(key string) ([]byte, error)

	// Delete removes the key. Absent keys are a no-op.
	Delete(key string) error

	// Ping verifies the store is reachable.
	Ping() error
}

// DownloadStorage persists download history records.
type DownloadStorage interface {
	// SaveRecord inserts or updates a record by its ID.
	SaveRecord(record *models.DownloadRecord) error

	// GetRecord returns a record by ID, or ErrKeyNotFound.
	GetRecord(id string) (*models.DownloadRecord, error)

	// ListByUser returns the user's records newest first, capped at limit
	// (limit <= 0 means no cap).
	ListByUser(userID string, limit int) ([]*models.DownloadRecord, error)

	// Count returns the total number of stored records.
	Count() (int, error)
}

// StorageManager owns the database connection and hands out stores.
type StorageManager interface {
	TTLStore() TTLStore
	DownloadStorage() DownloadStorage

	// RunGC triggers value-log garbage collection.
	RunGC() error

	// Close flushes and closes the underlying database.
	Close() error
}
