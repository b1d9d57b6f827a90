package badger

import (
	"errors"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	ttl      interfaces.TTLStore
	download interfaces.DownloadStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		ttl:      NewTTLStore(db, logger),
		download: NewDownloadStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// TTLStore returns the TTL key-value store
func (m *Manager) TTLStore() interfaces.TTLStore {
	return m.ttl
}

// DownloadStorage returns the download history storage
func (m *Manager) DownloadStorage() interfaces.DownloadStorage {
	return m.download
}

// RunGC triggers value-log garbage collection. Badger returns ErrNoRewrite
// when there is nothing to collect; that is not an error for callers.
func (m *Manager) RunGC() error {
	err := m.db.Store().Badger().RunValueLogGC(0.5)
	if errors.Is(err, badgerdb.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
