package badger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DownloadStorage implements the DownloadStorage interface for Badger
type DownloadStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDownloadStorage creates a new DownloadStorage instance
func NewDownloadStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DownloadStorage {
	return &DownloadStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRecord inserts or updates a record by its ID
func (s *DownloadStorage) SaveRecord(record *models.DownloadRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to store download record: %w", err)
	}
	return nil
}

// GetRecord returns a record by ID
func (s *DownloadStorage) GetRecord(id string) (*models.DownloadRecord, error) {
	var record models.DownloadRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get download record: %w", err)
	}
	return &record, nil
}

// ListByUser returns the user's records newest first
func (s *DownloadStorage) ListByUser(userID string, limit int) ([]*models.DownloadRecord, error) {
	var records []models.DownloadRecord
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}

	// badgerhold's SortBy sorts ascending; order newest first manually.
	result := make([]*models.DownloadRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Count returns the total number of stored records
func (s *DownloadStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&models.DownloadRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count download records: %w", err)
	}
	return int(count), nil
}
