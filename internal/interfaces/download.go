package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// DownloadService orchestrates media acquisition: auth detection, cookie
// lookup, utility invocation with retry, and escalation to interactive
// login when stored cookies fail.
type DownloadService interface {
	// Fetch acquires the media at request.URL. Always returns a result
	// describing the outcome; the error return covers validation and
	// infrastructure failures only.
	Fetch(ctx context.Context, request *models.DownloadRequest) (*models.DownloadResult, error)

	// History returns the user's persisted download records, newest first.
	History(userID string, limit int) ([]*models.DownloadRecord, error)
}
