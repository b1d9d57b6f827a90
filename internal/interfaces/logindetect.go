package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// LoginDetector watches a live page and decides when a login attempt has
// succeeded. Implementations poll the page with a set of strategies and
// return the first (highest-priority) strategy that fires.
type LoginDetector interface {
	// WaitForLogin blocks until a strategy detects success, the configured
	// timeout elapses, or ctx is cancelled. A timeout is a normal
	// detection outcome (Success=false, Method=timeout), not an error.
	WaitForLogin(ctx context.Context, page Page, loginURL string) *models.LoginDetection
}
