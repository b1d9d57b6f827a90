package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// SessionEventSink receives session status transitions for fan-out to
// connected clients. Implementations must be safe for concurrent use.
type SessionEventSink interface {
	Publish(event models.SessionEvent)
}

// SessionService manages interactive login sessions. Two flows are
// supported: a blocking flow that opens a browser and waits for login
// completion, and a detached flow where an external caller (extension,
// operator) later delivers the captured cookies.
type SessionService interface {
	// HandleLogin opens a visible browser at authURL, waits for the user
	// to complete login (or the deadline), captures cookies on success and
	// stores them in the vault. opts may be nil for the configured
	// defaults. Always returns a result; the error return covers only
	// infrastructure failures.
	HandleLogin(ctx context.Context, userID, authURL string, opts *models.LoginOptions) (*models.LoginResult, error)

	// StartDetachedSession registers a pending session and opens a visible
	// browser at authURL without waiting. opts may be nil. Cookies arrive
	// later through UpdateSessionCookies.
	StartDetachedSession(ctx context.Context, userID, authURL string, opts *models.LoginOptions) (*models.LoginSession, error)

	// UpdateSessionCookies delivers captured cookies for a pending
	// detached session, stores them in the vault and marks the session
	// authenticated.
	UpdateSessionCookies(sessionID string, cookies []models.Cookie) error

	// GetSession returns a snapshot of the session.
	GetSession(sessionID string) (*models.LoginSession, error)

	// ListSessions returns snapshots of all live sessions for a user;
	// empty userID lists everything.
	ListSessions(userID string) []*models.LoginSession

	// CancelSession moves a pending session to failed and closes its
	// browser instance.
	CancelSession(sessionID string) error

	// CleanupExpired sweeps sessions past their deadline into the timeout
	// state and releases their browser instances. Returns the number
	// swept.
	CleanupExpired() int
}
