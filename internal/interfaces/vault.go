package interfaces

import (
	"time"

	"github.com/ternarybob/capto/internal/models"
)

// CookieVault stores captured session cookies encrypted at rest with a
// bounded lifetime. Keys are scoped per user and session; a per-domain
// pointer lets the download orchestrator find the freshest cookie set for
// a site without knowing the session id.
type CookieVault interface {
	// Set encrypts and stores a cookie payload under (userID, sessionID)
	// with the vault's configured TTL, and points the domain entry at it.
	Set(userID, sessionID, domain string, payload []byte) error

	// Get returns the decrypted payload, or ErrNoCookies / ErrCookiesExpired.
	Get(userID, sessionID string) ([]byte, error)

	// GetByDomain resolves the domain pointer and returns the decrypted
	// payload for the newest session on that domain.
	GetByDomain(userID, domain string) ([]byte, error)

	// Delete removes the stored payload. Deleting an absent key is a no-op.
	Delete(userID, sessionID string) error

	// InvalidateDomain removes the domain pointer and its payload. Used
	// when a download fails with an auth-classified error.
	InvalidateDomain(userID, domain string) error

	// SetNetscapeCookies serializes cookies to the Netscape wire format
	// before storing, so Get returns bytes ready to hand to the download
	// utility.
	SetNetscapeCookies(userID, sessionID, domain string, cookies []models.Cookie) error

	// GetNetscapeCookies returns the stored payload parsed back into
	// structured cookies.
	GetNetscapeCookies(userID, sessionID string) ([]models.Cookie, error)

	// TTL reports the vault's configured cookie lifetime.
	TTL() time.Duration
}
