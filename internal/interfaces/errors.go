package interfaces

import "errors"

// Sentinel errors shared across service boundaries. Callers match with
// errors.Is; services wrap these with context via fmt.Errorf("...: %w", ...).
var (
	// ErrKeyNotFound is returned by key-value lookups for absent keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrSessionNotFound is returned when a login session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when an operation requires a pending
	// session but the session already reached a terminal state.
	ErrSessionTerminal = errors.New("session already in terminal state")

	// ErrCookiesExpired is returned when a stored cookie set exists but its
	// TTL or embedded expiry has passed.
	ErrCookiesExpired = errors.New("stored cookies expired")

	// ErrNoCookies is returned when no cookie set is stored for the
	// requested user and domain.
	ErrNoCookies = errors.New("no stored cookies")

	// ErrBrowserUnavailable is returned when the browser arena cannot
	// allocate an instance.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)
