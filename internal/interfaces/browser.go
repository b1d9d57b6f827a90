package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// ResponseInfo is the subset of a network response that login monitoring
// cares about. HasSetCookie reports whether the response carried a
// Set-Cookie header; with a redirect status it is an early login signal.
type ResponseInfo struct {
	URL          string
	Status       int64
	MimeType     string
	IsDocument   bool
	HasSetCookie bool
}

// Page is the narrow capability surface the session and login-detection
// services need from a live browser tab. The chromedp implementation lives
// in services/browser; tests substitute fakes.
type Page interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	// QuerySelector reports whether at least one element matches the CSS
	// selector. A missing element is a false result, not an error.
	QuerySelector(ctx context.Context, selector string) (bool, error)

	// ReadCookies returns the cookies visible to the page, optionally
	// restricted to the given URLs.
	ReadCookies(ctx context.Context, urls ...string) ([]models.Cookie, error)

	// SetCookies installs cookies into the browser before navigation.
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// SetHeaders installs extra HTTP headers on subsequent requests.
	SetHeaders(ctx context.Context, headers map[string]string) error

	// SetViewport sets the emulated viewport size.
	SetViewport(ctx context.Context, width, height int64) error

	// Evaluate runs a JavaScript expression; result may be nil to discard.
	Evaluate(ctx context.Context, expression string, result any) error

	// ListenResponses registers a callback for document responses observed
	// on the page. The callback runs on the browser event goroutine and
	// must not block.
	ListenResponses(fn func(ResponseInfo))

	// Close releases the tab and its resources.
	Close() error
}

// BrowserController owns the browser instance arena. Instances are keyed
// by caller-supplied ids (session ids) so a detached login flow can find
// its window again.
type BrowserController interface {
	// Acquire creates a visible browser instance for the id, navigating
	// nowhere. Fails if the id is already in use or the arena is full.
	Acquire(ctx context.Context, id string) (Page, error)

	// Get returns the live page for the id.
	Get(id string) (Page, error)

	// Release closes the instance for the id and frees its arena slot.
	// Releasing an unknown id is a no-op.
	Release(id string)

	// Shutdown closes every instance. Blocks until done or the context
	// expires.
	Shutdown(ctx context.Context) error
}
