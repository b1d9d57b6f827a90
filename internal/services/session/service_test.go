package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// fakePage is a scriptable Page for session tests.
type fakePage struct {
	mu         sync.Mutex
	location   string
	cookies    []models.Cookie
	headers    map[string]string
	selectors  map[string]bool
	responseFn func(interfaces.ResponseInfo)
	navErr     error
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	if f.navErr != nil {
		return f.navErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = url
	return nil
}

func (f *fakePage) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakePage) QuerySelector(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectors[selector], nil
}

func (f *fakePage) setSelector(selector string, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectors == nil {
		f.selectors = make(map[string]bool)
	}
	f.selectors[selector] = present
}

func (f *fakePage) ReadCookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies, nil
}

func (f *fakePage) setCookies(cookies []models.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = cookies
}

func (f *fakePage) SetHeaders(ctx context.Context, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers = headers
	return nil
}

func (f *fakePage) sentHeaders() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers
}

func (f *fakePage) ListenResponses(fn func(interfaces.ResponseInfo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responseFn = fn
}

func (f *fakePage) fireResponse(info interfaces.ResponseInfo) {
	f.mu.Lock()
	fn := f.responseFn
	f.mu.Unlock()
	if fn != nil {
		fn(info)
	}
}

func (f *fakePage) SetCookies(ctx context.Context, cookies []models.Cookie) error     { return nil }
func (f *fakePage) SetViewport(ctx context.Context, width, height int64) error        { return nil }
func (f *fakePage) Evaluate(ctx context.Context, expression string, result any) error { return nil }
func (f *fakePage) Close() error                                                      { return nil }

// fakeBrowsers tracks acquire/release pairing. setup, when present, runs on
// every freshly acquired page before the service sees it.
type fakeBrowsers struct {
	mu         sync.Mutex
	pages      map[string]*fakePage
	released   map[string]int
	setup      func(*fakePage)
	acquireErr error
}

func newFakeBrowsers() *fakeBrowsers {
	return &fakeBrowsers{
		pages:    make(map[string]*fakePage),
		released: make(map[string]int),
	}
}

func (f *fakeBrowsers) Acquire(ctx context.Context, id string) (interfaces.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	page := &fakePage{}
	if f.setup != nil {
		f.setup(page)
	}
	f.pages[id] = page
	return page, nil
}

func (f *fakeBrowsers) Get(id string) (interfaces.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page, ok := f.pages[id]
	if !ok {
		return nil, fmt.Errorf("instance %s not found", id)
	}
	return page, nil
}

func (f *fakeBrowsers) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[id]++
	delete(f.pages, id)
}

func (f *fakeBrowsers) Shutdown(ctx context.Context) error { return nil }

func (f *fakeBrowsers) releaseCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[id]
}

func (f *fakeBrowsers) page(id string) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[id]
}

// fakeVault records stored cookie sets.
type fakeVault struct {
	mu     sync.Mutex
	stored map[string][]models.Cookie
	setErr error
}

func newFakeVault() *fakeVault {
	return &fakeVault{stored: make(map[string][]models.Cookie)}
}

func (f *fakeVault) Set(userID, sessionID, domain string, payload []byte) error { return nil }
func (f *fakeVault) Get(userID, sessionID string) ([]byte, error) {
	return nil, interfaces.ErrNoCookies
}
func (f *fakeVault) GetByDomain(userID, domain string) ([]byte, error) {
	return nil, interfaces.ErrNoCookies
}
func (f *fakeVault) Delete(userID, sessionID string) error          { return nil }
func (f *fakeVault) InvalidateDomain(userID, domain string) error   { return nil }
func (f *fakeVault) TTL() time.Duration                             { return time.Hour }
func (f *fakeVault) GetNetscapeCookies(userID, sessionID string) ([]models.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cookies, ok := f.stored[userID+"/"+sessionID]
	if !ok {
		return nil, interfaces.ErrNoCookies
	}
	return cookies, nil
}

func (f *fakeVault) SetNetscapeCookies(userID, sessionID, domain string, cookies []models.Cookie) error {
	if f.setErr != nil {
		return f.setErr
	}
	if len(cookies) == 0 {
		return fmt.Errorf("empty cookie set")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[userID+"/"+sessionID] = cookies
	return nil
}

// fakeSink records published session events in order.
type fakeSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (f *fakeSink) Publish(event models.SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) statuses() []models.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SessionStatus, len(f.events))
	for i, e := range f.events {
		out[i] = e.Status
	}
	return out
}

// fakeDetector returns a fixed platform.
type fakeDetector struct{ platform string }

func (f *fakeDetector) DetectAuthRequirement(ctx context.Context, rawURL string, opts *models.DetectOptions) *models.AuthRequirementResult {
	return f.QuickCheck(rawURL)
}

func (f *fakeDetector) QuickCheck(rawURL string) *models.AuthRequirementResult {
	return &models.AuthRequirementResult{Platform: f.platform, Confidence: models.ConfidenceLow}
}

type sessionFixture struct {
	service  *Service
	browsers *fakeBrowsers
	vault    *fakeVault
	sink     *fakeSink
}

func newFixture(timeout time.Duration) *sessionFixture {
	browsers := newFakeBrowsers()
	vault := newFakeVault()
	sink := &fakeSink{}
	config := &common.SessionConfig{
		Timeout:      timeout,
		PollInterval: 10 * time.Millisecond,
		ShowBanner:   true,
	}
	service := NewService(browsers, vault, &fakeDetector{}, sink, config, common.GetLogger())
	return &sessionFixture{service: service, browsers: browsers, vault: vault, sink: sink}
}

const testAuthURL = "https://site.example.com/login"

func TestHandleLogin_Success(t *testing.T) {
	fx := newFixture(2 * time.Second)

	// Plant an auth cookie shortly after the browser opens.
	go func() {
		for {
			fx.browsers.mu.Lock()
			for _, page := range fx.browsers.pages {
				page.setCookies([]models.Cookie{
					{Name: "session_id", Value: "v4lue", Domain: "site.example.com"},
				})
			}
			n := len(fx.browsers.pages)
			fx.browsers.mu.Unlock()
			if n > 0 {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "site.example.com", result.Domain)
	assert.Equal(t, models.MethodCookie, result.Method)

	// Cookies stored in the vault under the session id
	stored, err := fx.vault.GetNetscapeCookies("user1", result.SessionID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// Browser released exactly once
	assert.Equal(t, 1, fx.browsers.releaseCount(result.SessionID))

	// Session is terminal authenticated
	session, err := fx.service.GetSession(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAuthenticated, session.Status)

	assert.Equal(t, []models.SessionStatus{models.SessionPending, models.SessionAuthenticated}, fx.sink.statuses())
}

func TestHandleLogin_Timeout(t *testing.T) {
	fx := newFixture(100 * time.Millisecond)

	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.MethodTimeout, result.Method)
	assert.Equal(t, models.LoginErrTimeout, result.ErrorClass)
	assert.NotEmpty(t, result.Suggestion)

	session, err := fx.service.GetSession(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTimeout, session.Status)

	assert.Equal(t, 1, fx.browsers.releaseCount(result.SessionID), "browser must be released on timeout")
}

func TestHandleLogin_BrowserUnavailable(t *testing.T) {
	fx := newFixture(time.Second)
	fx.browsers.acquireErr = interfaces.ErrBrowserUnavailable

	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.LoginErrBrowser, result.ErrorClass)

	session, err := fx.service.GetSession(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, session.Status)
}

func TestHandleLogin_InvalidURL(t *testing.T) {
	fx := newFixture(time.Second)

	_, err := fx.service.HandleLogin(context.Background(), "user1", "://nope", nil)
	assert.Error(t, err)
}

func TestDetachedSession_UpdateCookies(t *testing.T) {
	fx := newFixture(5 * time.Second)

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, session.Status)

	cookies := []models.Cookie{{Name: "auth_token", Value: "tok", Domain: "site.example.com"}}
	require.NoError(t, fx.service.UpdateSessionCookies(session.ID, cookies))

	updated, err := fx.service.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionAuthenticated, updated.Status)

	stored, err := fx.vault.GetNetscapeCookies("user1", session.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	assert.Equal(t, 1, fx.browsers.releaseCount(session.ID))

	// A second delivery is rejected: the session is terminal.
	err = fx.service.UpdateSessionCookies(session.ID, cookies)
	assert.ErrorIs(t, err, interfaces.ErrSessionTerminal)
}

func TestUpdateSessionCookies_Unknown(t *testing.T) {
	fx := newFixture(time.Second)

	err := fx.service.UpdateSessionCookies("sess_unknown", []models.Cookie{{Name: "a", Value: "b"}})
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestUpdateSessionCookies_RejectsEmpty(t *testing.T) {
	fx := newFixture(5 * time.Second)

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	err = fx.service.UpdateSessionCookies(session.ID, nil)
	assert.Error(t, err)

	// Session stays pending; the user can still complete login.
	current, err := fx.service.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, current.Status)
}

func TestCancelSession(t *testing.T) {
	fx := newFixture(5 * time.Second)

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	require.NoError(t, fx.service.CancelSession(session.ID))

	cancelled, err := fx.service.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, cancelled.Status)
	assert.Equal(t, 1, fx.browsers.releaseCount(session.ID))

	// Cancelling a terminal session fails
	assert.ErrorIs(t, fx.service.CancelSession(session.ID), interfaces.ErrSessionTerminal)
	// And releases nothing twice
	assert.Equal(t, 1, fx.browsers.releaseCount(session.ID))
}

func TestCleanupExpired(t *testing.T) {
	fx := newFixture(30 * time.Millisecond)

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	swept := fx.service.CleanupExpired()

	// The background monitor may have already timed the session out; either
	// way it must be terminal and released exactly once.
	assert.LessOrEqual(t, swept, 1)
	expired, err := fx.service.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTimeout, expired.Status)
	assert.Equal(t, 1, fx.browsers.releaseCount(session.ID))
}

func TestListSessions(t *testing.T) {
	fx := newFixture(5 * time.Second)

	s1, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)
	_, err = fx.service.StartDetachedSession(context.Background(), "user2", testAuthURL, nil)
	require.NoError(t, err)

	assert.Len(t, fx.service.ListSessions(""), 2)

	mine := fx.service.ListSessions("user1")
	require.Len(t, mine, 1)
	assert.Equal(t, s1.ID, mine[0].ID)
}

func TestHandleLogin_CustomHeadersReachThePage(t *testing.T) {
	fx := newFixture(2 * time.Second)

	var page *fakePage
	fx.browsers.setup = func(p *fakePage) {
		page = p
		p.setCookies([]models.Cookie{
			{Name: "session_id", Value: "v4lue", Domain: "site.example.com"},
		})
	}

	headers := map[string]string{"X-Org-Token": "abc123", "Accept-Language": "de-DE"}
	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, &models.LoginOptions{
		CustomHeaders: headers,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotNil(t, page)
	assert.Equal(t, headers, page.sentHeaders())
}

func TestHandleLogin_SuccessIndicatorCheckedFirst(t *testing.T) {
	fx := newFixture(2 * time.Second)

	// Both a caller selector and an auth cookie are present; the selector
	// strategy runs first and must win.
	fx.browsers.setup = func(p *fakePage) {
		p.setSelector("#org-logged-in", true)
		p.setCookies([]models.Cookie{
			{Name: "session_id", Value: "v4lue", Domain: "site.example.com"},
		})
	}

	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, &models.LoginOptions{
		SuccessIndicator: "#org-logged-in",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.MethodSelector, result.Method)
}

func TestHandleLogin_PerCallTimeoutOverridesConfig(t *testing.T) {
	fx := newFixture(time.Hour)

	result, err := fx.service.HandleLogin(context.Background(), "user1", testAuthURL, &models.LoginOptions{
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.MethodTimeout, result.Method)

	session, err := fx.service.GetSession(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTimeout, session.Status)
	assert.WithinDuration(t, session.CreatedAt.Add(50*time.Millisecond), session.ExpiresAt, 10*time.Millisecond,
		"session deadline must honor the per-call timeout")
}

func TestDetachedSession_RedirectWithSetCookieTriggersCapture(t *testing.T) {
	fx := newFixture(time.Hour)
	// A poll interval this slow means only the response listener can finish
	// the session within the test window.
	fx.service.config.PollInterval = time.Hour

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	page := fx.browsers.page(session.ID)
	require.NotNil(t, page)
	page.setCookies([]models.Cookie{
		{Name: "auth_token", Value: "tok", Domain: "site.example.com"},
	})

	// URL carries no post-login fragment; the Set-Cookie redirect alone
	// must trigger the early capture.
	page.fireResponse(interfaces.ResponseInfo{
		URL:          "https://site.example.com/login?step=2",
		Status:       302,
		IsDocument:   true,
		HasSetCookie: true,
	})

	require.Eventually(t, func() bool {
		current, err := fx.service.GetSession(session.ID)
		return err == nil && current.Status == models.SessionAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := fx.vault.GetNetscapeCookies("user1", session.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, fx.browsers.releaseCount(session.ID))
}

func TestDetachedSession_NonDocumentResponsesIgnored(t *testing.T) {
	fx := newFixture(time.Hour)
	fx.service.config.PollInterval = time.Hour

	session, err := fx.service.StartDetachedSession(context.Background(), "user1", testAuthURL, nil)
	require.NoError(t, err)

	page := fx.browsers.page(session.ID)
	require.NotNil(t, page)
	// Not an auth-looking cookie, so only a triggered capture would store it.
	page.setCookies([]models.Cookie{
		{Name: "theme", Value: "dark", Domain: "site.example.com"},
	})

	// An XHR setting cookies is not a login signal.
	page.fireResponse(interfaces.ResponseInfo{
		URL:          "https://site.example.com/api/ping",
		Status:       302,
		IsDocument:   false,
		HasSetCookie: true,
	})

	time.Sleep(50 * time.Millisecond)
	current, err := fx.service.GetSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPending, current.Status)
}

func TestClassifyLoginError(t *testing.T) {
	tests := []struct {
		message string
		class   models.LoginErrorClass
	}{
		{"context deadline exceeded", models.LoginErrTimeout},
		{"session expired", models.LoginErrTimeout},
		{"401 Unauthorized", models.LoginErrCredentials},
		{"invalid credentials provided", models.LoginErrCredentials},
		{"dial tcp: connection refused", models.LoginErrNetwork},
		{"dns lookup failure", models.LoginErrNetwork},
		{"chrome target closed", models.LoginErrBrowser},
		{"navigation aborted", models.LoginErrBrowser},
		{"something inexplicable", models.LoginErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			class, suggestion := classifyLoginError(tt.message)
			assert.Equal(t, tt.class, class)
			assert.NotEmpty(t, suggestion)
		})
	}
}

func TestClassify_SpecificityOrder(t *testing.T) {
	// "unauthorized" plus "timed out": timeout rules run first.
	class, _ := classifyLoginError("request timed out waiting for unauthorized response")
	assert.Equal(t, models.LoginErrTimeout, class)

	// "connection refused" plus "page": network beats browser.
	class, _ = classifyLoginError("page load failed: connection refused")
	assert.Equal(t, models.LoginErrNetwork, class)
}
