package logindetect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// fakePage is a scriptable Page implementation for detector tests.
type fakePage struct {
	mu        sync.Mutex
	location  string
	selectors map[string]bool
	cookies   []models.Cookie
}

func newFakePage(location string) *fakePage {
	return &fakePage{
		location:  location,
		selectors: make(map[string]bool),
	}
}

func (f *fakePage) setLocation(loc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = loc
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.setLocation(url)
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

func (f *fakePage) ReadCookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies, nil
}

func (f *fakePage) SetCookies(ctx context.Context, cookies []models.Cookie) error { return nil }
func (f *fakePage) SetHeaders(ctx context.Context, headers map[string]string) error {
	return nil
}
func (f *fakePage) SetViewport(ctx context.Context, width, height int64) error { return nil }
func (f *fakePage) Evaluate(ctx context.Context, expression string, result any) error {
	return nil
}
func (f *fakePage) ListenResponses(fn func(interfaces.ResponseInfo)) {}
func (f *fakePage) Close() error                                    { return nil }

func fastConfig() DetectConfig {
	config := DefaultConfig()
	config.Timeout = 500 * time.Millisecond
	config.CheckInterval = 10 * time.Millisecond
	return config
}

const loginURL = "https://site.example.com/login"

func TestWaitForLogin_SelectorWins(t *testing.T) {
	page := newFakePage(loginURL)
	page.selectors[`a[href*="logout"]`] = true
	// Simultaneous URL-based success evidence; selector must still win.
	page.setLocation("https://site.example.com/dashboard")

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.True(t, detection.Success)
	assert.Equal(t, models.MethodSelector, detection.Method)
}

func TestWaitForLogin_SuccessURLPattern(t *testing.T) {
	page := newFakePage("https://site.example.com/dashboard")

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.True(t, detection.Success)
	assert.Equal(t, models.MethodURLChange, detection.Method)
	assert.Contains(t, detection.Details, "/dashboard")
}

func TestWaitForLogin_SuccessPatternBeatsLoginPattern(t *testing.T) {
	// URL contains both a login fragment and a success fragment; success
	// patterns are checked first.
	page := newFakePage("https://site.example.com/dashboard?from=/login")

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.True(t, detection.Success)
	assert.Equal(t, models.MethodURLChange, detection.Method)
	assert.Contains(t, detection.Details, "success pattern")
}

func TestWaitForLogin_AuthCookie(t *testing.T) {
	page := newFakePage(loginURL)
	page.cookies = []models.Cookie{
		{Name: "MoodleSession", Value: "k3yv4lue", Domain: "site.example.com"},
	}

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.True(t, detection.Success)
	assert.Equal(t, models.MethodCookie, detection.Method)
}

func TestWaitForLogin_PlaceholderCookiesRejected(t *testing.T) {
	page := newFakePage(loginURL)
	page.cookies = []models.Cookie{
		{Name: "session_id", Value: "null"},
		{Name: "auth_token", Value: "undefined"},
		{Name: "jwt", Value: ""},
		{Name: "login_hint", Value: "   "},
	}

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.False(t, detection.Success)
	assert.Equal(t, models.MethodTimeout, detection.Method)
}

func TestWaitForLogin_Timeout(t *testing.T) {
	page := newFakePage(loginURL)

	detector := NewDetector(fastConfig(), common.GetLogger())
	start := time.Now()
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.False(t, detection.Success)
	assert.Equal(t, models.MethodTimeout, detection.Method)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForLogin_ErrorPageIsNeverSuccess(t *testing.T) {
	page := newFakePage("https://site.example.com/error?code=500")

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.False(t, detection.Success)
	assert.Equal(t, models.MethodTimeout, detection.Method)
}

func TestWaitForLogin_DetectsLateLogin(t *testing.T) {
	page := newFakePage(loginURL)

	go func() {
		time.Sleep(50 * time.Millisecond)
		page.setLocation("https://site.example.com/my/courses")
	}()

	detector := NewDetector(fastConfig(), common.GetLogger())
	detection := detector.WaitForLogin(context.Background(), page, loginURL)

	assert.True(t, detection.Success)
	assert.Equal(t, models.MethodURLChange, detection.Method)
}

func TestConfigForPlatform(t *testing.T) {
	moodle := ConfigForPlatform("Moodle")
	assert.Contains(t, moodle.CookieNameFragments, "moodlesession")
	assert.Equal(t, DefaultConfig().Timeout, moodle.Timeout, "unset override fields keep defaults")

	unknown := ConfigForPlatform("SomethingElse")
	assert.Equal(t, DefaultConfig().SuccessSelectors, unknown.SuccessSelectors)

	// Case-insensitive platform match
	lower := ConfigForPlatform("moodle")
	assert.Contains(t, lower.CookieNameFragments, "moodlesession")
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	merged := base.Merge(DetectConfig{
		Timeout:          time.Minute,
		SuccessSelectors: []string{".custom"},
	})

	assert.Equal(t, time.Minute, merged.Timeout)
	assert.Equal(t, []string{".custom"}, merged.SuccessSelectors)
	assert.Equal(t, base.CheckInterval, merged.CheckInterval)
	assert.Equal(t, base.CookieNameFragments, merged.CookieNameFragments)
}
