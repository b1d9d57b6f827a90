package logindetect

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// Detector decides when a login attempt on a live page has succeeded. It is
// a cooperative polling state machine: every tick runs the strategies in
// fixed priority order (selector, URL change, cookie, navigation) and stops
// at the first positive match. A strategy error is treated as "not yet" and
// the tick moves on to the next strategy.
type Detector struct {
	config DetectConfig
	logger arbor.ILogger
}

// NewDetector creates a login success detector with the given config
func NewDetector(config DetectConfig, logger arbor.ILogger) *Detector {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Detector{
		config: config,
		logger: logger,
	}
}

// WaitForLogin blocks until a strategy detects success, the timeout elapses,
// or ctx is cancelled. A timeout is a normal outcome, not an error.
func (d *Detector) WaitForLogin(ctx context.Context, page interfaces.Page, loginURL string) *models.LoginDetection {
	deadline := time.Now().Add(d.config.Timeout)
	detection := &models.LoginDetection{}

	loginHost, loginPath := splitHostPath(loginURL)

	found := common.PollUntil(ctx, d.config.CheckInterval, deadline, func(ctx context.Context) bool {
		return d.checkOnce(ctx, page, loginHost, loginPath, detection)
	})

	if !found {
		return &models.LoginDetection{
			Success:    false,
			Method:     models.MethodTimeout,
			DetectedAt: time.Now(),
			Details:    "no strategy detected login before the deadline",
		}
	}

	detection.Success = true
	detection.DetectedAt = time.Now()

	d.logger.Info().
		Str("method", string(detection.Method)).
		Str("details", detection.Details).
		Msg("Login success detected")

	return detection
}

// checkOnce runs one tick of the strategy ladder. On a match it fills in
// detection and returns true.
func (d *Detector) checkOnce(ctx context.Context, page interfaces.Page, loginHost, loginPath string, detection *models.LoginDetection) bool {
	// Strategy 1: success selector present.
	for _, selector := range d.config.SuccessSelectors {
		present, err := page.QuerySelector(ctx, selector)
		if err != nil {
			continue
		}
		if present {
			detection.Method = models.MethodSelector
			detection.Details = "selector " + selector
			return true
		}
	}

	location, locErr := page.Location(ctx)

	// Strategy 2: URL change. A success pattern wins outright; otherwise the
	// page must no longer look like a login page and must not be an error
	// page.
	if locErr == nil {
		lower := strings.ToLower(location)
		for _, fragment := range d.config.SuccessURLFragments {
			if strings.Contains(lower, fragment) {
				detection.Method = models.MethodURLChange
				detection.Details = "url matches success pattern " + fragment
				return true
			}
		}
		if !d.looksLikeLoginURL(lower) && !d.looksLikeErrorURL(lower) && !sameHostPath(lower, loginHost, loginPath) {
			detection.Method = models.MethodURLChange
			detection.Details = "url no longer a login page"
			return true
		}
	}

	// Strategy 3: authentication-looking cookie with a real value.
	cookies, err := page.ReadCookies(ctx)
	if err == nil {
		for _, cookie := range cookies {
			if d.isAuthCookie(cookie) {
				detection.Method = models.MethodCookie
				detection.Details = "cookie " + cookie.Name
				return true
			}
		}
	}

	// Strategy 4: navigated away from the exact login host+path.
	if locErr == nil {
		lower := strings.ToLower(location)
		if !sameHostPath(lower, loginHost, loginPath) && !d.looksLikeErrorURL(lower) {
			detection.Method = models.MethodNavigation
			detection.Details = "navigated away from login page"
			return true
		}
	}

	return false
}

func (d *Detector) looksLikeLoginURL(lower string) bool {
	for _, fragment := range d.config.LoginURLFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func (d *Detector) looksLikeErrorURL(lower string) bool {
	for _, fragment := range d.config.ErrorURLFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// isAuthCookie reports whether the cookie looks like authentication
// evidence. Placeholder values are not evidence.
func (d *Detector) isAuthCookie(cookie models.Cookie) bool {
	value := strings.TrimSpace(cookie.Value)
	if value == "" || value == "null" || value == "undefined" {
		return false
	}

	name := strings.ToLower(cookie.Name)
	for _, fragment := range d.config.CookieNameFragments {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}

func splitHostPath(rawURL string) (host, path string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", strings.ToLower(rawURL)
	}
	return strings.ToLower(parsed.Host), strings.ToLower(parsed.EscapedPath())
}

func sameHostPath(lowerURL, host, path string) bool {
	currentHost, currentPath := splitHostPath(lowerURL)
	return currentHost == host && currentPath == path
}
