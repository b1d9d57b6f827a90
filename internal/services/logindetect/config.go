package logindetect

import (
	"strings"
	"time"
)

// DetectConfig drives the polling state machine. A zero field in a
// per-platform override falls back to the default.
type DetectConfig struct {
	// SuccessSelectors are CSS selectors whose presence means logged in.
	SuccessSelectors []string

	// LoginURLFragments mark a URL as still being a login page.
	LoginURLFragments []string

	// SuccessURLFragments mark a URL as a known post-login destination.
	// Checked before the "no longer a login URL" fallback.
	SuccessURLFragments []string

	// ErrorURLFragments mark a URL as an error page; navigation onto one is
	// never success.
	ErrorURLFragments []string

	// CookieNameFragments identify authentication-looking cookies.
	CookieNameFragments []string

	Timeout       time.Duration
	CheckInterval time.Duration
}

// DefaultConfig returns the built-in detection configuration
func DefaultConfig() DetectConfig {
	return DetectConfig{
		SuccessSelectors: []string{
			`[data-testid="user-menu"]`,
			".user-avatar",
			".user-menu",
			"#user-menu",
			`a[href*="logout"]`,
			`a[href*="signout"]`,
			`button[aria-label*="account"]`,
		},
		LoginURLFragments: []string{
			"/login", "/signin", "/sign-in", "/auth", "/sso",
		},
		SuccessURLFragments: []string{
			"/dashboard", "/home", "/account", "/my/", "/course",
		},
		ErrorURLFragments: []string{
			"/error", "/denied", "/forbidden", "/404",
		},
		CookieNameFragments: []string{
			"session", "auth", "token", "jwt", "login", "sid",
		},
		Timeout:       5 * time.Minute,
		CheckInterval: 2 * time.Second,
	}
}

// Merge overlays a per-platform override onto the base config. Slice fields
// replace the base when non-empty; durations replace when positive.
func (c DetectConfig) Merge(override DetectConfig) DetectConfig {
	merged := c
	if len(override.SuccessSelectors) > 0 {
		merged.SuccessSelectors = override.SuccessSelectors
	}
	if len(override.LoginURLFragments) > 0 {
		merged.LoginURLFragments = override.LoginURLFragments
	}
	if len(override.SuccessURLFragments) > 0 {
		merged.SuccessURLFragments = override.SuccessURLFragments
	}
	if len(override.ErrorURLFragments) > 0 {
		merged.ErrorURLFragments = override.ErrorURLFragments
	}
	if len(override.CookieNameFragments) > 0 {
		merged.CookieNameFragments = override.CookieNameFragments
	}
	if override.Timeout > 0 {
		merged.Timeout = override.Timeout
	}
	if override.CheckInterval > 0 {
		merged.CheckInterval = override.CheckInterval
	}
	return merged
}

// platformOverrides tune detection for systems with known markup.
var platformOverrides = map[string]DetectConfig{
	"Moodle": {
		SuccessSelectors: []string{".usermenu", "#user-menu-toggle", `a[href*="logout.php"]`},
		LoginURLFragments: []string{
			"/login/index.php", "/login",
		},
		SuccessURLFragments: []string{"/my/", "/course/view.php"},
		CookieNameFragments: []string{"moodlesession"},
	},
	"Canvas": {
		SuccessSelectors:    []string{"#global_nav_profile_link", ".ic-avatar"},
		SuccessURLFragments: []string{"/dashboard", "/courses"},
		CookieNameFragments: []string{"canvas_session", "_legacy_normandy_session"},
	},
	"Panopto": {
		SuccessSelectors:    []string{"#userDisplayName", ".header-user-menu"},
		SuccessURLFragments: []string{"/Pages/Sessions/List.aspx", "/Pages/Home.aspx"},
		CookieNameFragments: []string{".aspxauth", "panopto"},
	},
}

// ConfigForPlatform returns the default config merged with any override for
// the named platform. Unknown platforms get the default.
func ConfigForPlatform(platform string) DetectConfig {
	base := DefaultConfig()
	for name, override := range platformOverrides {
		if strings.EqualFold(name, platform) {
			return base.Merge(override)
		}
	}
	return base
}
