package models

import "time"

// Confidence is a three-level certainty estimate for auth-requirement
// classification. It is an ordering, not a probability.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// Raise returns the higher of the two confidence levels. Classifier stages
// may raise confidence but never lower it.
func (c Confidence) Raise(to Confidence) Confidence {
	if to.rank() > c.rank() {
		return to
	}
	return c
}

// AuthType describes the kind of authentication a site appears to use.
type AuthType string

const (
	AuthTypeLogin  AuthType = "login"
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeSSO    AuthType = "sso"
	AuthTypeAPIKey AuthType = "api_key"
)

// AuthRequirementResult is the classifier's verdict for a single URL.
// Produced fresh per call, never persisted, immutable once returned.
type AuthRequirementResult struct {
	RequiresAuth bool       `json:"requires_auth"`
	Confidence   Confidence `json:"confidence"`
	Platform     string     `json:"platform,omitempty"`
	AuthType     AuthType   `json:"auth_type,omitempty"`
	Indicators   []string   `json:"indicators"`
	Reasoning    string     `json:"reasoning"`
}

// DetectOptions carries per-call overrides for the classifier's network
// probe. A nil value means the detector config defaults.
type DetectOptions struct {
	// ProbeTimeout overrides the configured probe timeout when positive.
	ProbeTimeout time.Duration `json:"probe_timeout,omitempty"`

	// UserAgent overrides the probe's User-Agent header when non-empty.
	UserAgent string `json:"user_agent,omitempty"`

	// FollowRedirects overrides the body-probe redirect policy when set.
	FollowRedirects *bool `json:"follow_redirects,omitempty"`
}

// SessionStatus is the state of a login session. Transitions are monotone:
// pending moves to exactly one terminal state and never leaves it.
type SessionStatus string

const (
	SessionPending       SessionStatus = "pending"
	SessionAuthenticated SessionStatus = "authenticated"
	SessionFailed        SessionStatus = "failed"
	SessionTimeout       SessionStatus = "timeout"
)

// Terminal reports whether the status is an end state.
func (s SessionStatus) Terminal() bool {
	return s == SessionAuthenticated || s == SessionFailed || s == SessionTimeout
}

// LoginSession tracks one user's attempt to authenticate against one URL.
// Owned exclusively by the session service for its lifetime.
type LoginSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	AuthURL   string        `json:"auth_url"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Error     string        `json:"error,omitempty"`
	Cookies   string        `json:"-"` // Netscape wire format, never serialized to clients
}

// Expired reports whether the session passed its wall-clock deadline.
func (s *LoginSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// LoginErrorClass buckets login failures for user-facing remediation.
type LoginErrorClass string

const (
	LoginErrTimeout     LoginErrorClass = "timeout"
	LoginErrCredentials LoginErrorClass = "credentials"
	LoginErrNetwork     LoginErrorClass = "network"
	LoginErrBrowser     LoginErrorClass = "browser"
	LoginErrUnknown     LoginErrorClass = "unknown"
)

// LoginOptions carries per-call overrides for an interactive login. A nil
// value means the session service defaults.
type LoginOptions struct {
	// CustomHeaders are installed on the browser before navigation.
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// SuccessIndicator is a caller-supplied CSS selector checked ahead of
	// the built-in success selectors.
	SuccessIndicator string `json:"success_indicator,omitempty"`

	// Timeout overrides the configured session deadline when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// LoginResult is returned by the session manager's standard flow.
type LoginResult struct {
	SessionID  string          `json:"session_id"`
	Success    bool            `json:"success"`
	Domain     string          `json:"domain,omitempty"`
	Method     DetectionMethod `json:"method,omitempty"`
	ErrorClass LoginErrorClass `json:"error_class,omitempty"`
	Error      string          `json:"error,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// DetectionMethod identifies which strategy observed a successful login.
type DetectionMethod string

const (
	MethodSelector   DetectionMethod = "selector"
	MethodURLChange  DetectionMethod = "url_change"
	MethodCookie     DetectionMethod = "cookie"
	MethodNavigation DetectionMethod = "navigation"
	MethodTimeout    DetectionMethod = "timeout"
)

// LoginDetection is the login success detector's report.
type LoginDetection struct {
	Success    bool            `json:"success"`
	Method     DetectionMethod `json:"method"`
	DetectedAt time.Time       `json:"detected_at"`
	Details    string          `json:"details,omitempty"`
	Err        string          `json:"error,omitempty"`
}

// Cookie is the browser-neutral cookie shape captured from a page and
// serialized to the Netscape wire format for the download utility.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"` // unix seconds, 0 = session cookie
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"httpOnly"`
	SameSite string `json:"sameSite,omitempty"`
}

// SessionEvent is pushed over the WebSocket stream on status transitions.
type SessionEvent struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	Status    SessionStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
