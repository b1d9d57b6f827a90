package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"github.com/ternarybob/capto/internal/services/logindetect"
)

// terminalRetention bounds how long finished sessions stay visible in the
// arena before a sweep removes them.
const terminalRetention = time.Hour

// record pairs a session with the teardown hook for its background monitor.
type record struct {
	session *models.LoginSession
	cancel  context.CancelFunc
	doneAt  time.Time
}

// Service manages interactive login sessions. It owns the session arena;
// every session is inserted pending, moves to exactly one terminal state,
// and releases its browser instance on every exit path.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*record

	browsers interfaces.BrowserController
	vault    interfaces.CookieVault
	detector interfaces.AuthDetector
	sink     interfaces.SessionEventSink
	config   *common.SessionConfig
	logger   arbor.ILogger
}

// NewService creates a session manager. sink may be nil when no event
// fan-out is wired.
func NewService(
	browsers interfaces.BrowserController,
	vault interfaces.CookieVault,
	detector interfaces.AuthDetector,
	sink interfaces.SessionEventSink,
	config *common.SessionConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		sessions: make(map[string]*record),
		browsers: browsers,
		vault:    vault,
		detector: detector,
		sink:     sink,
		config:   config,
		logger:   logger,
	}
}

// HandleLogin opens a visible browser at authURL, waits for the user to
// complete login, captures cookies on success and stores them in the vault.
// The browser instance is released in all exit paths through a single
// deferred cleanup. opts may be nil; a caller-supplied success indicator is
// checked ahead of the built-in selectors and a positive timeout overrides
// the configured session deadline.
func (s *Service) HandleLogin(ctx context.Context, userID, authURL string, opts *models.LoginOptions) (*models.LoginResult, error) {
	domain, err := hostOf(authURL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth URL: %w", err)
	}

	session := s.insert(userID, authURL, optsTimeout(opts))
	result := &models.LoginResult{SessionID: session.ID, Domain: domain}

	page, err := s.browsers.Acquire(ctx, session.ID)
	if err != nil {
		s.finish(session.ID, models.SessionFailed, err.Error())
		result.ErrorClass, result.Suggestion = classifyLoginError(err.Error())
		result.Error = err.Error()
		return result, nil
	}
	// The resource-safety contract: exactly one cleanup, on every path.
	defer s.browsers.Release(session.ID)

	if err := s.preparePage(ctx, page, authURL, optsHeaders(opts)); err != nil {
		s.finish(session.ID, models.SessionFailed, err.Error())
		result.ErrorClass, result.Suggestion = classifyLoginError(err.Error())
		result.Error = err.Error()
		return result, nil
	}

	detection := s.newDetector(authURL, opts).WaitForLogin(ctx, page, authURL)
	result.Method = detection.Method

	if !detection.Success {
		message := "login not detected before timeout"
		if detection.Err != "" {
			message = detection.Err
		}
		status := models.SessionFailed
		if detection.Method == models.MethodTimeout {
			status = models.SessionTimeout
		}
		s.finish(session.ID, status, message)
		result.ErrorClass, result.Suggestion = classifyLoginError(message)
		result.Error = message
		return result, nil
	}

	if err := s.captureCookies(ctx, page, session, domain, authURL); err != nil {
		s.finish(session.ID, models.SessionFailed, err.Error())
		result.ErrorClass, result.Suggestion = classifyLoginError(err.Error())
		result.Error = err.Error()
		return result, nil
	}

	s.finish(session.ID, models.SessionAuthenticated, "")
	result.Success = true

	s.logger.Info().
		Str("session_id", session.ID).
		Str("domain", domain).
		Str("method", string(detection.Method)).
		Msg("Interactive login completed")

	return result, nil
}

// StartDetachedSession registers a pending session and opens a visible
// browser without waiting. Cookies arrive later through
// UpdateSessionCookies, or are captured by the background monitor. opts may
// be nil.
func (s *Service) StartDetachedSession(ctx context.Context, userID, authURL string, opts *models.LoginOptions) (*models.LoginSession, error) {
	domain, err := hostOf(authURL)
	if err != nil {
		return nil, fmt.Errorf("invalid auth URL: %w", err)
	}

	session := s.insert(userID, authURL, optsTimeout(opts))

	page, err := s.browsers.Acquire(ctx, session.ID)
	if err != nil {
		s.finish(session.ID, models.SessionFailed, err.Error())
		return nil, err
	}

	if err := s.preparePage(ctx, page, authURL, optsHeaders(opts)); err != nil {
		s.finish(session.ID, models.SessionFailed, err.Error())
		s.browsers.Release(session.ID)
		return nil, err
	}

	if s.config.AutoContinue {
		if err := page.Evaluate(ctx, autoContinueScript, nil); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Auto-continue script injection failed")
		}
	}

	monitorCtx, cancel := context.WithDeadline(context.Background(), session.ExpiresAt)
	s.setCancel(session.ID, cancel)

	// Network responses that look like a completed login trigger an early
	// capture attempt without waiting for the next poll tick: a redirect
	// that sets cookies, or a document landing on a post-login URL.
	page.ListenResponses(func(info interfaces.ResponseInfo) {
		if !info.IsDocument {
			return
		}
		redirectSettingCookies := info.HasSetCookie && info.Status >= 300 && info.Status < 400
		lower := strings.ToLower(info.URL)
		postLoginURL := strings.Contains(lower, "/dashboard") || strings.Contains(lower, "/my/") || strings.Contains(lower, "/home")
		if redirectSettingCookies || postLoginURL {
			common.SafeGo(s.logger, "session.responseCapture", func() {
				s.tryDetachedCapture(monitorCtx, session.ID, domain, authURL)
			})
		}
	})

	common.SafeGoWithContext(monitorCtx, s.logger, "session.monitor", func() {
		s.monitorDetached(monitorCtx, session.ID, domain, authURL, opts)
	})

	s.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Str("domain", domain).
		Str("expires_at", session.ExpiresAt.Format(time.RFC3339)).
		Msg("Detached login session started")

	return s.snapshot(session.ID), nil
}

// monitorDetached polls for login success and finalizes the session. The
// wall-clock deadline forces the timeout state even without an explicit
// cancellation call.
func (s *Service) monitorDetached(ctx context.Context, sessionID, domain, authURL string, opts *models.LoginOptions) {
	page, err := s.browsers.Get(sessionID)
	if err != nil {
		return
	}

	detection := s.newDetector(authURL, opts).WaitForLogin(ctx, page, authURL)

	if detection.Success {
		s.tryDetachedCapture(ctx, sessionID, domain, authURL)
		return
	}

	// Pending past the deadline moves to timeout and frees the browser.
	if s.finish(sessionID, models.SessionTimeout, "login not completed before session expiry") {
		s.browsers.Release(sessionID)
	}
}

// tryDetachedCapture captures cookies for a still-pending detached session.
// Idempotent: the first caller to move the session out of pending wins.
func (s *Service) tryDetachedCapture(ctx context.Context, sessionID, domain, authURL string) {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if !ok || rec.session.Status != models.SessionPending {
		s.mu.Unlock()
		return
	}
	userID := rec.session.UserID
	s.mu.Unlock()

	page, err := s.browsers.Get(sessionID)
	if err != nil {
		return
	}

	cookies, err := page.ReadCookies(ctx, authURL)
	if err != nil || len(cookies) == 0 {
		return
	}
	s.validateCapturedCookies(sessionID, domain, cookies)

	if err := s.vault.SetNetscapeCookies(userID, sessionID, domain, cookies); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to store captured cookies")
		return
	}

	if s.finish(sessionID, models.SessionAuthenticated, "") {
		s.browsers.Release(sessionID)
		s.logger.Info().
			Str("session_id", sessionID).
			Str("domain", domain).
			Int("cookie_count", len(cookies)).
			Msg("Detached login captured cookies")
	}
}

// UpdateSessionCookies delivers captured cookies for a pending detached
// session, stores them in the vault and marks the session authenticated.
func (s *Service) UpdateSessionCookies(sessionID string, cookies []models.Cookie) error {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	if rec.session.Status != models.SessionPending {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", interfaces.ErrSessionTerminal, sessionID, rec.session.Status)
	}
	userID := rec.session.UserID
	authURL := rec.session.AuthURL
	s.mu.Unlock()

	domain, err := hostOf(authURL)
	if err != nil {
		return err
	}

	if len(cookies) == 0 {
		return fmt.Errorf("refusing to accept an empty cookie set for session %s", sessionID)
	}
	s.validateCapturedCookies(sessionID, domain, cookies)

	if err := s.vault.SetNetscapeCookies(userID, sessionID, domain, cookies); err != nil {
		return err
	}

	if s.finish(sessionID, models.SessionAuthenticated, "") {
		s.browsers.Release(sessionID)
	}
	return nil
}

// GetSession returns a snapshot of the session
func (s *Service) GetSession(sessionID string) (*models.LoginSession, error) {
	snapshot := s.snapshot(sessionID)
	if snapshot == nil {
		return nil, interfaces.ErrSessionNotFound
	}
	return snapshot, nil
}

// ListSessions returns snapshots of all live sessions for a user; empty
// userID lists everything.
func (s *Service) ListSessions(userID string) []*models.LoginSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]*models.LoginSession, 0, len(s.sessions))
	for _, rec := range s.sessions {
		if userID != "" && rec.session.UserID != userID {
			continue
		}
		copied := *rec.session
		sessions = append(sessions, &copied)
	}
	return sessions
}

// CancelSession moves a pending session to failed and closes its browser
func (s *Service) CancelSession(sessionID string) error {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return interfaces.ErrSessionNotFound
	}
	if rec.session.Status != models.SessionPending {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", interfaces.ErrSessionTerminal, sessionID, rec.session.Status)
	}
	s.mu.Unlock()

	if s.finish(sessionID, models.SessionFailed, "cancelled by caller") {
		s.browsers.Release(sessionID)
	}
	return nil
}

// CleanupExpired sweeps pending sessions past their deadline into the
// timeout state and drops stale terminal sessions. Returns the number of
// pending sessions swept.
func (s *Service) CleanupExpired() int {
	now := time.Now()

	s.mu.Lock()
	var expired []string
	var stale []string
	for id, rec := range s.sessions {
		switch {
		case rec.session.Status == models.SessionPending && rec.session.Expired(now):
			expired = append(expired, id)
		case rec.session.Status.Terminal() && !rec.doneAt.IsZero() && now.Sub(rec.doneAt) > terminalRetention:
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		if s.finish(id, models.SessionTimeout, "session expired") {
			s.browsers.Release(id)
		}
	}

	if len(expired) > 0 || len(stale) > 0 {
		s.logger.Info().
			Int("timed_out", len(expired)).
			Int("removed", len(stale)).
			Msg("Session sweep completed")
	}
	return len(expired)
}

// insert creates a pending session and publishes its first event. A
// non-positive timeout falls back to the configured session deadline.
func (s *Service) insert(userID, authURL string, timeout time.Duration) *models.LoginSession {
	if timeout <= 0 {
		timeout = s.config.Timeout
	}
	now := time.Now()
	session := &models.LoginSession{
		ID:        common.NewSessionID(),
		UserID:    userID,
		AuthURL:   authURL,
		Status:    models.SessionPending,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &record{session: session}
	s.mu.Unlock()

	s.publish(session)
	return session
}

// finish moves a session to a terminal state. Returns false when the
// session is unknown or already terminal, making it safe to call from
// racing paths; only the winning caller releases resources.
func (s *Service) finish(sessionID string, status models.SessionStatus, errMsg string) bool {
	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	if !ok || rec.session.Status != models.SessionPending {
		s.mu.Unlock()
		return false
	}
	rec.session.Status = status
	rec.session.Error = errMsg
	rec.doneAt = time.Now()
	cancel := rec.cancel
	session := *rec.session
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.publish(&session)
	return true
}

func (s *Service) setCancel(sessionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.cancel = cancel
	}
}

func (s *Service) snapshot(sessionID string) *models.LoginSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	copied := *rec.session
	return &copied
}

func (s *Service) publish(session *models.LoginSession) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(models.SessionEvent{
		SessionID: session.ID,
		UserID:    session.UserID,
		Status:    session.Status,
		Error:     session.Error,
		Timestamp: time.Now(),
	})
}

// preparePage configures a fresh browser page and lands it on the auth URL.
// Caller-requested headers must take effect before navigation; failing to
// install them fails the session.
func (s *Service) preparePage(ctx context.Context, page interfaces.Page, authURL string, headers map[string]string) error {
	if len(headers) > 0 {
		if err := page.SetHeaders(ctx, headers); err != nil {
			return fmt.Errorf("failed to install custom headers: %w", err)
		}
	}
	if err := page.SetViewport(ctx, 1280, 800); err != nil {
		s.logger.Warn().Err(err).Msg("Viewport setup failed")
	}
	if err := page.Navigate(ctx, authURL); err != nil {
		return err
	}
	if s.config.ShowBanner {
		if err := page.Evaluate(ctx, notificationScript, nil); err != nil {
			s.logger.Warn().Err(err).Msg("Notification banner injection failed")
		}
	}
	return nil
}

// newDetector builds a login detector tuned to the auth URL's platform. A
// caller-supplied success indicator is checked ahead of the built-in
// selectors; a positive per-call timeout overrides the configured one.
func (s *Service) newDetector(authURL string, opts *models.LoginOptions) interfaces.LoginDetector {
	platform := ""
	if s.detector != nil {
		platform = s.detector.QuickCheck(authURL).Platform
	}
	config := logindetect.ConfigForPlatform(platform)
	config.Timeout = s.config.Timeout
	config.CheckInterval = s.config.PollInterval
	if opts != nil {
		if opts.Timeout > 0 {
			config.Timeout = opts.Timeout
		}
		if opts.SuccessIndicator != "" {
			config.SuccessSelectors = append([]string{opts.SuccessIndicator}, config.SuccessSelectors...)
		}
	}
	return logindetect.NewDetector(config, s.logger)
}

func optsTimeout(opts *models.LoginOptions) time.Duration {
	if opts == nil {
		return 0
	}
	return opts.Timeout
}

func optsHeaders(opts *models.LoginOptions) map[string]string {
	if opts == nil {
		return nil
	}
	return opts.CustomHeaders
}

// captureCookies reads, validates and stores cookies for a standard-flow
// session.
func (s *Service) captureCookies(ctx context.Context, page interfaces.Page, session *models.LoginSession, domain, authURL string) error {
	cookies, err := page.ReadCookies(ctx, authURL)
	if err != nil {
		return fmt.Errorf("failed to read cookies from browser: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("login detected but no cookies captured")
	}

	s.validateCapturedCookies(session.ID, domain, cookies)

	return s.vault.SetNetscapeCookies(session.UserID, session.ID, domain, cookies)
}

// validateCapturedCookies logs suspicious cookie attributes. Validation
// warns rather than rejects: a partially odd cookie set can still work.
// Cookie values are never logged.
func (s *Service) validateCapturedCookies(sessionID, domain string, cookies []models.Cookie) {
	now := time.Now().Unix()
	for _, c := range cookies {
		if c.Domain == "" {
			s.logger.Warn().
				Str("session_id", sessionID).
				Str("cookie_name", c.Name).
				Msg("Captured cookie has no domain attribute")
		}
		if !c.Secure && !strings.Contains(c.Domain, "localhost") {
			s.logger.Debug().
				Str("session_id", sessionID).
				Str("cookie_name", c.Name).
				Msg("Captured cookie is not marked Secure")
		}
		if c.Expires > 0 && c.Expires < now {
			s.logger.Warn().
				Str("session_id", sessionID).
				Str("cookie_name", c.Name).
				Msg("Captured cookie is already expired")
		}
	}
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}
	return strings.ToLower(parsed.Hostname()), nil
}
