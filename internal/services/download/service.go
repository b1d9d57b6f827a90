package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// Service is the top-level acquisition orchestrator: classify the URL, pick
// a cookie source, invoke the download utility, classify failures, retry
// transients and escalate to interactive auth exactly once on auth errors.
type Service struct {
	runner   Runner
	detector interfaces.AuthDetector
	sessions interfaces.SessionService
	vault    interfaces.CookieVault
	history  interfaces.DownloadStorage
	config   *common.DownloadConfig
	logger   arbor.ILogger
}

// NewService wires the orchestrator. history may be nil in tests.
func NewService(
	runner Runner,
	detector interfaces.AuthDetector,
	sessions interfaces.SessionService,
	vault interfaces.CookieVault,
	history interfaces.DownloadStorage,
	config *common.DownloadConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		runner:   runner,
		detector: detector,
		sessions: sessions,
		vault:    vault,
		history:  history,
		config:   config,
		logger:   logger,
	}
}

// attemptOutcome carries the result of one downloadWithCookies run.
type attemptOutcome struct {
	output   *RunOutput
	attempts int
	class    models.ErrorClass
	category models.ErrorCategory
	errMsg   string
}

func (o *attemptOutcome) ok() bool { return o.output != nil }

// Fetch runs the full acquisition workflow for one request.
func (s *Service) Fetch(ctx context.Context, req *models.DownloadRequest) (*models.DownloadResult, error) {
	result := &models.DownloadResult{
		SourceURL:  req.URL,
		AuthMethod: models.AuthMethodNone,
	}

	domain, err := hostOf(req.URL)
	if err != nil {
		result.ErrorClass = models.ErrClassFormat
		result.Error = fmt.Sprintf("invalid URL: %v", err)
		return result, nil
	}

	var detection *models.AuthRequirementResult
	if !req.SkipAuthDetection {
		detection = s.detector.DetectAuthRequirement(ctx, req.URL, nil)
		result.Platform = detection.Platform
		s.logger.Debug().
			Str("url", req.URL).
			Bool("requires_auth", detection.RequiresAuth).
			Str("confidence", string(detection.Confidence)).
			Msg("Auth requirement classified")
	}

	// Stored cookies win over a fresh interactive login. Lazy expiry in the
	// vault is the staleness guard: an expired record reads as absent. A
	// corrupt or undecryptable record is terminal for this request.
	cookieText, err := s.storedCookies(req.UserID, domain)
	if err != nil {
		result.ErrorClass = models.ErrClassUnknown
		result.Error = fmt.Sprintf("stored cookie lookup failed: %v", err)
		return result, nil
	}
	if cookieText != "" {
		result.AuthMethod = models.AuthMethodStored
	} else if req.ForceAuth || (detection != nil && detection.RequiresAuth) {
		cookieText, err = s.interactiveCookies(ctx, req.UserID, req.URL)
		if err != nil {
			result.ErrorClass = models.ErrClassAuth
			result.Error = err.Error()
			return result, nil
		}
		result.AuthMethod = models.AuthMethodInteractive
	}

	outcome := s.downloadWithCookies(ctx, req, cookieText, domain, s.config.MaxAttempts)
	result.Attempts = outcome.attempts

	// One escalation: an auth failure without a prior interactive attempt
	// triggers interactive login and a single retry with the new cookies.
	if !outcome.ok() && outcome.class == models.ErrClassAuth && result.AuthMethod != models.AuthMethodInteractive {
		s.logger.Info().
			Str("url", req.URL).
			Str("domain", domain).
			Msg("Download failed with auth error, escalating to interactive login")

		cookieText, err = s.interactiveCookies(ctx, req.UserID, req.URL)
		if err != nil {
			result.ErrorClass = models.ErrClassAuth
			result.Error = fmt.Sprintf("%s (interactive login failed: %v)", outcome.errMsg, err)
			return result, nil
		}
		result.AuthMethod = models.AuthMethodInteractive

		retry := s.downloadWithCookies(ctx, req, cookieText, domain, 1)
		result.Attempts += retry.attempts
		outcome = retry
	}

	if !outcome.ok() {
		result.ErrorClass = outcome.class
		result.Error = outcome.errMsg
		return result, nil
	}

	result.Success = true
	result.Filename = outcome.output.Filename
	result.Size = outcome.output.Size
	result.MimeType = outcome.output.MimeType
	if outcome.output.Platform != "" {
		result.Platform = outcome.output.Platform
	}

	s.saveRecord(req, result)

	s.logger.Info().
		Str("url", req.URL).
		Str("filename", result.Filename).
		Int64("size", result.Size).
		Str("auth_method", string(result.AuthMethod)).
		Int("attempts", result.Attempts).
		Msg("Download completed")

	return result, nil
}

// History returns the user's most recent download records, newest first.
func (s *Service) History(userID string, limit int) ([]*models.DownloadRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListByUser(userID, limit)
}

// downloadWithCookies runs the bounded retry loop around the utility.
// network/timeout errors back off and retry; an auth error invalidates the
// domain's vault record and returns immediately; format/unknown are
// terminal. The cookie temp file is unique per attempt and always removed.
func (s *Service) downloadWithCookies(ctx context.Context, req *models.DownloadRequest, cookieText, domain string, maxAttempts int) *attemptOutcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	outcome := &attemptOutcome{}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.attempts = attempt

		output, err := s.runOnce(ctx, req, cookieText)
		if err == nil {
			outcome.output = output
			return outcome
		}

		outcome.errMsg = err.Error()
		outcome.category, outcome.class = classifyDownloadError(outcome.errMsg)

		s.logger.Warn().
			Str("url", req.URL).
			Int("attempt", attempt).
			Str("category", string(outcome.category)).
			Str("class", string(outcome.class)).
			Msg("Download attempt failed")

		if outcome.class == models.ErrClassAuth {
			// Stale credentials must not be retried blindly.
			if cookieText != "" {
				if err := s.vault.InvalidateDomain(req.UserID, domain); err != nil {
					s.logger.Warn().Err(err).Str("domain", domain).Msg("Cookie invalidation failed")
				}
			}
			return outcome
		}
		if !outcome.class.Retryable() || attempt == maxAttempts {
			return outcome
		}

		delay := s.config.BackoffBase * (1 << (attempt - 1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			outcome.errMsg = ctx.Err().Error()
			outcome.category, outcome.class = models.CategoryTimeout, models.ErrClassTimeout
			return outcome
		}
	}
	return outcome
}

// runOnce performs a single utility invocation with its own cookie file.
func (s *Service) runOnce(ctx context.Context, req *models.DownloadRequest, cookieText string) (*RunOutput, error) {
	cookieFile := ""
	if cookieText != "" {
		file, err := os.CreateTemp("", "capto-cookies-*.txt")
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie file: %w", err)
		}
		cookieFile = file.Name()
		defer os.Remove(cookieFile)

		if _, err := file.WriteString(cookieText); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write cookie file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to write cookie file: %w", err)
		}
	}

	return s.runner.Run(ctx, req.URL, cookieFile, req.Quality)
}

// storedCookies returns the vault's Netscape payload for the domain. An
// absent or expired record reads as no cookies; any other vault failure
// (decryption, integrity, storage) propagates.
func (s *Service) storedCookies(userID, domain string) (string, error) {
	payload, err := s.vault.GetByDomain(userID, domain)
	if err != nil {
		if errors.Is(err, interfaces.ErrNoCookies) || errors.Is(err, interfaces.ErrCookiesExpired) {
			return "", nil
		}
		return "", err
	}
	return string(payload), nil
}

// interactiveCookies runs the interactive login flow and returns the newly
// captured Netscape payload.
func (s *Service) interactiveCookies(ctx context.Context, userID, authURL string) (string, error) {
	login, err := s.sessions.HandleLogin(ctx, userID, authURL, nil)
	if err != nil {
		return "", err
	}
	if !login.Success {
		if login.Error != "" {
			return "", fmt.Errorf("interactive login failed: %s", login.Error)
		}
		return "", fmt.Errorf("interactive login failed")
	}

	payload, err := s.vault.Get(userID, login.SessionID)
	if err != nil {
		return "", fmt.Errorf("login succeeded but cookies unavailable: %w", err)
	}
	return string(payload), nil
}

func (s *Service) saveRecord(req *models.DownloadRequest, result *models.DownloadResult) {
	if s.history == nil {
		return
	}
	record := &models.DownloadRecord{
		ID:         common.NewDownloadID(),
		UserID:     req.UserID,
		URL:        req.URL,
		Filename:   result.Filename,
		Size:       result.Size,
		MimeType:   result.MimeType,
		Platform:   result.Platform,
		AuthMethod: result.AuthMethod,
		CreatedAt:  time.Now(),
	}
	if err := s.history.SaveRecord(record); err != nil {
		s.logger.Warn().Err(err).Str("url", req.URL).Msg("Failed to persist download record")
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
