package detector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/httpclient"
	"github.com/ternarybob/capto/internal/models"
	"golang.org/x/time/rate"
)

// maxProbeBody bounds how much HTML the probe will read when scanning a
// page body for login markers.
const maxProbeBody = 64 * 1024

// redirectAuthWords are scanned in redirect targets.
var redirectAuthWords = []string{"login", "signin", "sign-in", "auth", "sso", "account"}

// bodyAuthKeywords are scanned in HTML body text.
var bodyAuthKeywords = []string{"sign in", "log in", "login required", "authentication required", "please authenticate"}

// probe issues bounded HEAD/GET requests to refine a classification.
// Failures never propagate; they degrade to an indicator.
type probe struct {
	headClient      *http.Client
	bodyClient      *http.Client
	limiter         *rate.Limiter
	timeout         time.Duration
	followRedirects bool
	userAgent       string
	logger          arbor.ILogger
}

func newProbe(config *common.DetectorConfig, logger arbor.ILogger) *probe {
	return &probe{
		// The HEAD client never follows redirects so the first Location
		// target can be inspected for auth words.
		headClient:      httpclient.NewProbeClient(config.ProbeTimeout, false),
		bodyClient:      httpclient.NewProbeClient(config.ProbeTimeout, config.FollowRedirects),
		limiter:         rate.NewLimiter(rate.Every(config.ProbeRateLimit), 1),
		timeout:         config.ProbeTimeout,
		followRedirects: config.FollowRedirects,
		userAgent:       config.UserAgent,
		logger:          logger,
	}
}

// callSetup resolves the clients and user agent for one probe call. The
// cached default clients serve unless the caller overrides timeout or
// redirect policy.
func (p *probe) callSetup(opts *models.DetectOptions) (head, body *http.Client, userAgent string) {
	head, body, userAgent = p.headClient, p.bodyClient, p.userAgent
	if opts == nil {
		return
	}
	if opts.UserAgent != "" {
		userAgent = opts.UserAgent
	}
	if opts.ProbeTimeout > 0 || opts.FollowRedirects != nil {
		timeout := p.timeout
		if opts.ProbeTimeout > 0 {
			timeout = opts.ProbeTimeout
		}
		follow := p.followRedirects
		if opts.FollowRedirects != nil {
			follow = *opts.FollowRedirects
		}
		head = httpclient.NewProbeClient(timeout, false)
		body = httpclient.NewProbeClient(timeout, follow)
	}
	return
}

// run executes the probe stage against rawURL, appending indicators and
// raising confidence on result.
func (p *probe) run(ctx context.Context, rawURL string, result *models.AuthRequirementResult, opts *models.DetectOptions) {
	headClient, bodyClient, userAgent := p.callSetup(opts)

	if err := p.limiter.Wait(ctx); err != nil {
		result.Indicators = append(result.Indicators, "HTTP request failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		result.Indicators = append(result.Indicators, "HTTP request failed")
		return
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := headClient.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("url", rawURL).Msg("Probe HEAD request failed")
		result.Indicators = append(result.Indicators, "HTTP request failed")
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		result.Confidence = result.Confidence.Raise(models.ConfidenceHigh)
		result.Indicators = append(result.Indicators, "HTTP 401 Unauthorized")
		return
	case resp.StatusCode == http.StatusForbidden:
		result.Confidence = result.Confidence.Raise(models.ConfidenceHigh)
		result.Indicators = append(result.Indicators, "HTTP 403 Forbidden")
		return
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := strings.ToLower(resp.Header.Get("Location"))
		for _, word := range redirectAuthWords {
			if strings.Contains(location, word) {
				result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
				result.Indicators = append(result.Indicators, "Redirect to authentication page")
				return
			}
		}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		p.scanBody(ctx, rawURL, result, bodyClient, userAgent)
	}
}

// scanBody fetches a bounded HTML prefix and looks for login markers.
func (p *probe) scanBody(ctx context.Context, rawURL string, result *models.AuthRequirementResult, client *http.Client, userAgent string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("url", rawURL).Msg("Probe body fetch failed")
		result.Indicators = append(result.Indicators, "HTTP request failed")
		return
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return
	}

	if doc.Find(`input[type="password"]`).Length() > 0 {
		result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
		result.Indicators = append(result.Indicators, "Password field in page")
	}
	if doc.Find(`form[action*="login"], form[id*="login"], form[class*="login"]`).Length() > 0 {
		result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
		result.Indicators = append(result.Indicators, "Login form in page")
	}

	text := strings.ToLower(doc.Text())
	for _, keyword := range bodyAuthKeywords {
		if strings.Contains(text, keyword) {
			result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
			result.Indicators = append(result.Indicators, fmt.Sprintf("Auth keyword %q in page text", keyword))
			break
		}
	}
}
