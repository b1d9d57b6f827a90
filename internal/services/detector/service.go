package detector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/models"
)

// Service classifies whether a URL requires authentication. Classification
// runs in fixed stages, each able to raise confidence but never lower it:
// URL path patterns, platform and domain heuristics, then an optional
// network probe.
type Service struct {
	config *common.DetectorConfig
	probe  *probe
	logger arbor.ILogger
}

// NewService creates an auth requirement classifier
func NewService(config *common.DetectorConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		probe:  newProbe(config, logger),
		logger: logger,
	}
}

// DetectAuthRequirement runs the full staged classification, including the
// optional network probe. opts may be nil; per-call timeout, user agent and
// redirect policy override the configured probe defaults. Never returns an
// error: malformed input yields a structured negative result and probe
// failures degrade confidence instead of failing the call.
func (s *Service) DetectAuthRequirement(ctx context.Context, rawURL string, opts *models.DetectOptions) *models.AuthRequirementResult {
	result, settled := s.classifyOffline(rawURL)

	if !settled && s.config.ProbeEnabled && result.Confidence != models.ConfidenceHigh {
		s.probe.run(ctx, rawURL, result, opts)
	}

	s.decide(result)

	s.logger.Debug().
		Str("url", rawURL).
		Bool("requires_auth", result.RequiresAuth).
		Str("confidence", string(result.Confidence)).
		Strs("indicators", result.Indicators).
		Msg("Auth requirement classified")

	return result
}

// QuickCheck runs only the offline stages (URL patterns, known platforms,
// domain heuristics). Never touches the network.
func (s *Service) QuickCheck(rawURL string) *models.AuthRequirementResult {
	result, _ := s.classifyOffline(rawURL)
	s.decide(result)
	return result
}

// classifyOffline runs the network-free stages. settled=true means the
// verdict is final and probing would add nothing (malformed input, known
// open platform).
func (s *Service) classifyOffline(rawURL string) (result *models.AuthRequirementResult, settled bool) {
	result = &models.AuthRequirementResult{
		Confidence: models.ConfidenceLow,
		Indicators: []string{},
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.Indicators = []string{"Invalid URL format"}
		result.Reasoning = "URL could not be parsed"
		return result, true
	}

	host := strings.ToLower(parsed.Hostname())
	path := strings.ToLower(parsed.EscapedPath())

	// Open platforms short-circuit: public content regardless of path.
	if name, ok := matchOpenPlatform(host); ok {
		result.Platform = name
		result.Reasoning = fmt.Sprintf("%s is a known open platform", name)
		return result, true
	}

	// Stage 1: URL path patterns.
	for _, segment := range authPathSegments {
		if strings.Contains(path, segment) {
			result.Confidence = result.Confidence.Raise(models.ConfidenceHigh)
			result.Indicators = append(result.Indicators, fmt.Sprintf("Protected path segment %q", segment))
		}
	}

	// Stage 2: domain heuristics. The .edu suffix alone is decisive.
	if strings.HasSuffix(host, ".edu") {
		result.Confidence = result.Confidence.Raise(models.ConfidenceHigh)
		result.Indicators = append(result.Indicators, "Educational institution domain (.edu)")
	}
	for _, keyword := range institutionalKeywords {
		if strings.Contains(host, keyword) {
			result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
			result.Indicators = append(result.Indicators, fmt.Sprintf("Institutional keyword %q in domain", keyword))
		}
	}

	// Stage 3: platform fingerprint against auth-walled systems.
	if name, ok := matchAuthPlatform(host); ok {
		result.Platform = name
		result.AuthType = models.AuthTypeLogin
		result.Confidence = result.Confidence.Raise(models.ConfidenceMedium)
		result.Indicators = append(result.Indicators, fmt.Sprintf("%s platform detected", name))
	}

	return result, false
}

// decide applies the final rule: high confidence, medium with two distinct
// indicators, or low with three.
func (s *Service) decide(result *models.AuthRequirementResult) {
	result.Indicators = dedupe(result.Indicators)

	count := len(result.Indicators)
	switch result.Confidence {
	case models.ConfidenceHigh:
		result.RequiresAuth = count > 0
	case models.ConfidenceMedium:
		result.RequiresAuth = count >= 2
	default:
		result.RequiresAuth = count >= 3
	}

	if result.Reasoning == "" {
		if result.RequiresAuth {
			result.Reasoning = fmt.Sprintf("%d indicator(s) at %s confidence", count, result.Confidence)
		} else {
			result.Reasoning = "No strong authentication indicators found"
		}
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
