package download

import (
	"strings"

	"github.com/ternarybob/capto/internal/models"
)

// categoryRule pairs a keyword predicate with a taxonomy outcome. Rules run
// top to bottom and the first match wins, so the more specific categories
// sit above the generic ones: credentials before authentication, network
// before timeout.
type categoryRule struct {
	keywords []string
	category models.ErrorCategory
}

var categoryRules = []categoryRule{
	{
		keywords: []string{"invalid input", "validation failed", "malformed", "missing required"},
		category: models.CategoryValidation,
	},
	{
		keywords: []string{"invalid password", "incorrect password", "wrong password", "invalid credentials", "bad credentials", "password incorrect"},
		category: models.CategoryCredentials,
	},
	{
		keywords: []string{"401", "unauthorized", "login required", "sign in", "signin", "authentication", "not logged in", "cookies are no longer valid", "account required"},
		category: models.CategoryAuthentication,
	},
	{
		keywords: []string{"403", "forbidden", "access denied", "permission denied", "not authorized", "private video", "members only", "members-only"},
		category: models.CategoryAuthorization,
	},
	{
		keywords: []string{"404", "not found", "no such", "does not exist", "video unavailable", "removed"},
		category: models.CategoryNotFound,
	},
	{
		keywords: []string{"429", "rate limit", "too many requests", "quota exceeded", "throttl"},
		category: models.CategoryRateLimit,
	},
	{
		keywords: []string{"connection refused", "connection reset", "no such host", "dns", "network", "unreachable", "broken pipe", "eof"},
		category: models.CategoryNetwork,
	},
	{
		keywords: []string{"timeout", "timed out", "deadline exceeded"},
		category: models.CategoryTimeout,
	},
	{
		keywords: []string{"badger", "database", "transaction", "key not found"},
		category: models.CategoryDatabase,
	},
	{
		keywords: []string{"unsupported url", "unsupported format", "no video formats", "extractor", "unable to extract", "requested format", "postprocess", "ffmpeg"},
		category: models.CategoryExternalService,
	},
}

// classifyError maps a free-text error message to the service taxonomy.
// Unclassified messages land in internal.
func classifyError(message string) models.ErrorCategory {
	lower := strings.ToLower(message)
	for _, rule := range categoryRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.category
			}
		}
	}
	return models.CategoryInternal
}

// errorClassOf collapses the full taxonomy into the 5-way class the retry
// policy works with.
func errorClassOf(category models.ErrorCategory) models.ErrorClass {
	switch category {
	case models.CategoryAuthentication, models.CategoryCredentials, models.CategoryAuthorization:
		return models.ErrClassAuth
	case models.CategoryNetwork, models.CategoryRateLimit:
		return models.ErrClassNetwork
	case models.CategoryTimeout:
		return models.ErrClassTimeout
	case models.CategoryExternalService, models.CategoryValidation, models.CategoryNotFound:
		return models.ErrClassFormat
	default:
		return models.ErrClassUnknown
	}
}

// classifyDownloadError is the single entry point used by the retry loop.
func classifyDownloadError(message string) (models.ErrorCategory, models.ErrorClass) {
	category := classifyError(message)
	return category, errorClassOf(category)
}
