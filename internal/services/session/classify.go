package session

import (
	"strings"

	"github.com/ternarybob/capto/internal/models"
)

// loginErrorRule pairs a keyword predicate with its classification outcome.
// Rules are evaluated top to bottom; the first match wins, so more specific
// keyword sets come before generic ones.
type loginErrorRule struct {
	keywords   []string
	class      models.LoginErrorClass
	suggestion string
}

var loginErrorRules = []loginErrorRule{
	{
		keywords:   []string{"timeout", "timed out", "deadline exceeded", "expired"},
		class:      models.LoginErrTimeout,
		suggestion: "The login attempt took too long. Try again and complete the login promptly.",
	},
	{
		keywords:   []string{"unauthorized", "forbidden", "invalid password", "incorrect password", "wrong password", "invalid credentials", "authentication failed"},
		class:      models.LoginErrCredentials,
		suggestion: "The site rejected the credentials. Check your username and password and try again.",
	},
	{
		keywords:   []string{"network", "dns", "connection refused", "no such host", "unreachable"},
		class:      models.LoginErrNetwork,
		suggestion: "Could not reach the site. Check your network connection and try again.",
	},
	{
		keywords:   []string{"browser", "page", "navigation", "chrome", "target closed"},
		class:      models.LoginErrBrowser,
		suggestion: "The browser window failed. Close other browser windows and try again.",
	},
}

const unknownSuggestion = "An unexpected error occurred during login. Try again; if it persists, check the service logs."

// classifyLoginError maps a free-text error message to a login error class
// and its fixed remediation string.
func classifyLoginError(message string) (models.LoginErrorClass, string) {
	lower := strings.ToLower(message)
	for _, rule := range loginErrorRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.class, rule.suggestion
			}
		}
	}
	return models.LoginErrUnknown, unknownSuggestion
}
