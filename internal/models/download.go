package models

import "time"

// ErrorClass buckets download failures for the retry policy.
type ErrorClass string

const (
	ErrClassAuth    ErrorClass = "auth"
	ErrClassNetwork ErrorClass = "network"
	ErrClassFormat  ErrorClass = "format"
	ErrClassTimeout ErrorClass = "timeout"
	ErrClassUnknown ErrorClass = "unknown"
)

// Retryable reports whether the class is eligible for backoff-and-retry.
// Auth errors are never retried blindly; format/unknown are terminal.
func (c ErrorClass) Retryable() bool {
	return c == ErrClassNetwork || c == ErrClassTimeout
}

// ErrorCategory is the full service-wide error taxonomy. Classification is
// keyword-based over the lowercased message in a fixed specificity order.
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryAuthentication  ErrorCategory = "authentication"
	CategoryCredentials     ErrorCategory = "credentials"
	CategoryAuthorization   ErrorCategory = "authorization"
	CategoryNotFound        ErrorCategory = "not_found"
	CategoryRateLimit       ErrorCategory = "rate_limit"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryNetwork         ErrorCategory = "network"
	CategoryDatabase        ErrorCategory = "database"
	CategoryExternalService ErrorCategory = "external_service"
	CategoryInternal        ErrorCategory = "internal"
)

// AuthMethod records how a download obtained its cookies.
type AuthMethod string

const (
	AuthMethodNone        AuthMethod = "none"
	AuthMethodStored      AuthMethod = "stored"
	AuthMethodInteractive AuthMethod = "interactive"
)

// DownloadRequest is a single acquisition request handed to the orchestrator.
type DownloadRequest struct {
	UserID            string `json:"user_id" validate:"required"`
	URL               string `json:"url" validate:"required,url"`
	SkipAuthDetection bool   `json:"skip_auth_detection,omitempty"`
	ForceAuth         bool   `json:"force_auth,omitempty"`
	Quality           string `json:"quality,omitempty"`
}

// DownloadResult is the outcome of an acquisition, successful or not.
type DownloadResult struct {
	Success    bool       `json:"success"`
	Filename   string     `json:"filename,omitempty"`
	Size       int64      `json:"size,omitempty"`
	MimeType   string     `json:"mime_type,omitempty"`
	Platform   string     `json:"platform,omitempty"`
	SourceURL  string     `json:"source_url"`
	AuthMethod AuthMethod `json:"auth_method"`
	Attempts   int        `json:"attempts"`
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// DownloadRecord is the persisted history entry for a completed download.
type DownloadRecord struct {
	ID         string     `json:"id" badgerhold:"key"`
	UserID     string     `json:"user_id" badgerholdIndex:"UserID"`
	URL        string     `json:"url"`
	Filename   string     `json:"filename"`
	Size       int64      `json:"size"`
	MimeType   string     `json:"mime_type"`
	Platform   string     `json:"platform"`
	AuthMethod AuthMethod `json:"auth_method"`
	CreatedAt  time.Time  `json:"created_at"`
}
