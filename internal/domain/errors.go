package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures surfaced by the risk fusion core
type ErrorKind string

// Error kinds for different failure scenarios
const (
	KindConfiguration       ErrorKind = "CONFIGURATION_ERROR"
	KindValidation          ErrorKind = "VALIDATION_ERROR"
	KindUnsupportedLanguage ErrorKind = "UNSUPPORTED_LANGUAGE"
	KindAuthentication      ErrorKind = "AUTHENTICATION_ERROR"
	KindUpstreamClient      ErrorKind = "UPSTREAM_CLIENT_ERROR"
	KindTransientUpstream   ErrorKind = "TRANSIENT_UPSTREAM_ERROR"
	KindExhaustedRetries    ErrorKind = "EXHAUSTED_RETRIES"
	KindUnavailable         ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindNumericDomain       ErrorKind = "NUMERIC_DOMAIN_ERROR"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// RiskError is the structured outcome returned upward to the web and MCP layers
type RiskError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	// RetryAfter carries an upstream wait hint for transient errors
	RetryAfter time.Duration `json:"-"`
	// StatusCode is the upstream HTTP status, when there was one
	StatusCode int `json:"-"`

	Err error `json:"-"`
}

// Error implements the error interface
func (e *RiskError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *RiskError) Unwrap() error {
	return e.Err
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewConfigurationError reports missing or placeholder configuration
func NewConfigurationError(message string) *RiskError {
	return &RiskError{Kind: KindConfiguration, Message: message}
}

// NewUnsupportedLanguageError reports a language outside a provider allow-list
func NewUnsupportedLanguageError(provider, language string, supported []string) *RiskError {
	return &RiskError{
		Kind:    KindUnsupportedLanguage,
		Message: fmt.Sprintf("language %q is not supported by %s", language, provider),
		Details: fmt.Sprintf("supported languages: %v", supported),
	}
}

// NewAuthenticationError reports upstream rejection of credentials
func NewAuthenticationError(provider string, status int, cause error) *RiskError {
	return &RiskError{
		Kind:       KindAuthentication,
		Message:    fmt.Sprintf("authentication failed with %s, check the API key", provider),
		StatusCode: status,
		Err:        cause,
	}
}

// NewUpstreamClientError reports a terminal 4xx response
func NewUpstreamClientError(provider string, status int, body string) *RiskError {
	return &RiskError{
		Kind:       KindUpstreamClient,
		Message:    fmt.Sprintf("%s rejected the request with status %d", provider, status),
		Details:    body,
		StatusCode: status,
	}
}

// NewTransientUpstreamError reports a retryable upstream failure
func NewTransientUpstreamError(provider string, status int, retryAfter time.Duration, cause error) *RiskError {
	msg := fmt.Sprintf("%s request failed", provider)
	if status != 0 {
		msg = fmt.Sprintf("%s returned status %d", provider, status)
	}
	return &RiskError{
		Kind:       KindTransientUpstream,
		Message:    msg,
		RetryAfter: retryAfter,
		StatusCode: status,
		Err:        cause,
	}
}

// NewExhaustedRetriesError wraps the last failure after the retry budget is spent
func NewExhaustedRetriesError(attempts int, last error) *RiskError {
	return &RiskError{
		Kind:    KindExhaustedRetries,
		Message: fmt.Sprintf("transcription failed after %d attempts", attempts),
		Err:     last,
	}
}

// NewUnavailableError reports a provider short-circuited after repeated exhaustion
func NewUnavailableError(provider string, cause error) *RiskError {
	return &RiskError{
		Kind:    KindUnavailable,
		Message: fmt.Sprintf("%s is temporarily unavailable, try again later", provider),
		Err:     cause,
	}
}

// NewNumericDomainError reports an update that would divide by zero or leave the reals
func NewNumericDomainError(message string) *RiskError {
	return &RiskError{Kind: KindNumericDomain, Message: message}
}

// KindOf returns the kind of the first RiskError in the chain.
// A bare ValidationError is reported as KindValidation.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var riskErr *RiskError
	if errors.As(err, &riskErr) {
		return riskErr.Kind
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindValidation
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// RetryAfterHint returns the upstream wait hint carried by err, if any
func RetryAfterHint(err error) (time.Duration, bool) {
	var riskErr *RiskError
	if errors.As(err, &riskErr) && riskErr.RetryAfter > 0 {
		return riskErr.RetryAfter, true
	}
	return 0, false
}
