package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	ErrKindAuth         ErrorKind = "authentication"
	ErrKindRateLimit    ErrorKind = "rate_limit"
	ErrKindInvalidInput ErrorKind = "invalid_input"
	ErrKindUnavailable  ErrorKind = "unavailable"
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindUnknown      ErrorKind = "unknown"
)

// ProviderError is a failure surfaced by a provider, classified by kind
// so callers can decide whether to retry.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrKindRateLimit, ErrKindUnavailable, ErrKindTimeout:
		return true
	}
	return false
}

// NewProviderError builds a classified provider error wrapping err.
func NewProviderError(provider string, kind ErrorKind, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: message, Err: err}
}

// ErrorFromStatusCode classifies an HTTP status from a provider API.
func ErrorFromStatusCode(provider string, status int, message string) *ProviderError {
	kind := ErrKindUnknown
	switch {
	case status == 401 || status == 403:
		kind = ErrKindAuth
	case status == 408:
		kind = ErrKindTimeout
	case status == 429:
		kind = ErrKindRateLimit
	case status == 400 || status == 422:
		kind = ErrKindInvalidInput
	case status >= 500:
		kind = ErrKindUnavailable
	}
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Message: message}
}

// IsRetryable reports whether err is a retryable provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
