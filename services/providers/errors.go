package providers

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindSubmitFailed      ErrorKind = "submit_failed"
	KindPollFailed        ErrorKind = "poll_failed"
	KindTimeout           ErrorKind = "timeout"
	KindDownloadFailed    ErrorKind = "download_failed"
)

// Stage returns the pipeline stage a failure of this kind is reported at
func (k ErrorKind) Stage() Stage {
	switch k {
	case KindMissingCredential, KindInvalidInput:
		return StageValidation
	case KindPollFailed:
		return StagePoll
	case KindTimeout:
		return StageTimeout
	case KindDownloadFailed:
		return StageDownload
	default:
		return StageSubmit
	}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Kind classifies the failure
	Kind ErrorKind

	// Message is the human readable reason
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Stage returns the stage this error is reported at
func (e *ProviderError) Stage() Stage {
	return e.Kind.Stage()
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, kind ErrorKind, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// MissingCredential is returned before any network call when no API key is set
func MissingCredential(provider string) *ProviderError {
	return NewProviderError(provider, KindMissingCredential, fmt.Sprintf("%s API key is not configured", provider), 0, nil)
}

// InvalidInput reports a request the vendor cannot accept
func InvalidInput(provider, message string) *ProviderError {
	return NewProviderError(provider, KindInvalidInput, message, 0, nil)
}

// AsProviderError extracts a *ProviderError from err
func AsProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}

// KindOf returns the error kind, or "" for foreign errors
func KindOf(err error) ErrorKind {
	if provErr, ok := AsProviderError(err); ok {
		return provErr.Kind
	}
	return ""
}
