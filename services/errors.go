package services

import (
	"errors"
	"fmt"

	"github.com/upb/tryon-gateway/services/providers"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeRejected    ErrorType = "rejected"
	ErrorTypeExternal    ErrorType = "external"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap derives a request specific error from a sentinel. The result keeps the
// sentinel's type and matches both the sentinel and cause under errors.Is.
func (e *DomainError) Wrap(message string, cause error) *DomainError {
	err := error(e)
	if cause != nil {
		err = fmt.Errorf("%w: %w", e, cause)
	}
	return NewDomainError(e.Type, message, err)
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels. Details go on errors derived with Wrap, never on these.
var (
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrImageRequired       = NewDomainError(ErrorTypeValidation, "image is required", nil)
	ErrUndecodableImage    = NewDomainError(ErrorTypeValidation, "image could not be decoded", nil)
	ErrPreconditionFailed  = NewDomainError(ErrorTypeRejected, "try-on request rejected", nil)
	ErrVendorError         = NewDomainError(ErrorTypeExternal, "vendor error", nil)
	ErrVendorTimeout       = NewDomainError(ErrorTypeTimeout, "vendor timeout", nil)
	ErrNoVendorsConfigured = NewDomainError(ErrorTypeUnavailable, "no vendor has a configured API key", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// ResultError converts a failed try-on result into a DomainError carrying the
// stage. It returns nil for successful results.
func ResultError(res providers.TryOnResult) *DomainError {
	if res.IsSuccess() {
		return nil
	}

	var sentinel *DomainError
	switch res.Stage {
	case providers.StageValidation:
		sentinel = ErrPreconditionFailed
	case providers.StageTimeout:
		sentinel = ErrVendorTimeout
	case providers.StageSubmit, providers.StagePoll, providers.StageDownload:
		sentinel = ErrVendorError
	default:
		sentinel = ErrInternal
	}

	domainErr := sentinel.Wrap(res.Reason, nil).
		WithDetail("stage", string(res.Stage)).
		WithDetail("vendor", string(res.Vendor))
	if res.JobID != "" {
		domainErr.WithDetail("job_id", res.JobID)
	}
	if len(res.Advisories) > 0 {
		domainErr.WithDetail("advisories", res.Advisories)
	}
	return domainErr
}

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a request validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsRejectedError checks if a well formed request was refused before any vendor call
func IsRejectedError(err error) bool { return isType(err, ErrorTypeRejected) }

// IsExternalError checks if an error is a vendor error
func IsExternalError(err error) bool { return isType(err, ErrorTypeExternal) }

// IsTimeoutError checks if an error is a vendor timeout
func IsTimeoutError(err error) bool { return isType(err, ErrorTypeTimeout) }

// IsUnavailableError checks if the service cannot serve requests
func IsUnavailableError(err error) bool { return isType(err, ErrorTypeUnavailable) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return isType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the bare message of a domain error, or err.Error()
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return ErrInternal.Wrap(message, err)
}
