package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// WithDetails returns a copy of the error carrying the given diagnostic payload
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes used across the core. They map onto HTTP statuses in the dto package.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeConflict    = "CONFLICT"
	CodeUpstream    = "UPSTREAM_ERROR"
	CodeUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

// NewValidationError reports bad input (400)
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError reports an unknown client or session (404)
func NewNotFoundError(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

// NewConflictError reports an already-settled or in-flight resource (409)
func NewConflictError(format string, args ...any) *DomainError {
	return NewDomainError(CodeConflict, fmt.Sprintf(format, args...))
}

// NewUpstreamError reports a provider failure (502)
func NewUpstreamError(format string, args ...any) *DomainError {
	return NewDomainError(CodeUpstream, fmt.Sprintf(format, args...))
}

// NewUnavailableError reports a provider that is unreachable or misconfigured (503)
func NewUnavailableError(format string, args ...any) *DomainError {
	return NewDomainError(CodeUnavailable, fmt.Sprintf(format, args...))
}

// NewInternalError reports an unexpected failure (500)
func NewInternalError(format string, args ...any) *DomainError {
	return NewDomainError(CodeInternal, fmt.Sprintf(format, args...))
}

// Common domain errors
var (
	ErrNotFound     = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput = NewDomainError(CodeValidation, "Invalid input provided")
)

// IsCode reports whether err is a DomainError with the given code
func IsCode(err error, code string) bool {
	de, ok := AsDomainError(err)
	return ok && de.Code == code
}

// AsDomainError unwraps err into a DomainError
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
