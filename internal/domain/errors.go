package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches DomainErrors by code so wrapped copies compare equal to the
// package-level sentinels.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeCacheCorruption     = "CACHE_CORRUPTION"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Pipeline errors. Stage-local failures degrade; only ErrInvalidInput and a
// failed generation call are allowed to fail a request.
var (
	ErrInvalidInput        = NewDomainError(ErrCodeInvalidInput, "message is empty or missing")
	ErrUpstreamUnavailable = NewDomainError(ErrCodeUpstreamUnavailable, "upstream model service unavailable")
	ErrCacheCorruption     = NewDomainError(ErrCodeCacheCorruption, "stored cache response is malformed")
	ErrGenerationFailed    = NewDomainError(ErrCodeInternalError, "generation failed, please retry")
)

// Lookup errors
var (
	ErrCacheEntryNotFound = NewDomainError(ErrCodeNotFound, "cache entry not found")
	ErrEntryNotFound      = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrDocumentNotFound   = NewDomainError(ErrCodeNotFound, "document object not found")
)

// Authorization errors
var (
	ErrInvalidOwnerToken = NewDomainError(ErrCodeUnauthorized, "invalid owner token")
)
