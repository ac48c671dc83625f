package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these map to specific HTTP responses
var (
	// Session errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionTerminal     = errors.New("session is finalized")
	ErrSessionExpired      = errors.New("session expired due to inactivity")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrInvalidTransition   = errors.New("invalid session transition")
	ErrStepOutOfRange      = errors.New("wizard step out of range")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrSessionContext      = errors.New("missing session context")

	// Tax ID errors
	ErrInvalidTaxID     = errors.New("INVALID_FORMAT")
	ErrTaxpayerNotFound = errors.New("taxpayer not found for tax id")

	// Conflict errors
	ErrNoConflict       = errors.New("no conflicting session")
	ErrInvalidDecision  = errors.New("invalid conflict decision")
	ErrConflictUnsolved = errors.New("conflicting session requires a decision")

	// Payment errors
	ErrPaymentRequired   = errors.New("payment required before filing")
	ErrPaymentInProgress = errors.New("payment already processing")
	ErrAlreadyPaid       = errors.New("payment already completed")
	ErrPaymentFailed     = errors.New("payment failed")

	// Filing errors
	ErrFilingRejected = errors.New("filing rejected")

	// Infrastructure errors
	ErrStoreUnavailable    = errors.New("record store unavailable")
	ErrCacheMiss           = errors.New("cache miss")
	ErrLookupUnavailable   = errors.New("identity lookup unavailable")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// General errors
	ErrNotFound     = errors.New("not found")
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation error")
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d errors", len(e.Errors))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Add appends a validation error.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// OrNil returns e when it holds errors, nil otherwise.
func (e *ValidationErrors) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// UpstreamError carries a message reported verbatim by an external service.
type UpstreamError struct {
	Kind    error
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// NewUpstreamError creates an error of the given kind with an upstream message.
func NewUpstreamError(kind error, message string) *UpstreamError {
	return &UpstreamError{Kind: kind, Message: message}
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
