package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the catalog and ledger. Handlers map these to HTTP
// statuses in one place; services never swallow them.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrTransient      = errors.New("storage temporarily unavailable")
	ErrParentNotFound = errors.New("parent category not found")
	ErrCycleDetected  = errors.New("category cycle detected")
	ErrHasChildren    = errors.New("category has child categories")
	ErrHasListings    = errors.New("category has listings")
)

// ValidationError reports a malformed input field. Safe to surface verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// QuotaError reports an exhausted subscription allotment. It carries which
// quota failed and the remaining count so callers can act, without leaking
// anything about other users.
type QuotaError struct {
	Quota     string
	Remaining int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (remaining %d)", e.Quota, e.Remaining)
}

// IsQuotaError reports whether err is a quota exhaustion error.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
