package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// Platform errors
	ErrUpstream              = errors.New("upstream platform error")
	ErrPlatformNotFound      = errors.New("platform not found")
	ErrPlatformNotConfigured = errors.New("platform not configured")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrInvalidPayload        = errors.New("invalid webhook payload")

	// Sync errors
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrMapping        = errors.New("order mapping failed")
	ErrPersistence    = errors.New("transaction persistence failed")

	// Store errors
	ErrTransactionNotFound = errors.New("transaction not found")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamError is returned when a remote platform answers with a non-2xx
// status or does not answer before the call timeout.
type UpstreamError struct {
	Platform   string
	Op         string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Platform, e.Op)
	switch {
	case e.Timeout:
		b.WriteString(": timeout")
	case e.StatusCode != 0:
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Retryable reports whether repeating the call may succeed.
func (e *UpstreamError) Retryable() bool {
	if e.Timeout || e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewUpstreamStatusError builds an UpstreamError for a non-2xx response.
func NewUpstreamStatusError(platform, op string, status int, body string) *UpstreamError {
	return &UpstreamError{Platform: platform, Op: op, StatusCode: status, Body: body}
}

// NewUpstreamTimeoutError builds the timeout variant of UpstreamError.
func NewUpstreamTimeoutError(platform, op string, err error) *UpstreamError {
	return &UpstreamError{Platform: platform, Op: op, Timeout: true, Err: err}
}

// MappingError marks a remote order that lacks a field the mapping cannot do without.
type MappingError struct {
	Platform string
	OrderRef string
	Field    string
	Err      error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("%s: cannot map order %q: field %s", e.Platform, e.OrderRef, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

// PersistenceError is returned when the transaction store rejects a write.
type PersistenceError struct {
	TransactionID string
	Attempts      int
	Err           error
}

func (e *PersistenceError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("persist transaction %s after %d attempts: %v", e.TransactionID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("persist transaction %s: %v", e.TransactionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// SyncStage identifies where an item failed during a sync cycle.
type SyncStage string

const (
	StageMap     SyncStage = "map"
	StagePersist SyncStage = "persist"
)

// ItemFailure describes one order that did not make it into the store.
type ItemFailure struct {
	TransactionID string
	OrderRef      string
	Stage         SyncStage
	Err           error
}

// SyncError summarizes the per-item failures of one sync cycle.
type SyncError struct {
	Platform  string
	Total     int
	Succeeded int
	Failures  []ItemFailure
}

func (e *SyncError) Error() string {
	refs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ref := f.TransactionID
		if ref == "" {
			ref = f.OrderRef
		}
		refs = append(refs, fmt.Sprintf("%s (%s: %v)", ref, f.Stage, f.Err))
	}
	return fmt.Sprintf("%s sync: %d of %d orders failed: %s",
		e.Platform, len(e.Failures), e.Total, strings.Join(refs, "; "))
}

// Unwrap exposes the item errors to errors.Is / errors.As.
func (e *SyncError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedIDs returns the transaction ids (or order refs when no id could be
// derived) of the failed items, in fetch order.
func (e *SyncError) FailedIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.TransactionID != "" {
			ids = append(ids, f.TransactionID)
			continue
		}
		ids = append(ids, f.OrderRef)
	}
	return ids
}
