// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Infrastructure errors
	ErrStorage                = errors.New("storage failure")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrTimeout                = errors.New("operation timeout")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "practice", "progress", "achievement"
	Op      string // Operation that failed, e.g. "Validate", "ApplyPoints"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching. A sentinel *DomainError matches any
// error of the same domain, kind and message regardless of the operation.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Kind == t.Kind && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Engine errors surfaced to callers.
var (
	// ErrInvalidSubmission rejects a malformed submission before any mutation.
	ErrInvalidSubmission = NewDomainError("practice", "Validate", ErrValidation, "invalid submission data")

	// ErrStorageFailure is any persistence error in a correctness-critical stage.
	ErrStorageFailure = NewDomainError("practice", "Submit", ErrStorage, "failed to submit practice session")

	// ErrLockTimeout means the per-student lock could not be acquired in time.
	ErrLockTimeout = NewDomainError("practice", "Lock", ErrTimeout, "student is busy with another submission")

	// ErrDuplicateSession means the client session id was already recorded for the student.
	ErrDuplicateSession = NewDomainError("practice", "Record", ErrAlreadyExists, "practice session already recorded")
)

// InvalidSubmission wraps a validation reason as an ErrInvalidSubmission.
func InvalidSubmission(reason string) error {
	return WrapError("practice", "Validate", ErrValidation, "invalid submission data", errors.New(reason))
}

// StorageFailure wraps a persistence error raised in the given stage.
func StorageFailure(stage string, err error) error {
	return WrapError("practice", stage, ErrStorage, "failed to submit practice session", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStorage checks if the error is a storage failure.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// ═══════════════════════════════════════════════════════════════════════════
// Partial statistics failure
// ═══════════════════════════════════════════════════════════════════════════

// QuestionFailure records one question whose statistics update failed.
type QuestionFailure struct {
	QuestionID QuestionID
	Err        error
}

// PartialStatisticsFailure lists per-question telemetry updates that failed
// while the rest of the batch was applied. It is logged, never returned to callers.
type PartialStatisticsFailure struct {
	Failures []QuestionFailure
}

// Error implements the error interface.
func (p *PartialStatisticsFailure) Error() string {
	if len(p.Failures) == 1 {
		return fmt.Sprintf("statistics update failed for question %d: %v", p.Failures[0].QuestionID, p.Failures[0].Err)
	}
	return fmt.Sprintf("statistics update failed for %d questions", len(p.Failures))
}

// Empty reports whether no question failed.
func (p *PartialStatisticsFailure) Empty() bool {
	return p == nil || len(p.Failures) == 0
}

// QuestionIDs returns the ids of the failed questions.
func (p *PartialStatisticsFailure) QuestionIDs() []QuestionID {
	if p == nil {
		return nil
	}
	ids := make([]QuestionID, 0, len(p.Failures))
	for _, f := range p.Failures {
		ids = append(ids, f.QuestionID)
	}
	return ids
}
