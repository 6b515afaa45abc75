/*
errors.go - Error types for the payroll engine

PURPOSE:
  All error types in one place. Sentinels for errors.Is checks, structured
  errors for the context callers need to report back.

ERROR CATEGORIES:
  1. Validation  - bad period or options, every violation listed
  2. Generation  - empty roster or no successful item, nothing persisted
  3. Computation - one employee failed, recorded on the batch
  4. Lifecycle   - transition not allowed from the current status
  5. Store       - missing batch, period taken, stale status

A period that already has a batch is NOT an error: Generate reports it
through GenerateResult.Conflict. Stores still signal it with
ErrBatchExists so the engine can turn a lost race into a Conflict.

SEE ALSO:
  - engine.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a request or its options are malformed.
	ErrValidation = errors.New("validation failed")

	// ErrBatchExists is returned by stores when a batch for the period
	// (or with the same id) was already persisted.
	ErrBatchExists = errors.New("payroll batch already exists for period")

	// ErrEmptyRoster is returned when no employee is eligible for payroll.
	ErrEmptyRoster = errors.New("no eligible employees")

	// ErrNoSuccessfulItems is returned when every employee computation failed.
	ErrNoSuccessfulItems = errors.New("no employee payroll could be computed")

	// ErrComputation is returned when one employee's payroll cannot be computed.
	ErrComputation = errors.New("payroll computation failed")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrBatchNotFound is returned when a batch id is unknown.
	ErrBatchNotFound = errors.New("payroll batch not found")

	// ErrConcurrentModification is returned when the batch status changed
	// between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists every violation found, not just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ComputationError identifies the employee and field that broke computation.
type ComputationError struct {
	EmployeeID   string
	EmployeeName string
	Field        string
	Reason       string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("failed to calculate payroll for %s: %s %s",
		e.displayName(), e.Field, e.Reason)
}

func (e *ComputationError) Unwrap() error {
	return ErrComputation
}

func (e *ComputationError) displayName() string {
	if e.EmployeeName != "" {
		return e.EmployeeName
	}
	if e.EmployeeID != "" {
		return e.EmployeeID
	}
	return "unidentified employee"
}

// GenerationError is a fatal generation failure. No batch was persisted.
type GenerationError struct {
	Period   Period
	Failures []ItemError
	Err      error // ErrEmptyRoster or ErrNoSuccessfulItems
}

func (e *GenerationError) Error() string {
	if len(e.Failures) > 0 {
		return fmt.Sprintf("payroll generation for %s failed: %v (%d employee errors)",
			e.Period.Label(), e.Err, len(e.Failures))
	}
	return fmt.Sprintf("payroll generation for %s failed: %v", e.Period.Label(), e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError names both ends of a rejected status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotFoundError carries the unknown batch id.
type NotFoundError struct {
	BatchID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("payroll batch not found: %s", e.BatchID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrBatchNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing batch.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsConflict returns true if the error means another writer got there first.
func IsConflict(err error) bool {
	return errors.Is(err, ErrBatchExists) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsFatalGeneration returns true if generation stopped before persisting.
func IsFatalGeneration(err error) bool {
	return errors.Is(err, ErrEmptyRoster) ||
		errors.Is(err, ErrNoSuccessfulItems)
}
