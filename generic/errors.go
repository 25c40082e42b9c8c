/*
errors.go - Centralized error taxonomy

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these types (or wrap them) so the HTTP layer and
  callers can classify failures with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - malformed input, field-level detail, never partially applied
  2. State-conflict errors - wrong status for a transition, duplicate clock-in,
     overlapping entry; carry the current state
  3. Policy violations - business-rule failures with recommendations
  4. Not-found errors - carry the missing entity ID
  5. Store errors - idempotency and optimistic concurrency failures

USAGE:
  if errors.Is(err, generic.ErrStateConflict) {
      var sc *generic.StateConflictError
      errors.As(err, &sc)
      fmt.Println("current state:", sc.Current)
  }

SEE ALSO:
  - api/response.go: Maps Code values to HTTP status
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation classifies malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict classifies transitions attempted from the wrong state.
	ErrStateConflict = errors.New("state conflict")

	// ErrPolicyViolation classifies business-rule failures.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrNotFound classifies missing entities.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor lacks a capability.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientBalance is returned when a debit exceeds available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when an optimistic version check fails.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// VALIDATION ERRORS - Field-level detail
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Field+": "+err.Message)
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }

func (v ValidationErrors) ToMap() map[string]string {
	result := make(map[string]string, len(v))
	for _, err := range v {
		result[err.Field] = err.Message
	}
	return result
}

// Add appends a field error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// Err returns nil when no field failed.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StateConflictError reports a transition attempted from the wrong state.
type StateConflictError struct {
	Entity    string // "time_entry", "leave_request", ...
	ID        string
	Code      string // e.g. "DUPLICATE_CLOCK_IN", "ON_BREAK"
	Current   string // state observed when the transition was attempted
	Attempted string // transition that was refused
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s while %s (%s)", e.Entity, e.ID, e.Attempted, e.Current, e.Code)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// Violation is one failed business rule.
type Violation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PolicyViolationError reports every failed business rule with recommendations.
type PolicyViolationError struct {
	PolicyID        PolicyID
	PolicyVersion   int
	Violations      []Violation
	Recommendations []string
}

func (e *PolicyViolationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return "policy violation: " + strings.Join(msgs, "; ")
}

func (e *PolicyViolationError) Is(target error) bool {
	switch target {
	case ErrPolicyViolation:
		return true
	case ErrInsufficientBalance:
		return e.Has(ViolationInsufficientBalance)
	}
	return false
}

// Has reports whether a violation with the code is present.
func (e *PolicyViolationError) Has(code string) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Violation codes shared by the policy engine and the leave manager.
const (
	ViolationNoApplicablePolicy  = "NO_APPLICABLE_POLICY"
	ViolationIneligible          = "INELIGIBLE"
	ViolationMaxConsecutiveDays  = "MAX_CONSECUTIVE_DAYS"
	ViolationAdvanceNotice       = "ADVANCE_NOTICE"
	ViolationMinimumIncrement    = "MINIMUM_INCREMENT"
	ViolationBlackoutPeriod      = "BLACKOUT_PERIOD"
	ViolationOverlappingRequest  = "OVERLAPPING_REQUEST"
	ViolationInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// NotFoundError surfaces the missing entity ID.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for &NotFoundError{...}.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Amount
	Requested Amount
}

func (e *InsufficientBalanceError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %v, requested %v, shortfall %v",
		e.Key, e.Available.Value, e.Requested.Value, e.Shortfall().Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR CODES
// =============================================================================

type Code string

const (
	CodeValidation      Code = "validation"
	CodeStateConflict   Code = "state_conflict"
	CodePolicyViolation Code = "policy_violation"
	CodeNotFound        Code = "not_found"
	CodeForbidden       Code = "forbidden"
	CodeConflict        Code = "conflict"
	CodeInternal        Code = "internal"
)

// CodeOf classifies an error for transport layers.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidPeriod):
		return CodeValidation
	case errors.Is(err, ErrPolicyViolation):
		return CodePolicyViolation
	case errors.Is(err, ErrStateConflict):
		return CodeStateConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrDuplicateIdempotencyKey),
		errors.Is(err, ErrConcurrentModification):
		return CodeConflict
	default:
		return CodeInternal
	}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
