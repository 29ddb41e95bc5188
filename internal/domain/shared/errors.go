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
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Progression outcomes
	ErrAlreadyCompletedToday = errors.New("habit already completed today")
	ErrNoExtraLivesAvailable = errors.New("no extra lives available")
	ErrAlreadyRedeemed       = errors.New("extra life already redeemed for this habit")
	ErrAlreadyEarned         = errors.New("badge already earned")

	// State errors
	ErrInvalidState       = errors.New("invalid state")
	ErrInvariantViolation = errors.New("invariant violation")

	// Concurrency errors
	ErrConcurrentUpdate = errors.New("concurrent update conflict")
	ErrLockTimeout      = errors.New("lock acquisition timeout")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "user", "habit", "clan"
	Op      string // Operation that failed, e.g., "Award", "Complete"
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

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
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

// User domain errors
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrUserStale         = NewDomainError("user", "Update", ErrConcurrentUpdate, "user was modified concurrently")
	ErrLevelDesync       = NewDomainError("user", "Read", ErrInvariantViolation, "stored level does not match xp")
)

// Habit domain errors
var (
	ErrHabitNotFound       = NewDomainError("habit", "Find", ErrNotFound, "habit not found")
	ErrHabitAlreadyExists  = NewDomainError("habit", "Create", ErrAlreadyExists, "habit already exists")
	ErrHabitStale          = NewDomainError("habit", "Update", ErrConcurrentUpdate, "habit was modified concurrently")
	ErrHabitCompletedToday = NewDomainError("habit", "Complete", ErrAlreadyCompletedToday, "habit already completed today")
	ErrHabitNotOwned       = NewDomainError("habit", "Complete", ErrInvalidInput, "habit does not belong to user")
	ErrInvalidDifficulty   = NewDomainError("habit", "Validate", ErrInvalidInput, "difficulty must be easy, medium or hard")
	ErrNoLivesLeft         = NewDomainError("habit", "Redeem", ErrNoExtraLivesAvailable, "no extra lives available")
	ErrHabitRedeemed       = NewDomainError("habit", "Redeem", ErrAlreadyRedeemed, "extra life already redeemed for this habit")
	ErrNothingToRedeem     = NewDomainError("habit", "Redeem", ErrInvalidState, "habit has no broken streak to restore")
)

// Badge domain errors
var (
	ErrBadgeNotFound    = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrBadgeEarned      = NewDomainError("badge", "Award", ErrAlreadyEarned, "badge already earned")
	ErrInvalidBadgeType = NewDomainError("badge", "Validate", ErrInvalidInput, "invalid badge type")
)

// Clan domain errors
var (
	ErrClanNotFound       = NewDomainError("clan", "Find", ErrNotFound, "clan not found")
	ErrClanAlreadyExists  = NewDomainError("clan", "Create", ErrAlreadyExists, "clan already exists")
	ErrMembershipNotFound = NewDomainError("clan", "FindMember", ErrNotFound, "clan membership not found")
	ErrClanFull           = NewDomainError("clan", "Join", ErrInvalidState, "clan has reached its member limit")
	ErrAlreadyInClan      = NewDomainError("clan", "Join", ErrAlreadyExists, "user already belongs to a clan")
	ErrClanStale          = NewDomainError("clan", "Update", ErrConcurrentUpdate, "clan was modified concurrently")
)

// Quest domain errors
var (
	ErrQuestNotFound = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrQuestAssigned = NewDomainError("quest", "Assign", ErrAlreadyExists, "quest already assigned for this period")
	ErrQuestStale    = NewDomainError("quest", "Update", ErrConcurrentUpdate, "quest was modified concurrently")
	ErrQuestClosed   = NewDomainError("quest", "Progress", ErrInvalidState, "quest is no longer active")
	ErrUnknownQuest  = NewDomainError("quest", "Validate", ErrInvalidInput, "quest is not in the catalog")
)

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

// IsConflict reports whether the error is a lost-update race detected by persistence.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate)
}

// IsNoOp reports outcomes that leave state untouched and are not failures
// from the caller's point of view.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrAlreadyCompletedToday) || errors.Is(err, ErrAlreadyEarned)
}

// IsRetryable checks if the operation can be retried with fresh state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
