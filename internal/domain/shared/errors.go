// Package shared contains common domain types and errors that are used
// across all domain packages. This package has zero external dependencies.
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
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")

	// Infrastructure errors
	ErrPersistence = errors.New("persistence failure")
	ErrGeneration  = errors.New("quest generation failure")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "quest", "user", "generator"
	Op      string // Operation that failed, e.g., "Create", "ToggleTask"
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

// Persistence wraps a store failure. Errors that already carry a domain kind
// (not found, already exists) are returned unchanged.
func Persistence(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsAlreadyExists(err) || IsPersistence(err) {
		return err
	}
	return WrapError(domain, op, ErrPersistence, "store operation failed", err)
}

// Generation wraps a quest generator failure.
func Generation(op, message string, err error) error {
	return WrapError("generator", op, ErrGeneration, message, err)
}

// InvalidArgument builds a validation error.
func InvalidArgument(domain, op, message string) error {
	return NewDomainError(domain, op, ErrInvalidArgument, message)
}

// Predefined errors
var (
	ErrUserNotFound  = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrQuestNotFound = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrUserExists    = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrNotAdmin      = NewDomainError("admin", "Authorize", ErrForbidden, "admin rights required")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidArgument checks if the error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsInvalidState checks if the operation is not allowed in the current state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsPersistence checks if the error came from the store.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsGeneration checks if the error came from the quest generator.
func IsGeneration(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// IsForbidden checks if the caller lacks rights for the operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
