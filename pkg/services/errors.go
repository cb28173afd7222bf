// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"

	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrEmptyVersionID  = errors.New("version ID cannot be empty")
	ErrEmptyActorID    = errors.New("actor ID cannot be empty")
	ErrEmptyDocumentID = errors.New("document ID cannot be empty")
	ErrInvalidChange   = errors.New("change type must be Minor or Major")

	// Authorization Errors (403 Forbidden).
	ErrAdminRequired = errors.New("operation requires the Admin role")

	// Business Logic Conflicts (409 Conflict).
	ErrVersionNotDraft = errors.New("only Draft versions accept content edits")
	ErrVersionTerminal = errors.New("version is in a terminal status")
	ErrDraftInFlight   = errors.New("document already has an unpublished version in flight")
)

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyVersionID) ||
		errors.Is(err, ErrEmptyActorID) ||
		errors.Is(err, ErrEmptyDocumentID) ||
		errors.Is(err, ErrInvalidChange)
}

// IsConflictError checks if an error is a business conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrVersionNotDraft) ||
		errors.Is(err, ErrVersionTerminal) ||
		errors.Is(err, ErrDraftInFlight) ||
		persistence.IsFingerprintMismatch(err) ||
		errors.Is(err, persistence.ErrStatusConflict)
}

// IsForbiddenError checks if an error should return HTTP 403.
func IsForbiddenError(err error) bool {
	if errors.Is(err, ErrAdminRequired) {
		return true
	}

	var guardErr *workflow.GuardError

	return errors.As(err, &guardErr)
}
