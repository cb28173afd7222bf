// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/veridoc/veridoc/pkg/models"
)

// Standard persistence error types that all implementations must use.
var (
	// ErrVersionNotFound indicates no document version exists for the given id.
	ErrVersionNotFound = errors.New("document version not found")

	// ErrDocumentNotFound indicates a document has no versions at all.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLockNotFound indicates no lock row exists for the version.
	ErrLockNotFound = errors.New("edit lock not found")

	// ErrLockHeld indicates a live lock is held by a different user.
	ErrLockHeld = errors.New("edit lock held by another user")

	// ErrLockTokenInvalid indicates an expired lock or a token mismatch. The
	// caller must treat this as "lost the lock" and attempt re-acquire.
	ErrLockTokenInvalid = errors.New("edit lock token invalid or expired")

	// ErrFingerprintMismatch indicates an optimistic save lost to a
	// concurrent writer.
	ErrFingerprintMismatch = errors.New("content fingerprint mismatch")

	// ErrStatusConflict indicates a status compare-and-swap found the row in
	// a different state than expected.
	ErrStatusConflict = errors.New("version status changed concurrently")

	// ErrVersionNotEditable indicates a content save against a version that
	// is not a Draft.
	ErrVersionNotEditable = errors.New("version is not editable")
)

// LockHeldError reports a live lock held by someone else, with enough detail
// for the caller to render who holds it and until when.
type LockHeldError struct {
	VersionID string
	HolderID  string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("version %s is locked by user %s until %s", e.VersionID, e.HolderID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockHeldError) Unwrap() error {
	return ErrLockHeld
}

// FingerprintMismatchError reports a save conflict together with both
// fingerprints so the caller can prompt refresh-or-overwrite.
type FingerprintMismatchError struct {
	VersionID string
	Current   string // fingerprint stored now
	Expected  string // base fingerprint the caller supplied
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("version %s content changed: stored fingerprint %s, caller base %s", e.VersionID, e.Current, e.Expected)
}

func (e *FingerprintMismatchError) Unwrap() error {
	return ErrFingerprintMismatch
}

// StatusConflictError reports a failed status compare-and-swap.
type StatusConflictError struct {
	VersionID string
	Current   models.VersionStatus
	Expected  models.VersionStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("version %s is %s, expected %s", e.VersionID, e.Current, e.Expected)
}

func (e *StatusConflictError) Unwrap() error {
	return ErrStatusConflict
}

// IsVersionNotFound checks if an error indicates a missing version.
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// IsLockHeld checks if an error indicates a live lock held by another user.
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}

// IsLockTokenInvalid checks if an error indicates a lost or mismatched token.
func IsLockTokenInvalid(err error) bool {
	return errors.Is(err, ErrLockTokenInvalid)
}

// IsFingerprintMismatch checks if an error indicates a save conflict.
func IsFingerprintMismatch(err error) bool {
	return errors.Is(err, ErrFingerprintMismatch)
}
