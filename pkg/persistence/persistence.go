// Package persistence provides the data storage abstraction for document
// versions, edit locks, comments, views and the audit trail.
package persistence

import (
	"context"
	"time"

	"github.com/veridoc/veridoc/pkg/models"
)

// Persistence aggregates the repositories backing the engine. Implementations
// must make every state-mutating operation atomic against the store: multiple
// server processes share these rows, so correctness can never depend on
// in-process synchronization.
type Persistence interface {
	Versions() VersionRepository
	Locks() LockRepository
	Comments() CommentRepository
	Views() ViewRepository
	Audit() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// SaveContentParams carries one optimistic content save. BaseFingerprint is
// the fingerprint the caller last observed; the save applies only if it still
// matches the stored one.
type SaveContentParams struct {
	VersionID       string
	Content         string
	NewFingerprint  string
	BaseFingerprint string
	SavedAt         time.Time
	ChangeSummary   string // empty for autosaves
}

// VersionRepository owns document version rows and the chain linkage.
type VersionRepository interface {
	GetByID(ctx context.Context, id string) (*models.DocumentVersion, error)
	ListByDocument(ctx context.Context, documentID string) ([]*models.DocumentVersion, error)
	LatestByDocument(ctx context.Context, documentID string) (*models.DocumentVersion, error)

	// Create inserts a new version row. The caller decides IsLatest: true for
	// a document's first version, false for a branched draft.
	Create(ctx context.Context, version *models.DocumentVersion) error

	// SaveContent applies a content mutation iff the stored fingerprint still
	// equals BaseFingerprint and the version is a Draft, as a single
	// conditional update. A stale base returns FingerprintMismatchError with
	// the current fingerprint; the stored content is left untouched.
	SaveContent(ctx context.Context, params SaveContentParams) (*models.DocumentVersion, error)

	// UpdateStatus persists version's current field values iff the stored
	// status still equals expect (compare-and-swap on the status column).
	UpdateStatus(ctx context.Context, version *models.DocumentVersion, expect models.VersionStatus) error

	// MarkPublished performs the publish transaction: CAS the version from
	// Approved to Published, and — when the version has a parent — mark the
	// parent Obsolete, set its replaced_by reference and move is_latest to
	// the newly published version. All in one transaction, exactly once.
	MarkPublished(ctx context.Context, version *models.DocumentVersion) error
}

// LockRepository owns the edit lock rows: at most one per version, enforced
// by a uniqueness constraint. Expiry is evaluated lazily at each call using
// the caller-supplied now; no background sweep is required for correctness.
type LockRepository interface {
	// Acquire grants the lock when the version is unlocked, the existing lock
	// has expired, or userID already holds it (idempotent re-acquire
	// refreshing expiry). A live lock held by someone else returns
	// LockHeldError. Implemented as an atomic conditional upsert.
	Acquire(ctx context.Context, versionID, userID, sessionID string, now time.Time, ttl time.Duration) (*models.EditLock, error)

	// Heartbeat extends the expiry iff token matches and the lock has not
	// expired as of now. Anything else returns ErrLockTokenInvalid.
	Heartbeat(ctx context.Context, versionID, token string, now time.Time, extendBy time.Duration) (*models.EditLock, error)

	// Release deletes the lock iff token matches. Releasing a lock that no
	// longer exists is a no-op, to tolerate client races on logout.
	Release(ctx context.Context, versionID, token string) error

	// ForceRelease removes whatever lock exists regardless of token. The
	// separately-authorized administrative override; reports whether a row
	// was removed.
	ForceRelease(ctx context.Context, versionID string) (bool, error)

	// Get returns the raw lock row for versionID, expired or not, or
	// ErrLockNotFound.
	Get(ctx context.Context, versionID string) (*models.EditLock, error)

	// Validate confirms token currently owns a live lock on versionID.
	Validate(ctx context.Context, versionID, token string, now time.Time) error

	// DeleteExpiredBefore removes rows whose expiry is older than cutoff.
	// Hygiene only; never load-bearing.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CommentRepository owns reviewer comments; UnresolvedCount feeds transition
// guards.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByVersion(ctx context.Context, versionID string) ([]*models.Comment, error)
	UnresolvedCount(ctx context.Context, versionID string) (int, error)
	Resolve(ctx context.Context, commentID, userID string, at time.Time) error
}

// ViewRepository tracks which users have viewed which versions; HasViewed
// feeds the reviewer/approver guards.
type ViewRepository interface {
	Record(ctx context.Context, view *models.View) error
	HasViewed(ctx context.Context, versionID, userID string) (bool, error)
}

// AuditRepository owns the append-only compliance trail.
type AuditRepository interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
}
