package models

import "time"

// Audit action names. Every successful transition, lock acquisition and save
// conflict emits exactly one audit entry.
const (
	AuditLockAcquired      = "LOCK_ACQUIRED"
	AuditLockReleased      = "LOCK_RELEASED"
	AuditLockForceReleased = "LOCK_FORCE_RELEASED"
	AuditContentSaved      = "CONTENT_SAVED"
	AuditSaveConflict      = "SAVE_CONFLICT"
	AuditVersionCreated    = "VERSION_CREATED"
	AuditStatusChanged     = "STATUS_CHANGED"
)

// AuditEntry is one immutable row in the compliance audit trail.
type AuditEntry struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Username    string         `json:"username,omitempty"`
	Action      string         `json:"action"      validate:"required"`
	EntityType  string         `json:"entity_type" validate:"required"`
	EntityID    string         `json:"entity_id"   validate:"required"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
