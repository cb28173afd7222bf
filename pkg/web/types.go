// Package web provides HTTP request and response types for the document API.
package web

import (
	"encoding/json"
	"time"

	"github.com/veridoc/veridoc/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AcquireLockRequest represents the request body for acquiring an edit lock.
type AcquireLockRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// HeartbeatRequest represents the request body for renewing an edit lock.
type HeartbeatRequest struct {
	Token string `json:"token" validate:"required"`
}

// ReleaseLockRequest represents the request body for releasing an edit lock.
type ReleaseLockRequest struct {
	Token string `json:"token" validate:"required"`
}

// SaveContentRequest represents the request body for saving version content.
type SaveContentRequest struct {
	Content         string `json:"content"`
	BaseFingerprint string `json:"base_fingerprint" validate:"required"`
	LockToken       string `json:"lock_token"       validate:"required"`
	Autosave        bool   `json:"autosave"`
	ChangeSummary   string `json:"change_summary,omitempty"`
}

// TransitionRequest represents the request body for a workflow action.
type TransitionRequest struct {
	Action    models.Action   `json:"action"    validate:"required"`
	Reason    string          `json:"reason,omitempty"`
	Signature json.RawMessage `json:"signature,omitempty"`
}

// CreateVersionRequest represents the request body for branching a new draft
// off a published version.
type CreateVersionRequest struct {
	ChangeType   models.ChangeType `json:"change_type" validate:"required,oneof=Minor Major"`
	ChangeReason string            `json:"change_reason,omitempty"`
}

// CreateCommentRequest represents the request body for adding a comment.
type CreateCommentRequest struct {
	Text           string `json:"text" validate:"required"`
	SelectedText   string `json:"selected_text,omitempty"`
	SelectionStart int    `json:"selection_start,omitempty"`
	SelectionEnd   int    `json:"selection_end,omitempty"`
}

// LockResponse represents a granted edit lock. The token is returned only to
// the holder, never through Inspect.
type LockResponse struct {
	VersionID     string    `json:"version_id"`
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// TransformLockResponse converts a granted lock into its API shape.
func TransformLockResponse(lock *models.EditLock) LockResponse {
	return LockResponse{
		VersionID:     lock.VersionID,
		Token:         lock.Token,
		ExpiresAt:     lock.ExpiresAt,
		LastHeartbeat: lock.LastHeartbeat,
	}
}

// VersionResponse is the API shape of a document version. Content is included
// only on single-version fetches.
type VersionResponse struct {
	ID            string               `json:"id"`
	DocumentID    string               `json:"document_id"`
	VersionNumber int                  `json:"version_number"`
	VersionString string               `json:"version_string"`
	Status        models.VersionStatus `json:"status"`
	Fingerprint   string               `json:"fingerprint"`
	Content       string               `json:"content,omitempty"`

	ParentVersionID     string `json:"parent_version_id,omitempty"`
	ReplacedByVersionID string `json:"replaced_by_version_id,omitempty"`
	IsLatest            bool   `json:"is_latest"`

	ChangeType    models.ChangeType `json:"change_type,omitempty"`
	ChangeReason  string            `json:"change_reason,omitempty"`
	ChangeSummary string            `json:"change_summary,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RejectionReason string `json:"rejection_reason,omitempty"`
}

// TransformVersionResponse converts a version into its API shape.
func TransformVersionResponse(version *models.DocumentVersion, includeContent bool) VersionResponse {
	response := VersionResponse{
		ID:                  version.ID,
		DocumentID:          version.DocumentID,
		VersionNumber:       version.VersionNumber,
		VersionString:       version.VersionString,
		Status:              version.Status,
		Fingerprint:         version.Fingerprint,
		ParentVersionID:     version.ParentVersionID,
		ReplacedByVersionID: version.ReplacedByVersionID,
		IsLatest:            version.IsLatest,
		ChangeType:          version.ChangeType,
		ChangeReason:        version.ChangeReason,
		ChangeSummary:       version.ChangeSummary,
		CreatedBy:           version.CreatedBy,
		CreatedAt:           version.CreatedAt,
		UpdatedAt:           version.UpdatedAt,
		RejectionReason:     version.RejectionReason,
	}

	if includeContent {
		response.Content = version.Content
	}

	return response
}
