// Package events defines event types for document lifecycle notifications.
// Every successful lock acquisition, save conflict and workflow transition
// publishes exactly one event.
package events

import (
	"time"

	"github.com/veridoc/veridoc/pkg/models"
)

type EventType string

// Event is implemented by every lifecycle event.
type Event interface {
	GetType() EventType
}

// Topic carries all document lifecycle events.
const Topic = "veridoc.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Lock lifecycle events.
	LockAcquiredEvent      EventType = "lock.acquired"
	LockReleasedEvent      EventType = "lock.released"
	LockForceReleasedEvent EventType = "lock.force_released"

	// Content events.
	ContentSavedEvent   EventType = "version.content_saved"
	SaveConflictEvent   EventType = "version.save_conflict"
	VersionCreatedEvent EventType = "version.created"

	// Workflow events.
	StatusChangedEvent EventType = "version.status_changed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	DocumentID string         `json:"document_id,omitempty"`
	VersionID  string         `json:"version_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type LockAcquired struct {
	BaseEvent

	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e LockAcquired) GetType() EventType {
	return LockAcquiredEvent
}

type LockReleased struct {
	BaseEvent

	HolderID string `json:"holder_id"`
}

func (e LockReleased) GetType() EventType {
	return LockReleasedEvent
}

type LockForceReleased struct {
	BaseEvent

	HolderID string `json:"holder_id"`
	AdminID  string `json:"admin_id"`
}

func (e LockForceReleased) GetType() EventType {
	return LockForceReleasedEvent
}

type ContentSaved struct {
	BaseEvent

	Fingerprint string `json:"fingerprint"`
	Autosave    bool   `json:"autosave"`
}

func (e ContentSaved) GetType() EventType {
	return ContentSavedEvent
}

type SaveConflict struct {
	BaseEvent

	CurrentFingerprint  string `json:"current_fingerprint"`
	AttemptedBase       string `json:"attempted_base"`
}

func (e SaveConflict) GetType() EventType {
	return SaveConflictEvent
}

type VersionCreated struct {
	BaseEvent

	ParentVersionID string            `json:"parent_version_id,omitempty"`
	VersionNumber   int               `json:"version_number"`
	ChangeType      models.ChangeType `json:"change_type,omitempty"`
}

func (e VersionCreated) GetType() EventType {
	return VersionCreatedEvent
}

type StatusChanged struct {
	BaseEvent

	Action models.Action        `json:"action"`
	From   models.VersionStatus `json:"from"`
	To     models.VersionStatus `json:"to"`
}

func (e StatusChanged) GetType() EventType {
	return StatusChangedEvent
}
