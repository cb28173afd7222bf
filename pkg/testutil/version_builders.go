// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/models"
)

// CreateTestVersion creates a test DocumentVersion with default values that can be overridden.
func CreateTestVersion(overrides ...func(*models.DocumentVersion)) *models.DocumentVersion {
	content := "Standard Operating Procedure: test"

	version := &models.DocumentVersion{
		ID:            uuid.New().String(),
		DocumentID:    uuid.New().String(),
		VersionNumber: 1,
		VersionString: "0.1",
		Status:        models.VersionStatusDraft,
		Content:       content,
		Fingerprint:   models.ContentFingerprint(content),
		IsLatest:      true,
		CreatedBy:     "author-1",
		CreatedAt:     time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		SavedAt:       time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(version)
	}

	return version
}

// WithStatus sets the workflow status.
func WithStatus(status models.VersionStatus) func(*models.DocumentVersion) {
	return func(v *models.DocumentVersion) {
		v.Status = status
	}
}

// WithContent sets the content and recomputes the fingerprint.
func WithContent(content string) func(*models.DocumentVersion) {
	return func(v *models.DocumentVersion) {
		v.Content = content
		v.Fingerprint = models.ContentFingerprint(content)
	}
}

// WithDocument pins the version to a document.
func WithDocument(documentID string) func(*models.DocumentVersion) {
	return func(v *models.DocumentVersion) {
		v.DocumentID = documentID
	}
}

// WithParent links the version to a parent version.
func WithParent(parentID string) func(*models.DocumentVersion) {
	return func(v *models.DocumentVersion) {
		v.ParentVersionID = parentID
		v.IsLatest = false
	}
}

// WithVersionNumber sets the sequence number and label.
func WithVersionNumber(number int, label string) func(*models.DocumentVersion) {
	return func(v *models.DocumentVersion) {
		v.VersionNumber = number
		v.VersionString = label
	}
}

// CreateTestActor creates an actor carrying the given roles.
func CreateTestActor(id string, roles ...models.Role) models.Actor {
	return models.Actor{
		ID:    id,
		Name:  "Test User " + id,
		Roles: roles,
	}
}
