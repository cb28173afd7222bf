package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/events"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/otelhelper"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// SaveRequest carries one content save attempt.
type SaveRequest struct {
	VersionID string       `json:"version_id" validate:"required"`
	Actor     models.Actor `json:"actor"`

	// LockToken proves the caller holds the edit lock on the version.
	LockToken string `json:"lock_token" validate:"required"`

	Content string `json:"content"`

	// BaseFingerprint is the fingerprint of the content the caller last
	// loaded. The save applies only if the stored fingerprint still matches.
	BaseFingerprint string `json:"base_fingerprint" validate:"required"`

	// Autosave saves carry no change summary and are flagged in the audit
	// trail; the conflict rules are identical to explicit saves.
	Autosave      bool   `json:"autosave"`
	ChangeSummary string `json:"change_summary,omitempty"`
}

// Editing handles optimistic content saves against Draft versions. Writers
// must hold the edit lock and present the fingerprint they based their edit
// on; the fingerprint comparison is what detects lost updates, the lock only
// narrows the window.
type Editing struct {
	persistence persistence.Persistence
	clock       clock.Clock
	recorder    *recorder
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewEditing creates a new content editing service.
func NewEditing(p persistence.Persistence, clk clock.Clock, bus eventbus.EventBus, logger *slog.Logger) *Editing {
	return &Editing{
		persistence: p,
		clock:       clk,
		recorder:    newRecorder(p.Audit(), bus, clk, logger),
		tracer:      otel.Tracer("veridoc.editing"),
		logger:      logger,
	}
}

// Save applies req if the caller still holds the lock and no concurrent save
// landed since the caller's base fingerprint. A conflict never overwrites:
// the stored content stands, the conflict is audited, and the returned
// FingerprintMismatchError carries the current fingerprint so the client can
// refresh and rebase.
func (s *Editing) Save(ctx context.Context, req SaveRequest) (*models.DocumentVersion, error) {
	if req.VersionID == "" {
		return nil, ErrEmptyVersionID
	}

	if req.Actor.ID == "" {
		return nil, ErrEmptyActorID
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "editing.save",
		attribute.String(otelhelper.VersionIDKey, req.VersionID),
		attribute.String(otelhelper.UserIDKey, req.Actor.ID),
		attribute.Bool("veridoc.save.autosave", req.Autosave),
	)
	defer span.End()

	now := s.clock.Now()

	err := s.persistence.Locks().Validate(ctx, req.VersionID, req.LockToken, now)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("lock validation failed: %w", err)
	}

	newFingerprint := models.ContentFingerprint(req.Content)

	version, err := s.persistence.Versions().SaveContent(ctx, persistence.SaveContentParams{
		VersionID:       req.VersionID,
		Content:         req.Content,
		NewFingerprint:  newFingerprint,
		BaseFingerprint: req.BaseFingerprint,
		SavedAt:         now,
		ChangeSummary:   req.ChangeSummary,
	})
	if err != nil {
		var mismatch *persistence.FingerprintMismatchError

		if errors.As(err, &mismatch) {
			s.recordConflict(ctx, req, mismatch)
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     req.Actor.ID,
		Username:   req.Actor.Name,
		Action:     models.AuditContentSaved,
		EntityType: EntityTypeVersion,
		EntityID:   req.VersionID,
		Details: map[string]any{
			"fingerprint": newFingerprint,
			"autosave":    req.Autosave,
		},
	})

	s.recorder.publish(ctx, version.DocumentID, events.ContentSaved{
		BaseEvent:   s.recorder.base(events.ContentSavedEvent, version.DocumentID, req.VersionID, req.Actor.ID),
		Fingerprint: newFingerprint,
		Autosave:    req.Autosave,
	})

	return version, nil
}

func (s *Editing) recordConflict(ctx context.Context, req SaveRequest, mismatch *persistence.FingerprintMismatchError) {
	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     req.Actor.ID,
		Username:   req.Actor.Name,
		Action:     models.AuditSaveConflict,
		EntityType: EntityTypeVersion,
		EntityID:   req.VersionID,
		Details: map[string]any{
			"current_fingerprint": mismatch.Current,
			"attempted_base":      mismatch.Expected,
			"autosave":            req.Autosave,
		},
	})

	s.recorder.publish(ctx, req.VersionID, events.SaveConflict{
		BaseEvent:          s.recorder.base(events.SaveConflictEvent, "", req.VersionID, req.Actor.ID),
		CurrentFingerprint: mismatch.Current,
		AttemptedBase:      mismatch.Expected,
	})
}

// GetVersion returns one version by id.
func (s *Editing) GetVersion(ctx context.Context, versionID string) (*models.DocumentVersion, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	return s.persistence.Versions().GetByID(ctx, versionID)
}

// ListVersions returns the full version chain for a document, newest first.
func (s *Editing) ListVersions(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}

	return s.persistence.Versions().ListByDocument(ctx, documentID)
}

// LatestVersion returns the document's single is_latest version.
func (s *Editing) LatestVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}

	return s.persistence.Versions().LatestByDocument(ctx, documentID)
}
