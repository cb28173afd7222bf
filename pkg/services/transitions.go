package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/events"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/otelhelper"
	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/workflow"
)

// NewVersionRequest carries a request to branch a new Draft off a published
// version.
type NewVersionRequest struct {
	ParentVersionID string            `json:"parent_version_id" validate:"required"`
	Actor           models.Actor      `json:"actor"`
	ChangeType      models.ChangeType `json:"change_type"       validate:"required"`
	ChangeReason    string            `json:"change_reason,omitempty"`
}

// Transitions applies guarded workflow transitions to document versions. The
// machine in pkg/workflow decides what is allowed; this service resolves the
// guard inputs from storage, verifies signatures, and persists the outcome
// with a compare-and-swap so concurrent transitions on the same version
// cannot both win.
type Transitions struct {
	persistence persistence.Persistence
	clock       clock.Clock
	signatures  SignatureVerifier
	recorder    *recorder
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewTransitions creates a new workflow transition service.
func NewTransitions(p persistence.Persistence, clk clock.Clock, signatures SignatureVerifier, bus eventbus.EventBus, logger *slog.Logger) *Transitions {
	return &Transitions{
		persistence: p,
		clock:       clk,
		signatures:  signatures,
		recorder:    newRecorder(p.Audit(), bus, clk, logger),
		tracer:      otel.Tracer("veridoc.transitions"),
		logger:      logger,
	}
}

// Apply executes one workflow action against a version. Unknown
// (status, action) pairs return UnknownTransitionError; failed guards return
// GuardError with the failing sub-reason; a concurrent transition that got
// there first returns StatusConflictError. On success the updated version is
// returned with its lifecycle fields filled.
//
// CreateNewVersion is the one action not handled here: it branches a new row
// instead of moving this one, and needs a change type. Use CreateNewVersion.
func (s *Transitions) Apply(ctx context.Context, req models.TransitionRequest) (*models.DocumentVersion, error) {
	if req.VersionID == "" {
		return nil, ErrEmptyVersionID
	}

	if req.Actor.ID == "" {
		return nil, ErrEmptyActorID
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "transitions.apply",
		attribute.String(otelhelper.VersionIDKey, req.VersionID),
		attribute.String(otelhelper.UserIDKey, req.Actor.ID),
		attribute.String(otelhelper.ActionKey, string(req.Action)),
	)
	defer span.End()

	version, err := s.persistence.Versions().GetByID(ctx, req.VersionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(version.Status)))

	rule, err := workflow.Evaluate(version.Status, req.Action)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if rule.SpawnsDraft {
		err = fmt.Errorf("%w: %s requires a change type, use CreateNewVersion", ErrInvalidRequest, req.Action)
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = s.checkGuards(ctx, rule, version, req.Actor, req.Reason, req.Signature, req.Action)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := s.clock.Now()
	from := version.Status

	s.applyLifecycleFields(version, req, now)
	version.Status = rule.To
	version.UpdatedAt = now

	if req.Action == models.ActionPublish {
		err = s.persistence.Versions().MarkPublished(ctx, version)
	} else {
		err = s.persistence.Versions().UpdateStatus(ctx, version, from)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     req.Actor.ID,
		Username:   req.Actor.Name,
		Action:     models.AuditStatusChanged,
		EntityType: EntityTypeVersion,
		EntityID:   version.ID,
		Details: map[string]any{
			"action": req.Action,
			"from":   from,
			"to":     rule.To,
			"reason": req.Reason,
		},
	})

	s.recorder.publish(ctx, version.DocumentID, events.StatusChanged{
		BaseEvent: s.recorder.base(events.StatusChangedEvent, version.DocumentID, version.ID, req.Actor.ID),
		Action:    req.Action,
		From:      from,
		To:        rule.To,
	})

	return version, nil
}

// CreateNewVersion branches a new Draft off a published version. The parent
// keeps its status and its is_latest flag; both move only when the new
// version itself reaches Published.
func (s *Transitions) CreateNewVersion(ctx context.Context, req NewVersionRequest) (*models.DocumentVersion, error) {
	if req.ParentVersionID == "" {
		return nil, ErrEmptyVersionID
	}

	if req.Actor.ID == "" {
		return nil, ErrEmptyActorID
	}

	if req.ChangeType != models.ChangeTypeMinor && req.ChangeType != models.ChangeTypeMajor {
		return nil, ErrInvalidChange
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "transitions.create_new_version",
		attribute.String(otelhelper.VersionIDKey, req.ParentVersionID),
		attribute.String(otelhelper.UserIDKey, req.Actor.ID),
		attribute.String("veridoc.version.change_type", string(req.ChangeType)),
	)
	defer span.End()

	parent, err := s.persistence.Versions().GetByID(ctx, req.ParentVersionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get parent version: %w", err)
	}

	rule, err := workflow.Evaluate(parent.Status, models.ActionCreateNewVersion)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = s.checkGuards(ctx, rule, parent, req.Actor, req.ChangeReason, nil, models.ActionCreateNewVersion)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if parent.ReplacedByVersionID != "" {
		err = fmt.Errorf("%w: version %s was superseded by %s", ErrVersionTerminal, parent.ID, parent.ReplacedByVersionID)
		otelhelper.SetError(span, err)

		return nil, err
	}

	siblings, err := s.persistence.Versions().ListByDocument(ctx, parent.DocumentID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list document versions: %w", err)
	}

	maxNumber := 0

	for _, sibling := range siblings {
		if !sibling.Status.Terminal() {
			err = fmt.Errorf("%w: version %s is %s", ErrDraftInFlight, sibling.ID, sibling.Status)
			otelhelper.SetError(span, err)

			return nil, err
		}

		if sibling.VersionNumber > maxNumber {
			maxNumber = sibling.VersionNumber
		}
	}

	now := s.clock.Now()

	draft := &models.DocumentVersion{
		ID:            uuid.New().String(),
		DocumentID:    parent.DocumentID,
		VersionNumber: maxNumber + 1,
		VersionString: models.NextVersionString(parent.VersionString, req.ChangeType),
		Status:        models.VersionStatusDraft,

		// The draft starts from the parent's exact content, so the parent's
		// fingerprint carries over unchanged.
		Content:     parent.Content,
		Fingerprint: parent.Fingerprint,

		ParentVersionID: parent.ID,
		IsLatest:        false,

		ChangeType:   req.ChangeType,
		ChangeReason: req.ChangeReason,

		CreatedBy: req.Actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
		SavedAt:   now,
	}

	err = s.persistence.Versions().Create(ctx, draft)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create draft version: %w", err)
	}

	span.SetAttributes(attribute.Int(otelhelper.VersionNumKey, draft.VersionNumber))

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     req.Actor.ID,
		Username:   req.Actor.Name,
		Action:     models.AuditVersionCreated,
		EntityType: EntityTypeVersion,
		EntityID:   draft.ID,
		Details: map[string]any{
			"parent_version_id": parent.ID,
			"version_number":    draft.VersionNumber,
			"version_string":    draft.VersionString,
			"change_type":       req.ChangeType,
		},
	})

	s.recorder.publish(ctx, draft.DocumentID, events.VersionCreated{
		BaseEvent:       s.recorder.base(events.VersionCreatedEvent, draft.DocumentID, draft.ID, req.Actor.ID),
		ParentVersionID: parent.ID,
		VersionNumber:   draft.VersionNumber,
		ChangeType:      req.ChangeType,
	})

	return draft, nil
}

// checkGuards resolves the guard inputs the rule needs and runs the machine's
// guard check.
func (s *Transitions) checkGuards(ctx context.Context, rule workflow.Rule, version *models.DocumentVersion, actor models.Actor, reason string, signature []byte, action models.Action) error {
	in := workflow.GuardInput{
		Actor:          actor,
		ReasonProvided: reason != "",
	}

	if rule.Requires.NoUnresolved {
		count, err := s.persistence.Comments().UnresolvedCount(ctx, version.ID)
		if err != nil {
			return fmt.Errorf("failed to count unresolved comments: %w", err)
		}

		in.UnresolvedCount = count
	}

	if rule.Requires.ContentViewed {
		viewed, err := s.persistence.Views().HasViewed(ctx, version.ID, actor.ID)
		if err != nil {
			return fmt.Errorf("failed to check content view: %w", err)
		}

		in.ContentViewed = viewed
	}

	if rule.Requires.Signature {
		err := s.signatures.Verify(ctx, actor, action, signature)
		if err != nil {
			s.logger.WarnContext(ctx, "e-signature verification failed",
				"version_id", version.ID,
				"user_id", actor.ID,
				"action", action,
				"error", err,
			)
		} else {
			in.SignatureVerified = true
		}
	}

	return workflow.CheckGuards(rule, in)
}

// applyLifecycleFields fills the actor/timestamp pair and metadata for the
// action being applied. Pairs are append-only; nothing is cleared.
func (s *Transitions) applyLifecycleFields(version *models.DocumentVersion, req models.TransitionRequest, now time.Time) {
	switch req.Action {
	case models.ActionSubmit:
		version.SubmittedBy = req.Actor.ID
		version.SubmittedAt = &now
	case models.ActionApproveReview:
		version.ReviewedBy = req.Actor.ID
		version.ReviewedAt = &now
	case models.ActionRequestChanges:
		version.ReviewedBy = req.Actor.ID
		version.ReviewedAt = &now
		version.ReviewComments = req.Reason
	case models.ActionApprove:
		version.ApprovedBy = req.Actor.ID
		version.ApprovedAt = &now
		version.ESignature = req.Signature
	case models.ActionReject:
		version.RejectedBy = req.Actor.ID
		version.RejectedAt = &now
		version.RejectionReason = req.Reason
		version.ESignature = req.Signature
	case models.ActionPublish:
		version.PublishedBy = req.Actor.ID
		version.PublishedAt = &now
		version.ESignature = req.Signature
	case models.ActionArchive:
		version.ArchivedBy = req.Actor.ID
		version.ArchivedAt = &now
		version.ESignature = req.Signature
	}
}
