package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// Review manages the reviewer comments and content view records that feed the
// workflow transition guards.
type Review struct {
	persistence persistence.Persistence
	clock       clock.Clock
	logger      *slog.Logger
}

// NewReview creates a new review service.
func NewReview(p persistence.Persistence, clk clock.Clock, logger *slog.Logger) *Review {
	return &Review{
		persistence: p,
		clock:       clk,
		logger:      logger,
	}
}

// AddComment attaches a reviewer comment to a version. Unresolved comments
// block Submit, ApproveReview and Approve until resolved.
func (s *Review) AddComment(ctx context.Context, comment *models.Comment) (*models.Comment, error) {
	if comment.VersionID == "" {
		return nil, ErrEmptyVersionID
	}

	if comment.UserID == "" {
		return nil, ErrEmptyActorID
	}

	if comment.Text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidRequest)
	}

	// The comment targets an existing version or nothing.
	_, err := s.persistence.Versions().GetByID(ctx, comment.VersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}

	now := s.clock.Now()
	comment.CreatedAt = now
	comment.UpdatedAt = now

	err = s.persistence.Comments().Create(ctx, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	return comment, nil
}

// ResolveComment marks a comment resolved. Resolving an already resolved
// comment is a no-op.
func (s *Review) ResolveComment(ctx context.Context, commentID string, actor models.Actor) error {
	if commentID == "" {
		return fmt.Errorf("%w: comment ID is required", ErrInvalidRequest)
	}

	if actor.ID == "" {
		return ErrEmptyActorID
	}

	err := s.persistence.Comments().Resolve(ctx, commentID, actor.ID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to resolve comment: %w", err)
	}

	return nil
}

// ListComments returns all comments on a version, oldest first.
func (s *Review) ListComments(ctx context.Context, versionID string) ([]*models.Comment, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	return s.persistence.Comments().ListByVersion(ctx, versionID)
}

// RecordView records that actor has viewed the full content of the version.
// The first view wins; repeats are absorbed by the store.
func (s *Review) RecordView(ctx context.Context, versionID string, actor models.Actor) error {
	if versionID == "" {
		return ErrEmptyVersionID
	}

	if actor.ID == "" {
		return ErrEmptyActorID
	}

	view := &models.View{
		ID:        uuid.New().String(),
		VersionID: versionID,
		UserID:    actor.ID,
		ViewedAt:  s.clock.Now(),
	}

	err := s.persistence.Views().Record(ctx, view)
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}

	return nil
}

// HasViewed reports whether actor has a content view on record for the
// version.
func (s *Review) HasViewed(ctx context.Context, versionID string, actor models.Actor) (bool, error) {
	if versionID == "" {
		return false, ErrEmptyVersionID
	}

	return s.persistence.Views().HasViewed(ctx, versionID, actor.ID)
}
