package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/models"
)

// ViewRepository tracks which users have viewed which versions.
type ViewRepository struct {
	db *sql.DB
}

// NewViewRepository creates a new view repository.
func NewViewRepository(db *sql.DB) *ViewRepository {
	return &ViewRepository{db: db}
}

// Record stores a view. The first view timestamp per (version, user) wins;
// repeat views are no-ops.
func (r *ViewRepository) Record(ctx context.Context, view *models.View) error {
	if view.ID == "" {
		view.ID = uuid.New().String()
	}

	query := `
		INSERT INTO document_views (id, version_id, user_id, viewed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (version_id, user_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, view.ID, view.VersionID, view.UserID, view.ViewedAt)
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}

	return nil
}

// HasViewed reports whether the user has a view on record for the version.
func (r *ViewRepository) HasViewed(ctx context.Context, versionID, userID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_views WHERE version_id = $1 AND user_id = $2)`,
		versionID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query view: %w", err)
	}

	return exists, nil
}
