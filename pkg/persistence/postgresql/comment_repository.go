package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/models"
)

// CommentRepository handles reviewer comment database operations.
type CommentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCommentRepository creates a new comment repository.
func NewCommentRepository(db *sql.DB, logger *slog.Logger) *CommentRepository {
	return &CommentRepository{db: db, logger: logger}
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.New().String()
	}

	query := `
		INSERT INTO document_comments (
			id, version_id, user_id, comment_text,
			selected_text, selection_start, selection_end,
			resolved, resolved_by, resolved_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		comment.ID,
		comment.VersionID,
		comment.UserID,
		comment.Text,
		nullString(comment.SelectedText),
		comment.SelectionStart,
		comment.SelectionEnd,
		comment.Resolved,
		nullString(comment.ResolvedBy),
		nullTime(comment.ResolvedAt),
		comment.CreatedAt,
		comment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return nil
}

// ListByVersion returns all comments on a version, oldest first.
func (r *CommentRepository) ListByVersion(ctx context.Context, versionID string) ([]*models.Comment, error) {
	query := `
		SELECT id, version_id, user_id, comment_text,
		       selected_text, selection_start, selection_end,
		       resolved, resolved_by, resolved_at, created_at, updated_at
		FROM document_comments
		WHERE version_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	comments := make([]*models.Comment, 0)

	for rows.Next() {
		var (
			comment                  models.Comment
			selectedText, resolvedBy sql.NullString
			selectionStart           sql.NullInt64
			selectionEnd             sql.NullInt64
			resolvedAt               sql.NullTime
		)

		err := rows.Scan(
			&comment.ID,
			&comment.VersionID,
			&comment.UserID,
			&comment.Text,
			&selectedText,
			&selectionStart,
			&selectionEnd,
			&comment.Resolved,
			&resolvedBy,
			&resolvedAt,
			&comment.CreatedAt,
			&comment.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		comment.SelectedText = selectedText.String
		comment.SelectionStart = int(selectionStart.Int64)
		comment.SelectionEnd = int(selectionEnd.Int64)
		comment.ResolvedBy = resolvedBy.String
		comment.ResolvedAt = timePtr(resolvedAt)

		comments = append(comments, &comment)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// UnresolvedCount returns the number of unresolved comments on a version.
func (r *CommentRepository) UnresolvedCount(ctx context.Context, versionID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_comments WHERE version_id = $1 AND NOT resolved`,
		versionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved comments: %w", err)
	}

	return count, nil
}

// Resolve marks a comment resolved. Resolving an already-resolved comment is
// a no-op.
func (r *CommentRepository) Resolve(ctx context.Context, commentID, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE document_comments
		SET resolved = true, resolved_by = $1, resolved_at = $2, updated_at = $2
		WHERE id = $3 AND NOT resolved
	`, userID, at, commentID)
	if err != nil {
		return fmt.Errorf("failed to resolve comment: %w", err)
	}

	return nil
}
