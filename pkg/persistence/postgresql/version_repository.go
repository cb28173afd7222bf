package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

const versionColumns = `
	id
  , document_id
  , version_number
  , version_string
  , status
  , content
  , fingerprint
  , parent_version_id
  , replaced_by_version_id
  , is_latest
  , change_type
  , change_reason
  , change_summary
  , created_by
  , created_at
  , updated_at
  , saved_at
  , submitted_by
  , submitted_at
  , reviewed_by
  , reviewed_at
  , approved_by
  , approved_at
  , published_by
  , published_at
  , rejected_by
  , rejected_at
  , archived_by
  , archived_at
  , obsolete_at
  , rejection_reason
  , review_comments
  , e_signature
`

// VersionRepository handles document version database operations.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// GetByID returns a version by its ID.
func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE id = $1`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	return version, nil
}

// ListByDocument returns all versions of a document, newest first.
func (r *VersionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version_number DESC`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	versions := make([]*models.DocumentVersion, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// LatestByDocument returns the single version carrying is_latest.
func (r *VersionRepository) LatestByDocument(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 AND is_latest`

	version, err := scanVersion(r.db.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDocumentNotFound
		}

		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	return version, nil
}

// Create inserts a new version row.
func (r *VersionRepository) Create(ctx context.Context, version *models.DocumentVersion) error {
	query := `
		INSERT INTO document_versions (
			id, document_id, version_number, version_string, status,
			content, fingerprint, parent_version_id, replaced_by_version_id, is_latest,
			change_type, change_reason, change_summary,
			created_by, created_at, updated_at, saved_at,
			submitted_by, submitted_at, reviewed_by, reviewed_at,
			approved_by, approved_at, published_by, published_at,
			rejected_by, rejected_at, archived_by, archived_at, obsolete_at,
			rejection_reason, review_comments, e_signature
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
		        $29, $30, $31, $32, $33)
	`

	_, err := r.db.ExecContext(ctx, query, versionArgs(version)...)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}

	return nil
}

// SaveContent applies an optimistic content save as a single conditional
// update: the new content lands only if the stored fingerprint still matches
// the caller's base and the version is a Draft.
func (r *VersionRepository) SaveContent(ctx context.Context, params persistence.SaveContentParams) (*models.DocumentVersion, error) {
	query := `
		UPDATE document_versions
		SET content = $1,
		    fingerprint = $2,
		    saved_at = $3,
		    updated_at = $3,
		    change_summary = CASE WHEN $4 <> '' THEN $4 ELSE change_summary END
		WHERE id = $5 AND fingerprint = $6 AND status = $7
		RETURNING ` + versionColumns

	version, err := scanVersion(r.db.QueryRowContext(ctx, query,
		params.Content,
		params.NewFingerprint,
		params.SavedAt,
		params.ChangeSummary,
		params.VersionID,
		params.BaseFingerprint,
		models.VersionStatusDraft,
	))
	if err == nil {
		return version, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to save content: %w", err)
	}

	// The conditional update matched nothing. Fetch the row once to report
	// exactly why.
	current, err := r.GetByID(ctx, params.VersionID)
	if err != nil {
		return nil, err
	}

	if current.Status != models.VersionStatusDraft {
		return nil, persistence.ErrVersionNotEditable
	}

	return nil, &persistence.FingerprintMismatchError{
		VersionID: params.VersionID,
		Current:   current.Fingerprint,
		Expected:  params.BaseFingerprint,
	}
}

// UpdateStatus persists the version's fields with a compare-and-swap on the
// status column.
func (r *VersionRepository) UpdateStatus(ctx context.Context, version *models.DocumentVersion, expect models.VersionStatus) error {
	query := `
		UPDATE document_versions
		SET status = $1,
		    updated_at = $2,
		    change_summary = $3,
		    submitted_by = $4, submitted_at = $5,
		    reviewed_by = $6, reviewed_at = $7,
		    approved_by = $8, approved_at = $9,
		    rejected_by = $10, rejected_at = $11,
		    archived_by = $12, archived_at = $13,
		    rejection_reason = $14,
		    review_comments = $15,
		    e_signature = $16
		WHERE id = $17 AND status = $18
	`

	result, err := r.db.ExecContext(ctx, query,
		version.Status,
		version.UpdatedAt,
		nullString(version.ChangeSummary),
		nullString(version.SubmittedBy), nullTime(version.SubmittedAt),
		nullString(version.ReviewedBy), nullTime(version.ReviewedAt),
		nullString(version.ApprovedBy), nullTime(version.ApprovedAt),
		nullString(version.RejectedBy), nullTime(version.RejectedAt),
		nullString(version.ArchivedBy), nullTime(version.ArchivedAt),
		nullString(version.RejectionReason),
		nullString(version.ReviewComments),
		nullBytes(version.ESignature),
		version.ID,
		expect,
	)
	if err != nil {
		return fmt.Errorf("failed to update version status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		current, err := r.GetByID(ctx, version.ID)
		if err != nil {
			return err
		}

		return &persistence.StatusConflictError{
			VersionID: version.ID,
			Current:   current.Status,
			Expected:  expect,
		}
	}

	return nil
}

// MarkPublished performs the publish transaction. The version moves from
// Approved to Published; when it was branched from a parent, the parent is
// marked Obsolete, its replaced_by reference is set exactly once, and
// is_latest moves from the parent to the new version. One transaction, so a
// failure leaves no partial chain state.
func (r *VersionRepository) MarkPublished(ctx context.Context, version *models.DocumentVersion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	publishQuery := `
		UPDATE document_versions
		SET status = $1, published_by = $2, published_at = $3, updated_at = $3, e_signature = $4
		WHERE id = $5 AND status = $6
	`

	result, err := tx.ExecContext(ctx, publishQuery,
		models.VersionStatusPublished,
		version.PublishedBy,
		nullTime(version.PublishedAt),
		nullBytes(version.ESignature),
		version.ID,
		models.VersionStatusApproved,
	)
	if err != nil {
		return fmt.Errorf("failed to publish version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		_ = tx.Rollback()

		current, getErr := r.GetByID(ctx, version.ID)
		if getErr != nil {
			return getErr
		}

		return &persistence.StatusConflictError{
			VersionID: version.ID,
			Current:   current.Status,
			Expected:  models.VersionStatusApproved,
		}
	}

	if version.ParentVersionID != "" {
		supersedeQuery := `
			UPDATE document_versions
			SET status = $1, obsolete_at = $2, updated_at = $2,
			    replaced_by_version_id = $3, is_latest = false
			WHERE id = $4 AND replaced_by_version_id IS NULL
		`

		_, err = tx.ExecContext(ctx, supersedeQuery,
			models.VersionStatusObsolete,
			nullTime(version.PublishedAt),
			version.ID,
			version.ParentVersionID,
		)
		if err != nil {
			return fmt.Errorf("failed to supersede parent version: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE document_versions SET is_latest = true WHERE id = $1`,
			version.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark version latest: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	return nil
}

func versionArgs(v *models.DocumentVersion) []any {
	return []any{
		v.ID,
		v.DocumentID,
		v.VersionNumber,
		v.VersionString,
		v.Status,
		v.Content,
		v.Fingerprint,
		nullString(v.ParentVersionID),
		nullString(v.ReplacedByVersionID),
		v.IsLatest,
		nullString(string(v.ChangeType)),
		nullString(v.ChangeReason),
		nullString(v.ChangeSummary),
		v.CreatedBy,
		v.CreatedAt,
		v.UpdatedAt,
		nullTimeValue(v.SavedAt),
		nullString(v.SubmittedBy), nullTime(v.SubmittedAt),
		nullString(v.ReviewedBy), nullTime(v.ReviewedAt),
		nullString(v.ApprovedBy), nullTime(v.ApprovedAt),
		nullString(v.PublishedBy), nullTime(v.PublishedAt),
		nullString(v.RejectedBy), nullTime(v.RejectedAt),
		nullString(v.ArchivedBy), nullTime(v.ArchivedAt),
		nullTime(v.ObsoleteAt),
		nullString(v.RejectionReason),
		nullString(v.ReviewComments),
		nullBytes(v.ESignature),
	}
}

func scanVersion(scanner interface{ Scan(dest ...any) error }) (*models.DocumentVersion, error) {
	var (
		v models.DocumentVersion

		parentID, replacedByID, changeType, changeReason, changeSummary sql.NullString
		submittedBy, reviewedBy, approvedBy, publishedBy                sql.NullString
		rejectedBy, archivedBy, rejectionReason, reviewComments         sql.NullString
		savedAt, submittedAt, reviewedAt, approvedAt, publishedAt       sql.NullTime
		rejectedAt, archivedAt, obsoleteAt                              sql.NullTime
		signature                                                       []byte
	)

	err := scanner.Scan(
		&v.ID,
		&v.DocumentID,
		&v.VersionNumber,
		&v.VersionString,
		&v.Status,
		&v.Content,
		&v.Fingerprint,
		&parentID,
		&replacedByID,
		&v.IsLatest,
		&changeType,
		&changeReason,
		&changeSummary,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
		&savedAt,
		&submittedBy,
		&submittedAt,
		&reviewedBy,
		&reviewedAt,
		&approvedBy,
		&approvedAt,
		&publishedBy,
		&publishedAt,
		&rejectedBy,
		&rejectedAt,
		&archivedBy,
		&archivedAt,
		&obsoleteAt,
		&rejectionReason,
		&reviewComments,
		&signature,
	)
	if err != nil {
		return nil, err
	}

	v.ParentVersionID = parentID.String
	v.ReplacedByVersionID = replacedByID.String
	v.ChangeType = models.ChangeType(changeType.String)
	v.ChangeReason = changeReason.String
	v.ChangeSummary = changeSummary.String
	v.SubmittedBy = submittedBy.String
	v.ReviewedBy = reviewedBy.String
	v.ApprovedBy = approvedBy.String
	v.PublishedBy = publishedBy.String
	v.RejectedBy = rejectedBy.String
	v.ArchivedBy = archivedBy.String
	v.RejectionReason = rejectionReason.String
	v.ReviewComments = reviewComments.String
	v.ESignature = signature

	if savedAt.Valid {
		v.SavedAt = savedAt.Time
	}

	v.SubmittedAt = timePtr(submittedAt)
	v.ReviewedAt = timePtr(reviewedAt)
	v.ApprovedAt = timePtr(approvedAt)
	v.PublishedAt = timePtr(publishedAt)
	v.RejectedAt = timePtr(rejectedAt)
	v.ArchivedAt = timePtr(archivedAt)
	v.ObsoleteAt = timePtr(obsoleteAt)

	return &v, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeValue(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}

	return b
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	value := t.Time

	return &value
}
