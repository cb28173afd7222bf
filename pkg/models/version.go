// Package models defines the core domain models for regulated document
// version management.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VersionStatus represents the workflow state of a document version.
type VersionStatus string

const (
	VersionStatusDraft           VersionStatus = "DRAFT"
	VersionStatusUnderReview     VersionStatus = "UNDER_REVIEW"
	VersionStatusPendingApproval VersionStatus = "PENDING_APPROVAL"
	VersionStatusApproved        VersionStatus = "APPROVED"
	VersionStatusPublished       VersionStatus = "PUBLISHED" // Current in-force version
	VersionStatusRejected        VersionStatus = "REJECTED"
	VersionStatusArchived        VersionStatus = "ARCHIVED"
	VersionStatusObsolete        VersionStatus = "OBSOLETE" // Superseded by a newer published version
)

// ChangeType classifies how a new version differs from its parent.
type ChangeType string

const (
	ChangeTypeMinor ChangeType = "Minor" // Increments by 0.1 (1.0 -> 1.1)
	ChangeTypeMajor ChangeType = "Major" // Increments by 1.0 (1.9 -> 2.0)
)

// DocumentVersion is a single version of a document: its content, fingerprint
// and workflow state, plus the parent/replaced-by linkage that forms the
// version chain.
type DocumentVersion struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"    validate:"required"`
	VersionNumber int           `json:"version_number" validate:"gte=1"`
	VersionString string        `json:"version_string"`
	Status        VersionStatus `json:"status"         validate:"required"`

	// Content is an opaque blob; Fingerprint is the SHA-256 over its exact
	// bytes, recomputed on every save.
	Content     string `json:"content"`
	Fingerprint string `json:"fingerprint"`

	// Chain linkage. ParentVersionID points at the version this one was
	// branched from. ReplacedByVersionID is set exactly once, when a newer
	// version reaches Published. Exactly one version per document carries
	// IsLatest.
	ParentVersionID     string `json:"parent_version_id,omitempty"`
	ReplacedByVersionID string `json:"replaced_by_version_id,omitempty"`
	IsLatest            bool   `json:"is_latest"`

	ChangeType    ChangeType `json:"change_type,omitempty"`
	ChangeReason  string     `json:"change_reason,omitempty"`
	ChangeSummary string     `json:"change_summary,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SavedAt   time.Time `json:"saved_at"`

	// Lifecycle actor/timestamp pairs. Append-only: a transition fills its
	// pair and never clears another.
	SubmittedBy string     `json:"submitted_by,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	PublishedBy string     `json:"published_by,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	RejectedBy  string     `json:"rejected_by,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	ArchivedBy  string     `json:"archived_by,omitempty"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	ObsoleteAt  *time.Time `json:"obsolete_at,omitempty"`

	RejectionReason string `json:"rejection_reason,omitempty"`
	ReviewComments  string `json:"review_comments,omitempty"`

	// ESignature holds the Part 11 signature manifest recorded on the last
	// signature-gated transition.
	ESignature []byte `json:"e_signature,omitempty"`
}

// ContentFingerprint computes the SHA-256 hex digest of content. The hash is
// byte-exact: any difference, including whitespace, yields a new fingerprint.
func ContentFingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

// Terminal reports whether the version can never change status again.
// Further change requires branching a new version.
func (s VersionStatus) Terminal() bool {
	switch s {
	case VersionStatusPublished, VersionStatusArchived, VersionStatusObsolete, VersionStatusRejected:
		return true
	default:
		return false
	}
}

const initialVersionString = "0.1"

// NextVersionString derives the human version label for a version branched
// from parent. Minor changes bump the fraction (1.0 -> 1.1), major changes
// bump the whole number (1.9 -> 2.0). An empty parent yields the initial
// draft label.
func NextVersionString(parent string, changeType ChangeType) string {
	if parent == "" {
		return initialVersionString
	}

	major, minor, err := parseVersionString(parent)
	if err != nil {
		return initialVersionString
	}

	if changeType == ChangeTypeMajor {
		return fmt.Sprintf("%d.0", major+1)
	}

	return fmt.Sprintf("%d.%d", major, minor+1)
}

func parseVersionString(s string) (major, minor int, err error) {
	s = strings.TrimPrefix(s, "v")

	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed version string: %q", s)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed major component: %q", s)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed minor component: %q", s)
	}

	return major, minor, nil
}
