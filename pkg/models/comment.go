package models

import "time"

// Comment is a reviewer annotation on a document version. Unresolved
// comments block Submit, ApproveReview and Approve transitions.
type Comment struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id" validate:"required"`
	UserID    string `json:"user_id"    validate:"required"`
	Text      string `json:"text"       validate:"required"`

	// Selection metadata for inline highlighting; carried opaquely.
	SelectedText   string `json:"selected_text,omitempty"`
	SelectionStart int    `json:"selection_start,omitempty"`
	SelectionEnd   int    `json:"selection_end,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
