package models

import "time"

// View records that a user has viewed the full content of a version. A
// reviewer or approver must have a View on record before ApproveReview or
// Approve passes its guard. One row per (version, user); the first view
// timestamp is kept.
type View struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id" validate:"required"`
	UserID    string    `json:"user_id"    validate:"required"`
	ViewedAt  time.Time `json:"viewed_at"`
}
