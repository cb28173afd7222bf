package models

// Action is a workflow action requested against a document version.
type Action string

const (
	ActionSubmit           Action = "submit"
	ActionApproveReview    Action = "approve_review"
	ActionRequestChanges   Action = "request_changes"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionPublish          Action = "publish"
	ActionArchive          Action = "archive"
	ActionCreateNewVersion Action = "create_new_version"
)

// TransitionRequest carries one requested workflow action. It is ephemeral:
// validated, applied, and discarded — never persisted as-is.
type TransitionRequest struct {
	VersionID string `json:"version_id" validate:"required"`
	Action    Action `json:"action"     validate:"required"`
	Actor     Actor  `json:"actor"`

	// Reason is required for RequestChanges and Reject.
	Reason string `json:"reason,omitempty"`

	// Signature is the raw e-signature manifest for signature-gated actions
	// (Approve, Reject, Publish, Archive). Credential re-entry is verified by
	// the external signature collaborator; the manifest itself is recorded
	// for audit.
	Signature []byte `json:"signature,omitempty"`
}
