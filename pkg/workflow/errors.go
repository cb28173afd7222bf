package workflow

import (
	"fmt"
	"strings"

	"github.com/veridoc/veridoc/pkg/models"
)

// GuardReason identifies which guard rejected a transition.
type GuardReason string

const (
	GuardWrongRole          GuardReason = "wrong_role"
	GuardUnresolvedComments GuardReason = "unresolved_comments"
	GuardContentNotViewed   GuardReason = "content_not_viewed"
	GuardSignatureFailed    GuardReason = "signature_failed"
	GuardReasonRequired     GuardReason = "reason_required"
)

// GuardError reports a transition whose guards did not pass. The version's
// status is left untouched and the caller surfaces the sub-reason verbatim.
type GuardError struct {
	Reason          GuardReason
	Roles           []models.Role // populated for wrong_role
	UnresolvedCount int           // populated for unresolved_comments
}

func (e *GuardError) Error() string {
	switch e.Reason {
	case GuardWrongRole:
		names := make([]string, len(e.Roles))
		for i, r := range e.Roles {
			names[i] = string(r)
		}

		return fmt.Sprintf("transition requires one of roles: %s", strings.Join(names, ", "))
	case GuardUnresolvedComments:
		return fmt.Sprintf("version has %d unresolved comments", e.UnresolvedCount)
	case GuardContentNotViewed:
		return "actor has not viewed the full version content"
	case GuardSignatureFailed:
		return "e-signature missing or failed verification"
	case GuardReasonRequired:
		return "a reason is required for this action"
	default:
		return "transition guard failed"
	}
}

// UnknownTransitionError reports an action that is not in the transition
// table for the current status. This is a usage error, never a guard failure.
type UnknownTransitionError struct {
	From   models.VersionStatus
	Action models.Action
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("action %q is not valid from status %q", e.Action, e.From)
}
