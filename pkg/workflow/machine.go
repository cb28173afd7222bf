// Package workflow implements the guarded state machine for document version
// lifecycle transitions. The machine is pure: it evaluates a (status, action)
// pair against the transition table and checks guard inputs, but never touches
// storage.
package workflow

import (
	"github.com/veridoc/veridoc/pkg/models"
)

// Requirements lists the guards a transition must satisfy. Roles is any-of;
// an Admin actor passes every role guard.
type Requirements struct {
	Roles            []models.Role
	NoUnresolved     bool // zero unresolved comments on the version
	ContentViewed    bool // actor has viewed the full content
	Signature        bool // verified e-signature required
	ReasonRequired   bool // free-text reason must accompany the request
}

// Rule is one row of the transition table.
type Rule struct {
	From   models.VersionStatus
	Action models.Action
	To     models.VersionStatus

	// SpawnsDraft marks CreateNewVersion: the source version keeps its
	// status and a new Draft is branched off it.
	SpawnsDraft bool

	Requires Requirements
}

// The transition table. Draft is initial; Published, Archived, Obsolete and
// Rejected have no outgoing status changes except CreateNewVersion on
// Published.
var rules = []Rule{
	{
		From:   models.VersionStatusDraft,
		Action: models.ActionSubmit,
		To:     models.VersionStatusUnderReview,
		Requires: Requirements{
			Roles:        []models.Role{models.RoleAuthor},
			NoUnresolved: true,
		},
	},
	{
		From:   models.VersionStatusUnderReview,
		Action: models.ActionApproveReview,
		To:     models.VersionStatusPendingApproval,
		Requires: Requirements{
			Roles:         []models.Role{models.RoleReviewer},
			NoUnresolved:  true,
			ContentViewed: true,
		},
	},
	{
		From:   models.VersionStatusUnderReview,
		Action: models.ActionRequestChanges,
		To:     models.VersionStatusDraft,
		Requires: Requirements{
			Roles:          []models.Role{models.RoleReviewer},
			ReasonRequired: true,
		},
	},
	{
		From:   models.VersionStatusPendingApproval,
		Action: models.ActionApprove,
		To:     models.VersionStatusApproved,
		Requires: Requirements{
			Roles:         []models.Role{models.RoleApprover},
			NoUnresolved:  true,
			ContentViewed: true,
			Signature:     true,
		},
	},
	{
		From:   models.VersionStatusPendingApproval,
		Action: models.ActionReject,
		To:     models.VersionStatusDraft,
		Requires: Requirements{
			Roles:          []models.Role{models.RoleApprover},
			ReasonRequired: true,
			Signature:      true,
		},
	},
	{
		From:   models.VersionStatusApproved,
		Action: models.ActionPublish,
		To:     models.VersionStatusPublished,
		Requires: Requirements{
			Roles:     []models.Role{models.RoleAdmin},
			Signature: true,
		},
	},
	{
		From:   models.VersionStatusPublished,
		Action: models.ActionArchive,
		To:     models.VersionStatusArchived,
		Requires: Requirements{
			Roles:     []models.Role{models.RoleAdmin},
			Signature: true,
		},
	},
	{
		From:        models.VersionStatusPublished,
		Action:      models.ActionCreateNewVersion,
		To:          models.VersionStatusPublished,
		SpawnsDraft: true,
		Requires: Requirements{
			Roles: []models.Role{models.RoleAuthor},
		},
	},
}

var table = buildTable()

func buildTable() map[models.VersionStatus]map[models.Action]Rule {
	t := make(map[models.VersionStatus]map[models.Action]Rule)

	for _, rule := range rules {
		if t[rule.From] == nil {
			t[rule.From] = make(map[models.Action]Rule)
		}

		t[rule.From][rule.Action] = rule
	}

	return t
}

// Evaluate looks up the rule for (from, action). A pair not in the table is a
// usage error, returned as UnknownTransitionError — distinct from a guard
// failure.
func Evaluate(from models.VersionStatus, action models.Action) (Rule, error) {
	rule, ok := table[from][action]
	if !ok {
		return Rule{}, &UnknownTransitionError{From: from, Action: action}
	}

	return rule, nil
}

// GuardInput carries the externally-resolved facts a guard check needs.
type GuardInput struct {
	Actor             models.Actor
	UnresolvedCount   int
	ContentViewed     bool
	SignatureVerified bool
	ReasonProvided    bool
}

// CheckGuards verifies every requirement of rule against in. The first failed
// guard is returned as a GuardError carrying its sub-reason; nil means the
// transition may proceed.
func CheckGuards(rule Rule, in GuardInput) error {
	if !roleSatisfied(rule.Requires.Roles, in.Actor) {
		return &GuardError{Reason: GuardWrongRole, Roles: rule.Requires.Roles}
	}

	if rule.Requires.NoUnresolved && in.UnresolvedCount > 0 {
		return &GuardError{Reason: GuardUnresolvedComments, UnresolvedCount: in.UnresolvedCount}
	}

	if rule.Requires.ContentViewed && !in.ContentViewed {
		return &GuardError{Reason: GuardContentNotViewed}
	}

	if rule.Requires.Signature && !in.SignatureVerified {
		return &GuardError{Reason: GuardSignatureFailed}
	}

	if rule.Requires.ReasonRequired && !in.ReasonProvided {
		return &GuardError{Reason: GuardReasonRequired}
	}

	return nil
}

func roleSatisfied(required []models.Role, actor models.Actor) bool {
	if len(required) == 0 {
		return true
	}

	if actor.IsAdmin() {
		return true
	}

	for _, role := range required {
		if actor.HasRole(role) {
			return true
		}
	}

	return false
}
