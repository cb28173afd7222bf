package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/pkg/models"
)

func author() models.Actor {
	return models.Actor{ID: "author-1", Roles: []models.Role{models.RoleAuthor}}
}

func reviewer() models.Actor {
	return models.Actor{ID: "reviewer-1", Roles: []models.Role{models.RoleReviewer}}
}

func approver() models.Actor {
	return models.Actor{ID: "approver-1", Roles: []models.Role{models.RoleApprover}}
}

func admin() models.Actor {
	return models.Actor{ID: "admin-1", Roles: []models.Role{models.RoleAdmin}}
}

func TestEvaluate(t *testing.T) {
	t.Run("known transitions resolve", func(t *testing.T) {
		tests := []struct {
			from   models.VersionStatus
			action models.Action
			to     models.VersionStatus
		}{
			{models.VersionStatusDraft, models.ActionSubmit, models.VersionStatusUnderReview},
			{models.VersionStatusUnderReview, models.ActionApproveReview, models.VersionStatusPendingApproval},
			{models.VersionStatusUnderReview, models.ActionRequestChanges, models.VersionStatusDraft},
			{models.VersionStatusPendingApproval, models.ActionApprove, models.VersionStatusApproved},
			{models.VersionStatusPendingApproval, models.ActionReject, models.VersionStatusDraft},
			{models.VersionStatusApproved, models.ActionPublish, models.VersionStatusPublished},
			{models.VersionStatusPublished, models.ActionArchive, models.VersionStatusArchived},
		}

		for _, tt := range tests {
			rule, err := Evaluate(tt.from, tt.action)
			require.NoError(t, err, "%s/%s", tt.from, tt.action)
			assert.Equal(t, tt.to, rule.To)
			assert.False(t, rule.SpawnsDraft)
		}
	})

	t.Run("create new version spawns a draft without moving the source", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusPublished, models.ActionCreateNewVersion)
		require.NoError(t, err)
		assert.True(t, rule.SpawnsDraft)
		assert.Equal(t, models.VersionStatusPublished, rule.To)
	})

	t.Run("unknown pairs are usage errors", func(t *testing.T) {
		tests := []struct {
			from   models.VersionStatus
			action models.Action
		}{
			{models.VersionStatusDraft, models.ActionApprove},
			{models.VersionStatusDraft, models.ActionPublish},
			{models.VersionStatusUnderReview, models.ActionSubmit},
			{models.VersionStatusPendingApproval, models.ActionPublish},
			{models.VersionStatusApproved, models.ActionApprove},
			{models.VersionStatusPublished, models.ActionSubmit},
			{models.VersionStatusArchived, models.ActionSubmit},
			{models.VersionStatusObsolete, models.ActionCreateNewVersion},
			{models.VersionStatusRejected, models.ActionSubmit},
		}

		for _, tt := range tests {
			_, err := Evaluate(tt.from, tt.action)

			var unknownErr *UnknownTransitionError

			require.Error(t, err, "%s/%s", tt.from, tt.action)
			assert.True(t, errors.As(err, &unknownErr))
		}
	})

	t.Run("terminal statuses have no outgoing transitions except create on published", func(t *testing.T) {
		actions := []models.Action{
			models.ActionSubmit, models.ActionApproveReview, models.ActionRequestChanges,
			models.ActionApprove, models.ActionReject, models.ActionPublish,
			models.ActionArchive, models.ActionCreateNewVersion,
		}

		for _, status := range []models.VersionStatus{models.VersionStatusArchived, models.VersionStatusObsolete, models.VersionStatusRejected} {
			for _, action := range actions {
				_, err := Evaluate(status, action)
				assert.Error(t, err, "%s/%s", status, action)
			}
		}
	})
}

func TestCheckGuards(t *testing.T) {
	t.Run("submit requires author role", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusDraft, models.ActionSubmit)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: reviewer()})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardWrongRole, guardErr.Reason)
		assert.Equal(t, []models.Role{models.RoleAuthor}, guardErr.Roles)
	})

	t.Run("admin passes every role guard", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusDraft, models.ActionSubmit)
		require.NoError(t, err)

		assert.NoError(t, CheckGuards(rule, GuardInput{Actor: admin()}))
	})

	t.Run("submit blocked by unresolved comments", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusDraft, models.ActionSubmit)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: author(), UnresolvedCount: 3})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardUnresolvedComments, guardErr.Reason)
		assert.Equal(t, 3, guardErr.UnresolvedCount)
	})

	t.Run("approve review requires content viewed", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusUnderReview, models.ActionApproveReview)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: reviewer(), ContentViewed: false})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardContentNotViewed, guardErr.Reason)

		assert.NoError(t, CheckGuards(rule, GuardInput{Actor: reviewer(), ContentViewed: true}))
	})

	t.Run("approve requires a verified signature", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusPendingApproval, models.ActionApprove)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: approver(), ContentViewed: true})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardSignatureFailed, guardErr.Reason)

		assert.NoError(t, CheckGuards(rule, GuardInput{Actor: approver(), ContentViewed: true, SignatureVerified: true}))
	})

	t.Run("request changes requires a reason", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusUnderReview, models.ActionRequestChanges)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: reviewer()})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardReasonRequired, guardErr.Reason)

		assert.NoError(t, CheckGuards(rule, GuardInput{Actor: reviewer(), ReasonProvided: true}))
	})

	t.Run("reject requires reason and signature", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusPendingApproval, models.ActionReject)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: approver(), SignatureVerified: true})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardReasonRequired, guardErr.Reason)

		assert.NoError(t, CheckGuards(rule, GuardInput{Actor: approver(), SignatureVerified: true, ReasonProvided: true}))
	})

	t.Run("role check fails before the other guards", func(t *testing.T) {
		rule, err := Evaluate(models.VersionStatusPendingApproval, models.ActionApprove)
		require.NoError(t, err)

		err = CheckGuards(rule, GuardInput{Actor: author(), UnresolvedCount: 5})

		var guardErr *GuardError

		require.ErrorAs(t, err, &guardErr)
		assert.Equal(t, GuardWrongRole, guardErr.Reason)
	})
}
