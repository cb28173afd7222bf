package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/testutil"
)

type stubCredentialChecker struct {
	err   error
	calls int
}

func (c *stubCredentialChecker) Check(ctx context.Context, userID string, credential json.RawMessage) error {
	c.calls++

	return c.err
}

func TestManifestVerifier(t *testing.T) {
	ctx := context.Background()
	approver := testutil.CreateTestActor("approver-1", models.RoleApprover)

	valid := []byte(`{
		"user_id": "approver-1",
		"meaning": "approved",
		"signed_at": "2026-03-01T10:00:00Z",
		"credential": {"password": "re-entered"}
	}`)

	t.Run("accepts a well-formed manifest from the acting user", func(t *testing.T) {
		checker := &stubCredentialChecker{}

		verifier, err := NewManifestVerifier(checker)
		require.NoError(t, err)

		err = verifier.Verify(ctx, approver, models.ActionApprove, valid)
		assert.NoError(t, err)
		assert.Equal(t, 1, checker.calls)
	})

	t.Run("rejects an empty manifest", func(t *testing.T) {
		verifier, err := NewManifestVerifier(&stubCredentialChecker{})
		require.NoError(t, err)

		err = verifier.Verify(ctx, approver, models.ActionApprove, nil)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("rejects a manifest missing required fields", func(t *testing.T) {
		verifier, err := NewManifestVerifier(&stubCredentialChecker{})
		require.NoError(t, err)

		err = verifier.Verify(ctx, approver, models.ActionApprove, []byte(`{"user_id": "approver-1"}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("rejects a manifest signed by someone else", func(t *testing.T) {
		checker := &stubCredentialChecker{}

		verifier, err := NewManifestVerifier(checker)
		require.NoError(t, err)

		other := []byte(`{
			"user_id": "someone-else",
			"meaning": "approved",
			"signed_at": "2026-03-01T10:00:00Z",
			"credential": {}
		}`)

		err = verifier.Verify(ctx, approver, models.ActionApprove, other)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
		assert.Zero(t, checker.calls)
	})

	t.Run("rejects when credentials fail re-validation", func(t *testing.T) {
		checker := &stubCredentialChecker{err: errors.New("wrong password")}

		verifier, err := NewManifestVerifier(checker)
		require.NoError(t, err)

		err = verifier.Verify(ctx, approver, models.ActionApprove, valid)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}
