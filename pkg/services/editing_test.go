package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/testutil"
)

func newEditingFixture(t *testing.T) (*Editing, *Locks, *fakePersistence, *clock.Manual) {
	t.Helper()

	p := newFakePersistence()
	clk := clock.NewManual(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	editing := NewEditing(p, clk, nil, testLogger())
	locks := NewLocks(p, testEngineConfig(), clk, nil, testLogger())

	return editing, locks, p, clk
}

func TestEditingSave(t *testing.T) {
	ctx := context.Background()

	t.Run("saves content and advances the fingerprint", func(t *testing.T) {
		editing, locks, p, _ := newEditingFixture(t)

		version := testutil.CreateTestVersion()
		p.versions.put(version)

		alice := testutil.CreateTestActor("alice", models.RoleAuthor)

		lock, err := locks.Acquire(ctx, version.ID, alice, "")
		require.NoError(t, err)

		updated, err := editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "revised content",
			BaseFingerprint: version.Fingerprint,
			ChangeSummary:   "clarified scope",
		})
		require.NoError(t, err)

		assert.Equal(t, "revised content", updated.Content)
		assert.Equal(t, models.ContentFingerprint("revised content"), updated.Fingerprint)
		assert.Equal(t, "clarified scope", updated.ChangeSummary)
		assert.Contains(t, p.audit.actions(), models.AuditContentSaved)
	})

	t.Run("rejects saves without a live lock", func(t *testing.T) {
		editing, _, p, _ := newEditingFixture(t)

		version := testutil.CreateTestVersion()
		p.versions.put(version)

		_, err := editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           testutil.CreateTestActor("alice", models.RoleAuthor),
			LockToken:       "no-such-token",
			Content:         "revised",
			BaseFingerprint: version.Fingerprint,
		})
		assert.ErrorIs(t, err, persistence.ErrLockTokenInvalid)
	})

	t.Run("rejects saves after the lock expired", func(t *testing.T) {
		editing, locks, p, clk := newEditingFixture(t)

		version := testutil.CreateTestVersion()
		p.versions.put(version)

		alice := testutil.CreateTestActor("alice", models.RoleAuthor)

		lock, err := locks.Acquire(ctx, version.ID, alice, "")
		require.NoError(t, err)

		clk.Advance(testEngineConfig().LockTTL + time.Second)

		_, err = editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "late edit",
			BaseFingerprint: version.Fingerprint,
		})
		assert.ErrorIs(t, err, persistence.ErrLockTokenInvalid)
	})

	t.Run("stale base fingerprint is a conflict and never overwrites", func(t *testing.T) {
		editing, locks, p, _ := newEditingFixture(t)

		version := testutil.CreateTestVersion()
		p.versions.put(version)

		alice := testutil.CreateTestActor("alice", models.RoleAuthor)

		lock, err := locks.Acquire(ctx, version.ID, alice, "")
		require.NoError(t, err)

		first, err := editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "first save",
			BaseFingerprint: version.Fingerprint,
		})
		require.NoError(t, err)

		// Second save still based on the original fingerprint.
		_, err = editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "second save from a stale tab",
			BaseFingerprint: version.Fingerprint,
		})

		var mismatch *persistence.FingerprintMismatchError

		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, first.Fingerprint, mismatch.Current)

		stored, err := editing.GetVersion(ctx, version.ID)
		require.NoError(t, err)
		assert.Equal(t, "first save", stored.Content)

		assert.Contains(t, p.audit.actions(), models.AuditSaveConflict)
	})

	t.Run("autosave follows the same conflict rules", func(t *testing.T) {
		editing, locks, p, _ := newEditingFixture(t)

		version := testutil.CreateTestVersion()
		p.versions.put(version)

		alice := testutil.CreateTestActor("alice", models.RoleAuthor)

		lock, err := locks.Acquire(ctx, version.ID, alice, "")
		require.NoError(t, err)

		_, err = editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "explicit save",
			BaseFingerprint: version.Fingerprint,
		})
		require.NoError(t, err)

		_, err = editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           alice,
			LockToken:       lock.Token,
			Content:         "autosave based on stale content",
			BaseFingerprint: version.Fingerprint,
			Autosave:        true,
		})
		assert.ErrorIs(t, err, persistence.ErrFingerprintMismatch)
	})

	t.Run("only drafts accept content", func(t *testing.T) {
		editing, _, p, clk := newEditingFixture(t)

		version := testutil.CreateTestVersion(testutil.WithStatus(models.VersionStatusUnderReview))
		p.versions.put(version)

		// Plant a lock directly; the service-level draft check lives in
		// Acquire, the repository check must hold on its own.
		lock, err := p.locks.Acquire(ctx, version.ID, "alice", "", clk.Now(), time.Hour)
		require.NoError(t, err)

		_, err = editing.Save(ctx, SaveRequest{
			VersionID:       version.ID,
			Actor:           testutil.CreateTestActor("alice", models.RoleAuthor),
			LockToken:       lock.Token,
			Content:         "edit in review",
			BaseFingerprint: version.Fingerprint,
		})
		assert.ErrorIs(t, err, persistence.ErrVersionNotEditable)
	})
}
