package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/persistence/postgresql"
	"github.com/veridoc/veridoc/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"audit_log", "document_views", "document_comments", "edit_locks", "document_versions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("veridoc_test"),
			postgres.WithUsername("veridoc"),
			postgres.WithPassword("veridoc"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))
}

func TestVersionRepository_SaveContentCAS(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	version := testutil.CreateTestVersion()
	require.NoError(t, p.Versions().Create(ctx, version))

	now := time.Now().UTC()

	updated, err := p.Versions().SaveContent(ctx, persistence.SaveContentParams{
		VersionID:       version.ID,
		Content:         "revised",
		NewFingerprint:  models.ContentFingerprint("revised"),
		BaseFingerprint: version.Fingerprint,
		SavedAt:         now,
	})
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Content)

	// A save still based on the original fingerprint must lose.
	_, err = p.Versions().SaveContent(ctx, persistence.SaveContentParams{
		VersionID:       version.ID,
		Content:         "stale",
		NewFingerprint:  models.ContentFingerprint("stale"),
		BaseFingerprint: version.Fingerprint,
		SavedAt:         now,
	})

	var mismatch *persistence.FingerprintMismatchError

	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, updated.Fingerprint, mismatch.Current)

	stored, err := p.Versions().GetByID(ctx, version.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", stored.Content)
}

func TestLockRepository_MutualExclusionAndTakeover(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	version := testutil.CreateTestVersion()
	require.NoError(t, p.Versions().Create(ctx, version))

	now := time.Now().UTC()
	ttl := 30 * time.Minute

	aliceLock, err := p.Locks().Acquire(ctx, version.ID, "alice", "s1", now, ttl)
	require.NoError(t, err)
	require.NotEmpty(t, aliceLock.Token)

	// Bob is refused while Alice's lock is live.
	_, err = p.Locks().Acquire(ctx, version.ID, "bob", "s2", now.Add(time.Minute), ttl)

	var heldErr *persistence.LockHeldError

	require.ErrorAs(t, err, &heldErr)
	assert.Equal(t, "alice", heldErr.HolderID)

	// Alice re-acquires: same token, refreshed expiry.
	again, err := p.Locks().Acquire(ctx, version.ID, "alice", "s1b", now.Add(2*time.Minute), ttl)
	require.NoError(t, err)
	assert.Equal(t, aliceLock.Token, again.Token)
	assert.True(t, again.ExpiresAt.After(aliceLock.ExpiresAt))

	// After expiry Bob takes over without any sweeper having run.
	later := again.ExpiresAt.Add(time.Second)

	bobLock, err := p.Locks().Acquire(ctx, version.ID, "bob", "s2", later, ttl)
	require.NoError(t, err)
	assert.Equal(t, "bob", bobLock.UserID)
	assert.NotEqual(t, aliceLock.Token, bobLock.Token)

	// Alice's token no longer validates or heartbeats.
	err = p.Locks().Validate(ctx, version.ID, aliceLock.Token, later)
	assert.ErrorIs(t, err, persistence.ErrLockTokenInvalid)

	_, err = p.Locks().Heartbeat(ctx, version.ID, aliceLock.Token, later, ttl)
	assert.ErrorIs(t, err, persistence.ErrLockTokenInvalid)
}

func TestLockRepository_HeartbeatAndRelease(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	version := testutil.CreateTestVersion()
	require.NoError(t, p.Versions().Create(ctx, version))

	now := time.Now().UTC()
	ttl := 30 * time.Minute

	lock, err := p.Locks().Acquire(ctx, version.ID, "alice", "", now, ttl)
	require.NoError(t, err)

	renewed, err := p.Locks().Heartbeat(ctx, version.ID, lock.Token, now.Add(10*time.Minute), ttl)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(lock.ExpiresAt))

	// Release with a wrong token is a no-op.
	require.NoError(t, p.Locks().Release(ctx, version.ID, "not-the-token"))

	_, err = p.Locks().Get(ctx, version.ID)
	require.NoError(t, err)

	// Token-matched release removes the row; repeating it is fine.
	require.NoError(t, p.Locks().Release(ctx, version.ID, lock.Token))
	require.NoError(t, p.Locks().Release(ctx, version.ID, lock.Token))

	_, err = p.Locks().Get(ctx, version.ID)
	assert.ErrorIs(t, err, persistence.ErrLockNotFound)
}

func TestVersionRepository_PublishSupersedesParent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	parent := testutil.CreateTestVersion(
		testutil.WithStatus(models.VersionStatusPublished),
		testutil.WithVersionNumber(1, "1.0"),
	)
	require.NoError(t, p.Versions().Create(ctx, parent))

	branch := testutil.CreateTestVersion(
		testutil.WithDocument(parent.DocumentID),
		testutil.WithParent(parent.ID),
		testutil.WithVersionNumber(2, "2.0"),
		testutil.WithStatus(models.VersionStatusApproved),
	)
	require.NoError(t, p.Versions().Create(ctx, branch))

	now := time.Now().UTC()
	branch.PublishedBy = "admin-1"
	branch.PublishedAt = &now
	branch.Status = models.VersionStatusPublished

	require.NoError(t, p.Versions().MarkPublished(ctx, branch))

	oldParent, err := p.Versions().GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusObsolete, oldParent.Status)
	assert.Equal(t, branch.ID, oldParent.ReplacedByVersionID)
	assert.False(t, oldParent.IsLatest)

	newLatest, err := p.Versions().LatestByDocument(ctx, parent.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, branch.ID, newLatest.ID)
	assert.Equal(t, models.VersionStatusPublished, newLatest.Status)

	// Publishing the same version again must not find it Approved.
	err = p.Versions().MarkPublished(ctx, branch)
	assert.ErrorIs(t, err, persistence.ErrStatusConflict)
}

func TestCommentAndViewRepositories(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	version := testutil.CreateTestVersion()
	require.NoError(t, p.Versions().Create(ctx, version))

	now := time.Now().UTC()

	comment := &models.Comment{
		ID:        uuid.New().String(),
		VersionID: version.ID,
		UserID:    "reviewer-1",
		Text:      "tighten the scope section",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, p.Comments().Create(ctx, comment))

	count, err := p.Comments().UnresolvedCount(ctx, version.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, p.Comments().Resolve(ctx, comment.ID, "author-1", now))
	// Resolving again is a no-op.
	require.NoError(t, p.Comments().Resolve(ctx, comment.ID, "author-1", now))

	count, err = p.Comments().UnresolvedCount(ctx, version.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	viewed, err := p.Views().HasViewed(ctx, version.ID, "reviewer-1")
	require.NoError(t, err)
	assert.False(t, viewed)

	view := &models.View{
		ID:        uuid.New().String(),
		VersionID: version.ID,
		UserID:    "reviewer-1",
		ViewedAt:  now,
	}
	require.NoError(t, p.Views().Record(ctx, view))
	// Duplicate views are absorbed.
	require.NoError(t, p.Views().Record(ctx, view))

	viewed, err = p.Views().HasViewed(ctx, version.ID, "reviewer-1")
	require.NoError(t, err)
	assert.True(t, viewed)
}

func TestAuditRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	entry := &models.AuditEntry{
		UserID:     "admin-1",
		Action:     models.AuditLockForceReleased,
		EntityType: "document_version",
		EntityID:   uuid.New().String(),
		Details:    map[string]any{"displaced_holder": "alice"},
		Timestamp:  time.Now().UTC(),
	}
	require.NoError(t, p.Audit().Record(ctx, entry))

	entries, err := p.Audit().ListByEntity(ctx, "document_version", entry.EntityID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditLockForceReleased, entries[0].Action)
	assert.Equal(t, "alice", entries[0].Details["displaced_holder"])
}
