package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// In-memory persistence for service tests. The fakes enforce the same
// conditional-mutation semantics the real repositories implement in SQL, so
// the services are exercised against honest conflict behavior.

type fakeVersionRepository struct {
	mu       sync.Mutex
	versions map[string]*models.DocumentVersion
}

func newFakeVersionRepository() *fakeVersionRepository {
	return &fakeVersionRepository{versions: make(map[string]*models.DocumentVersion)}
}

func copyVersion(v *models.DocumentVersion) *models.DocumentVersion {
	c := *v

	return &c
}

func (r *fakeVersionRepository) put(v *models.DocumentVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions[v.ID] = copyVersion(v)
}

func (r *fakeVersionRepository) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.versions[id]
	if !ok {
		return nil, persistence.ErrVersionNotFound
	}

	return copyVersion(v), nil
}

func (r *fakeVersionRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.DocumentVersion, 0)

	for _, v := range r.versions {
		if v.DocumentID == documentID {
			out = append(out, copyVersion(v))
		}
	}

	return out, nil
}

func (r *fakeVersionRepository) LatestByDocument(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.versions {
		if v.DocumentID == documentID && v.IsLatest {
			return copyVersion(v), nil
		}
	}

	return nil, persistence.ErrDocumentNotFound
}

func (r *fakeVersionRepository) Create(ctx context.Context, version *models.DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.versions[version.ID] = copyVersion(version)

	return nil
}

func (r *fakeVersionRepository) SaveContent(ctx context.Context, params persistence.SaveContentParams) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.versions[params.VersionID]
	if !ok {
		return nil, persistence.ErrVersionNotFound
	}

	if stored.Status != models.VersionStatusDraft {
		return nil, persistence.ErrVersionNotEditable
	}

	if stored.Fingerprint != params.BaseFingerprint {
		return nil, &persistence.FingerprintMismatchError{
			VersionID: params.VersionID,
			Current:   stored.Fingerprint,
			Expected:  params.BaseFingerprint,
		}
	}

	stored.Content = params.Content
	stored.Fingerprint = params.NewFingerprint
	stored.SavedAt = params.SavedAt
	stored.UpdatedAt = params.SavedAt

	if params.ChangeSummary != "" {
		stored.ChangeSummary = params.ChangeSummary
	}

	return copyVersion(stored), nil
}

func (r *fakeVersionRepository) UpdateStatus(ctx context.Context, version *models.DocumentVersion, expect models.VersionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.versions[version.ID]
	if !ok {
		return persistence.ErrVersionNotFound
	}

	if stored.Status != expect {
		return &persistence.StatusConflictError{
			VersionID: version.ID,
			Current:   stored.Status,
			Expected:  expect,
		}
	}

	r.versions[version.ID] = copyVersion(version)

	return nil
}

func (r *fakeVersionRepository) MarkPublished(ctx context.Context, version *models.DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.versions[version.ID]
	if !ok {
		return persistence.ErrVersionNotFound
	}

	if stored.Status != models.VersionStatusApproved {
		return &persistence.StatusConflictError{
			VersionID: version.ID,
			Current:   stored.Status,
			Expected:  models.VersionStatusApproved,
		}
	}

	published := copyVersion(version)
	published.Status = models.VersionStatusPublished

	if published.ParentVersionID != "" {
		parent, ok := r.versions[published.ParentVersionID]
		if ok {
			now := time.Now().UTC()
			parent.Status = models.VersionStatusObsolete
			parent.ReplacedByVersionID = published.ID
			parent.IsLatest = false
			parent.ObsoleteAt = &now
		}
	}

	published.IsLatest = true
	r.versions[published.ID] = published
	version.Status = models.VersionStatusPublished
	version.IsLatest = true

	return nil
}

type fakeLockRepository struct {
	mu    sync.Mutex
	locks map[string]*models.EditLock
}

func newFakeLockRepository() *fakeLockRepository {
	return &fakeLockRepository{locks: make(map[string]*models.EditLock)}
}

func copyLock(l *models.EditLock) *models.EditLock {
	c := *l

	return &c
}

func (r *fakeLockRepository) Acquire(ctx context.Context, versionID, userID, sessionID string, now time.Time, ttl time.Duration) (*models.EditLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.locks[versionID]
	if ok && !existing.Expired(now) {
		if existing.UserID != userID {
			return nil, &persistence.LockHeldError{
				VersionID: versionID,
				HolderID:  existing.UserID,
				ExpiresAt: existing.ExpiresAt,
			}
		}

		// Idempotent re-acquire keeps the token and refreshes the expiry.
		existing.ExpiresAt = now.Add(ttl)
		existing.LastHeartbeat = now
		existing.SessionID = sessionID

		return copyLock(existing), nil
	}

	lock := &models.EditLock{
		ID:            uuid.New().String(),
		VersionID:     versionID,
		UserID:        userID,
		Token:         models.NewLockToken(),
		SessionID:     sessionID,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(ttl),
		LastHeartbeat: now,
	}
	r.locks[versionID] = lock

	return copyLock(lock), nil
}

func (r *fakeLockRepository) Heartbeat(ctx context.Context, versionID, token string, now time.Time, extendBy time.Duration) (*models.EditLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[versionID]
	if !ok || lock.Token != token || lock.Expired(now) {
		return nil, persistence.ErrLockTokenInvalid
	}

	extended := now.Add(extendBy)
	if extended.After(lock.ExpiresAt) {
		lock.ExpiresAt = extended
	}

	lock.LastHeartbeat = now

	return copyLock(lock), nil
}

func (r *fakeLockRepository) Release(ctx context.Context, versionID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[versionID]
	if ok && lock.Token == token {
		delete(r.locks, versionID)
	}

	return nil
}

func (r *fakeLockRepository) ForceRelease(ctx context.Context, versionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.locks[versionID]
	delete(r.locks, versionID)

	return ok, nil
}

func (r *fakeLockRepository) Get(ctx context.Context, versionID string) (*models.EditLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[versionID]
	if !ok {
		return nil, persistence.ErrLockNotFound
	}

	return copyLock(lock), nil
}

func (r *fakeLockRepository) Validate(ctx context.Context, versionID, token string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[versionID]
	if !ok || lock.Token != token || lock.Expired(now) {
		return persistence.ErrLockTokenInvalid
	}

	return nil
}

func (r *fakeLockRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64

	for id, lock := range r.locks {
		if lock.ExpiresAt.Before(cutoff) {
			delete(r.locks, id)

			removed++
		}
	}

	return removed, nil
}

type fakeCommentRepository struct {
	mu       sync.Mutex
	comments map[string]*models.Comment
}

func newFakeCommentRepository() *fakeCommentRepository {
	return &fakeCommentRepository{comments: make(map[string]*models.Comment)}
}

func (r *fakeCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *comment
	r.comments[comment.ID] = &c

	return nil
}

func (r *fakeCommentRepository) ListByVersion(ctx context.Context, versionID string) ([]*models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Comment, 0)

	for _, c := range r.comments {
		if c.VersionID == versionID {
			cc := *c
			out = append(out, &cc)
		}
	}

	return out, nil
}

func (r *fakeCommentRepository) UnresolvedCount(ctx context.Context, versionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, c := range r.comments {
		if c.VersionID == versionID && !c.Resolved {
			count++
		}
	}

	return count, nil
}

func (r *fakeCommentRepository) Resolve(ctx context.Context, commentID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.comments[commentID]
	if !ok {
		return nil
	}

	if !c.Resolved {
		c.Resolved = true
		c.ResolvedBy = userID
		c.ResolvedAt = &at
	}

	return nil
}

type fakeViewRepository struct {
	mu    sync.Mutex
	views map[string]time.Time // versionID + "/" + userID
}

func newFakeViewRepository() *fakeViewRepository {
	return &fakeViewRepository{views: make(map[string]time.Time)}
}

func (r *fakeViewRepository) Record(ctx context.Context, view *models.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := view.VersionID + "/" + view.UserID
	if _, ok := r.views[key]; !ok {
		r.views[key] = view.ViewedAt
	}

	return nil
}

func (r *fakeViewRepository) HasViewed(ctx context.Context, versionID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.views[versionID+"/"+userID]

	return ok, nil
}

type fakeAuditRepository struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func newFakeAuditRepository() *fakeAuditRepository {
	return &fakeAuditRepository{}
}

func (r *fakeAuditRepository) Record(ctx context.Context, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *entry
	r.entries = append(r.entries, &e)

	return nil
}

func (r *fakeAuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.AuditEntry, 0)

	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}

	return out, nil
}

func (r *fakeAuditRepository) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}

	return out
}

type fakePersistence struct {
	versions *fakeVersionRepository
	locks    *fakeLockRepository
	comments *fakeCommentRepository
	views    *fakeViewRepository
	audit    *fakeAuditRepository
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		versions: newFakeVersionRepository(),
		locks:    newFakeLockRepository(),
		comments: newFakeCommentRepository(),
		views:    newFakeViewRepository(),
		audit:    newFakeAuditRepository(),
	}
}

func (p *fakePersistence) Versions() persistence.VersionRepository { return p.versions }
func (p *fakePersistence) Locks() persistence.LockRepository       { return p.locks }
func (p *fakePersistence) Comments() persistence.CommentRepository { return p.comments }
func (p *fakePersistence) Views() persistence.ViewRepository       { return p.views }
func (p *fakePersistence) Audit() persistence.AuditRepository      { return p.audit }
func (p *fakePersistence) HealthCheck(ctx context.Context) error   { return nil }
func (p *fakePersistence) Close(ctx context.Context) error         { return nil }

// fakeSignatureVerifier accepts any non-empty manifest unless told to fail.
type fakeSignatureVerifier struct {
	fail bool
}

func (v *fakeSignatureVerifier) Verify(ctx context.Context, actor models.Actor, action models.Action, manifest []byte) error {
	if v.fail || len(manifest) == 0 {
		return ErrSignatureInvalid
	}

	return nil
}
