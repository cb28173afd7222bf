package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/config"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/events"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/otelhelper"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// Locks manages time-bounded edit locks over document versions. All mutual
// exclusion lives in the lock repository's atomic conditional operations; this
// service adds existence checks, the admin override, auditing and events.
type Locks struct {
	persistence persistence.Persistence
	config      config.EngineConfig
	clock       clock.Clock
	recorder    *recorder
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewLocks creates a new edit lock service.
func NewLocks(p persistence.Persistence, cfg config.EngineConfig, clk clock.Clock, bus eventbus.EventBus, logger *slog.Logger) *Locks {
	return &Locks{
		persistence: p,
		config:      cfg,
		clock:       clk,
		recorder:    newRecorder(p.Audit(), bus, clk, logger),
		tracer:      otel.Tracer("veridoc.locks"),
		logger:      logger,
	}
}

// Acquire grants actor an edit lock on the version, or reports who holds it.
// Re-acquiring a lock the actor already holds is idempotent and refreshes the
// expiry. Only Draft versions are lockable: a lock exists to serialize content
// edits, and nothing else accepts them.
func (s *Locks) Acquire(ctx context.Context, versionID string, actor models.Actor, sessionID string) (*models.EditLock, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	if actor.ID == "" {
		return nil, ErrEmptyActorID
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "locks.acquire",
		attribute.String(otelhelper.VersionIDKey, versionID),
		attribute.String(otelhelper.UserIDKey, actor.ID),
		attribute.String(otelhelper.SessionIDKey, sessionID),
	)
	defer span.End()

	version, err := s.persistence.Versions().GetByID(ctx, versionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	if version.Status != models.VersionStatusDraft {
		err = fmt.Errorf("%w: version %s is %s", ErrVersionNotDraft, versionID, version.Status)
		otelhelper.SetError(span, err, attribute.String(otelhelper.StatusKey, string(version.Status)))

		return nil, err
	}

	now := s.clock.Now()

	lock, err := s.persistence.Locks().Acquire(ctx, versionID, actor.ID, sessionID, now, s.config.LockTTL)
	if err != nil {
		var heldErr *persistence.LockHeldError

		// A holder reported as already expired means we raced another
		// process between its expiry check and ours. One retry settles it.
		if errors.As(err, &heldErr) && !heldErr.ExpiresAt.After(now) {
			lock, err = s.persistence.Locks().Acquire(ctx, versionID, actor.ID, sessionID, s.clock.Now(), s.config.LockTTL)
		}

		if err != nil {
			if errors.As(err, &heldErr) {
				otelhelper.SetError(span, err, attribute.String(otelhelper.LockHolderKey, heldErr.HolderID))
			} else {
				otelhelper.SetError(span, err)
			}

			return nil, err
		}
	}

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     actor.ID,
		Username:   actor.Name,
		Action:     models.AuditLockAcquired,
		EntityType: EntityTypeVersion,
		EntityID:   versionID,
		Details: map[string]any{
			"expires_at": lock.ExpiresAt,
			"session_id": sessionID,
		},
	})

	s.recorder.publish(ctx, version.DocumentID, events.LockAcquired{
		BaseEvent: s.recorder.base(events.LockAcquiredEvent, version.DocumentID, versionID, actor.ID),
		HolderID:  actor.ID,
		ExpiresAt: lock.ExpiresAt,
	})

	return lock, nil
}

// Heartbeat extends the caller's lock. ErrLockTokenInvalid means the lock was
// lost (expired, released, or taken over) and the client must re-acquire.
func (s *Locks) Heartbeat(ctx context.Context, versionID, token string) (*models.EditLock, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	return s.persistence.Locks().Heartbeat(ctx, versionID, token, s.clock.Now(), s.config.HeartbeatExtend)
}

// Release gives the lock up voluntarily. Releasing a lock that no longer
// exists succeeds, so a client can always release on its way out.
func (s *Locks) Release(ctx context.Context, versionID, token string, actor models.Actor) error {
	if versionID == "" {
		return ErrEmptyVersionID
	}

	err := s.persistence.Locks().Release(ctx, versionID, token)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     actor.ID,
		Username:   actor.Name,
		Action:     models.AuditLockReleased,
		EntityType: EntityTypeVersion,
		EntityID:   versionID,
	})

	s.recorder.publish(ctx, versionID, events.LockReleased{
		BaseEvent: s.recorder.base(events.LockReleasedEvent, "", versionID, actor.ID),
		HolderID:  actor.ID,
	})

	return nil
}

// ForceRelease removes whatever lock exists on the version regardless of who
// holds it. Admin only; always audited with the displaced holder.
func (s *Locks) ForceRelease(ctx context.Context, versionID string, admin models.Actor) error {
	if versionID == "" {
		return ErrEmptyVersionID
	}

	if !admin.IsAdmin() {
		return ErrAdminRequired
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "locks.force_release",
		attribute.String(otelhelper.VersionIDKey, versionID),
		attribute.String(otelhelper.UserIDKey, admin.ID),
	)
	defer span.End()

	var holderID string

	existing, err := s.persistence.Locks().Get(ctx, versionID)
	if err == nil {
		holderID = existing.UserID
		span.SetAttributes(attribute.String(otelhelper.LockHolderKey, holderID))
	} else if !errors.Is(err, persistence.ErrLockNotFound) {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to inspect lock before force release: %w", err)
	}

	removed, err := s.persistence.Locks().ForceRelease(ctx, versionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to force release lock: %w", err)
	}

	if !removed {
		return nil
	}

	s.recorder.record(ctx, &models.AuditEntry{
		UserID:     admin.ID,
		Username:   admin.Name,
		Action:     models.AuditLockForceReleased,
		EntityType: EntityTypeVersion,
		EntityID:   versionID,
		Details: map[string]any{
			"displaced_holder": holderID,
		},
	})

	s.recorder.publish(ctx, versionID, events.LockForceReleased{
		BaseEvent: s.recorder.base(events.LockForceReleasedEvent, "", versionID, admin.ID),
		HolderID:  holderID,
		AdminID:   admin.ID,
	})

	return nil
}

// Inspect returns the lock status for read-only-mode decisions. An expired
// row reads as unlocked; expiry is evaluated here, not by any sweeper.
func (s *Locks) Inspect(ctx context.Context, versionID string) (*models.LockStatus, error) {
	if versionID == "" {
		return nil, ErrEmptyVersionID
	}

	lock, err := s.persistence.Locks().Get(ctx, versionID)
	if err != nil {
		if errors.Is(err, persistence.ErrLockNotFound) {
			return &models.LockStatus{Locked: false}, nil
		}

		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	if lock.Expired(s.clock.Now()) {
		return &models.LockStatus{Locked: false}, nil
	}

	return &models.LockStatus{
		Locked:    true,
		HolderID:  lock.UserID,
		ExpiresAt: lock.ExpiresAt,
	}, nil
}

// SweepExpired deletes lock rows expired longer than the configured retention
// ago. Correctness never depends on this; it only bounds table growth.
func (s *Locks) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.config.SweeperRetention)

	removed, err := s.persistence.Locks().DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired locks: %w", err)
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "swept expired edit locks", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}

	return removed, nil
}
