package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// LockRepository handles edit lock database operations. Every mutation is a
// single conditional statement, so concurrent acquirers are serialized by the
// database rather than by anything in-process.
type LockRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLockRepository creates a new lock repository.
func NewLockRepository(db *sql.DB, logger *slog.Logger) *LockRepository {
	return &LockRepository{db: db, logger: logger}
}

// Acquire grants the lock via an atomic conditional upsert. The update branch
// fires only when the existing lock has expired or already belongs to userID;
// an idempotent re-acquire keeps the issued token and refreshes expiry. When
// the row is held live by someone else the statement matches nothing and the
// current holder is reported.
func (r *LockRepository) Acquire(ctx context.Context, versionID, userID, sessionID string, now time.Time, ttl time.Duration) (*models.EditLock, error) {
	expiresAt := now.Add(ttl)

	query := `
		INSERT INTO edit_locks (id, version_id, user_id, token, session_id, acquired_at, expires_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6)
		ON CONFLICT (version_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			token = CASE
				WHEN edit_locks.user_id = EXCLUDED.user_id AND edit_locks.expires_at > $6
					THEN edit_locks.token
				ELSE EXCLUDED.token
			END,
			session_id = EXCLUDED.session_id,
			acquired_at = CASE
				WHEN edit_locks.user_id = EXCLUDED.user_id AND edit_locks.expires_at > $6
					THEN edit_locks.acquired_at
				ELSE EXCLUDED.acquired_at
			END,
			expires_at = EXCLUDED.expires_at,
			last_heartbeat = EXCLUDED.last_heartbeat
		WHERE edit_locks.expires_at <= $6 OR edit_locks.user_id = EXCLUDED.user_id
		RETURNING id, version_id, user_id, token, session_id, acquired_at, expires_at, last_heartbeat
	`

	lock, err := scanLock(r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		versionID,
		userID,
		models.NewLockToken(),
		nullString(sessionID),
		now,
		expiresAt,
	))
	if err == nil {
		return lock, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// The upsert matched nothing: a live lock belongs to someone else.
	holder, err := r.Get(ctx, versionID)
	if err != nil {
		if errors.Is(err, persistence.ErrLockNotFound) {
			// The holder released between our statement and this read.
			return nil, persistence.ErrLockHeld
		}

		return nil, err
	}

	return nil, &persistence.LockHeldError{
		VersionID: versionID,
		HolderID:  holder.UserID,
		ExpiresAt: holder.ExpiresAt,
	}
}

// Heartbeat extends the lock expiry iff the token matches and the lock is
// still live as of now. GREATEST keeps the extension monotonic even when the
// requested extension would land before the current expiry.
func (r *LockRepository) Heartbeat(ctx context.Context, versionID, token string, now time.Time, extendBy time.Duration) (*models.EditLock, error) {
	query := `
		UPDATE edit_locks
		SET expires_at = GREATEST(expires_at, $1), last_heartbeat = $2
		WHERE version_id = $3 AND token = $4 AND expires_at > $2
		RETURNING id, version_id, user_id, token, session_id, acquired_at, expires_at, last_heartbeat
	`

	lock, err := scanLock(r.db.QueryRowContext(ctx, query, now.Add(extendBy), now, versionID, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLockTokenInvalid
		}

		return nil, fmt.Errorf("failed to heartbeat lock: %w", err)
	}

	return lock, nil
}

// Release deletes the lock iff the token matches. A missing or mismatched row
// is a no-op: releasing a lock you no longer hold is not an error.
func (r *LockRepository) Release(ctx context.Context, versionID, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM edit_locks WHERE version_id = $1 AND token = $2`,
		versionID, token,
	)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

// ForceRelease removes whatever lock exists on the version, regardless of
// token. Administrative override only.
func (r *LockRepository) ForceRelease(ctx context.Context, versionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM edit_locks WHERE version_id = $1`, versionID)
	if err != nil {
		return false, fmt.Errorf("failed to force-release lock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Get returns the raw lock row for the version, expired or not.
func (r *LockRepository) Get(ctx context.Context, versionID string) (*models.EditLock, error) {
	query := `
		SELECT id, version_id, user_id, token, session_id, acquired_at, expires_at, last_heartbeat
		FROM edit_locks
		WHERE version_id = $1
	`

	lock, err := scanLock(r.db.QueryRowContext(ctx, query, versionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLockNotFound
		}

		return nil, fmt.Errorf("failed to scan lock: %w", err)
	}

	return lock, nil
}

// Validate confirms the token currently owns a live lock on the version.
func (r *LockRepository) Validate(ctx context.Context, versionID, token string, now time.Time) error {
	var one int

	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM edit_locks WHERE version_id = $1 AND token = $2 AND expires_at > $3`,
		versionID, token, now,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrLockTokenInvalid
		}

		return fmt.Errorf("failed to validate lock: %w", err)
	}

	return nil
}

// DeleteExpiredBefore removes lock rows whose expiry is older than cutoff.
// Hygiene only: correctness never depends on this running.
func (r *LockRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM edit_locks WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired locks: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func scanLock(scanner interface{ Scan(dest ...any) error }) (*models.EditLock, error) {
	var (
		lock      models.EditLock
		sessionID sql.NullString
	)

	err := scanner.Scan(
		&lock.ID,
		&lock.VersionID,
		&lock.UserID,
		&lock.Token,
		&sessionID,
		&lock.AcquiredAt,
		&lock.ExpiresAt,
		&lock.LastHeartbeat,
	)
	if err != nil {
		return nil, err
	}

	lock.SessionID = sessionID.String

	return &lock, nil
}
