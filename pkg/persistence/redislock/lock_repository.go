// Package redislock provides a Redis-backed edit lock repository for
// deployments that keep lock state out of the relational store. Lock rows are
// hashes guarded by Lua scripts, so acquisition and heartbeat keep the same
// atomic compare-and-swap semantics as the SQL implementation. Expiry is
// still evaluated lazily against the caller's clock; the Redis key TTL is
// hygiene only.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

const keyPrefix = "veridoc:editlock:"

// The key outlives its logical expiry by this margin so Inspect can still
// report who held a recently expired lock.
const hygieneTTLMargin = 24 * time.Hour

// acquireScript implements the conditional upsert: grant when missing,
// expired, or held by the same user (keeping the issued token). Returns
// {1, token, id, acquiredAt} on success or {0, holder, expiresAt} when the
// lock is held live by someone else.
var acquireScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local cur = redis.call('HMGET', KEYS[1], 'user_id', 'token', 'expires_at', 'id', 'acquired_at')
	if cur[1] then
		local curExpires = tonumber(cur[3])
		if curExpires > now and cur[1] ~= ARGV[3] then
			return {0, cur[1], cur[3]}
		end
		if curExpires > now then
			redis.call('HSET', KEYS[1], 'expires_at', ARGV[2], 'last_heartbeat', ARGV[1], 'session_id', ARGV[6])
			redis.call('PEXPIRE', KEYS[1], ARGV[7])
			return {1, cur[2], cur[4], cur[5]}
		end
	end
	redis.call('HSET', KEYS[1],
		'id', ARGV[5], 'user_id', ARGV[3], 'token', ARGV[4], 'session_id', ARGV[6],
		'acquired_at', ARGV[1], 'expires_at', ARGV[2], 'last_heartbeat', ARGV[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[7])
	return {1, ARGV[4], ARGV[5], ARGV[1]}
`)

// heartbeatScript extends expiry iff the token matches and the lock is live.
// Returns the new expiry or nil.
var heartbeatScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local cur = redis.call('HMGET', KEYS[1], 'token', 'expires_at')
	if not cur[1] or cur[1] ~= ARGV[3] or tonumber(cur[2]) <= now then
		return false
	end
	local extended = tonumber(ARGV[2])
	if tonumber(cur[2]) > extended then
		extended = tonumber(cur[2])
	end
	redis.call('HSET', KEYS[1], 'expires_at', tostring(extended), 'last_heartbeat', ARGV[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return tostring(extended)
`)

// releaseScript deletes the key iff the token matches; missing keys are fine.
var releaseScript = redis.NewScript(`
	local cur = redis.call('HGET', KEYS[1], 'token')
	if cur and cur == ARGV[1] then
		redis.call('DEL', KEYS[1])
	end
	return 1
`)

// LockRepository implements persistence.LockRepository on Redis.
type LockRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLockRepository creates a Redis lock repository.
func NewLockRepository(client *redis.Client, logger *slog.Logger) *LockRepository {
	return &LockRepository{client: client, logger: logger}
}

func lockKey(versionID string) string {
	return keyPrefix + versionID
}

// Acquire grants the lock via the acquire script.
func (r *LockRepository) Acquire(ctx context.Context, versionID, userID, sessionID string, now time.Time, ttl time.Duration) (*models.EditLock, error) {
	expiresAt := now.Add(ttl)
	hygieneTTL := ttl + hygieneTTLMargin

	raw, err := acquireScript.Run(ctx, r.client, []string{lockKey(versionID)},
		now.UnixMilli(),
		expiresAt.UnixMilli(),
		userID,
		models.NewLockToken(),
		uuid.New().String(),
		sessionID,
		hygieneTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run acquire script: %w", err)
	}

	granted, err := scriptInt(raw[0])
	if err != nil {
		return nil, fmt.Errorf("unexpected acquire script reply: %w", err)
	}

	if granted == 0 {
		holderExpires, err := scriptMillis(raw[2])
		if err != nil {
			return nil, fmt.Errorf("unexpected acquire script reply: %w", err)
		}

		return nil, &persistence.LockHeldError{
			VersionID: versionID,
			HolderID:  scriptString(raw[1]),
			ExpiresAt: holderExpires,
		}
	}

	acquiredAt, err := scriptMillis(raw[3])
	if err != nil {
		return nil, fmt.Errorf("unexpected acquire script reply: %w", err)
	}

	return &models.EditLock{
		ID:            scriptString(raw[2]),
		VersionID:     versionID,
		UserID:        userID,
		Token:         scriptString(raw[1]),
		SessionID:     sessionID,
		AcquiredAt:    acquiredAt,
		ExpiresAt:     expiresAt,
		LastHeartbeat: now,
	}, nil
}

// Heartbeat extends the lock expiry via the heartbeat script.
func (r *LockRepository) Heartbeat(ctx context.Context, versionID, token string, now time.Time, extendBy time.Duration) (*models.EditLock, error) {
	extended := now.Add(extendBy)
	hygieneTTL := extendBy + hygieneTTLMargin

	raw, err := heartbeatScript.Run(ctx, r.client, []string{lockKey(versionID)},
		now.UnixMilli(),
		extended.UnixMilli(),
		token,
		hygieneTTL.Milliseconds(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrLockTokenInvalid
		}

		return nil, fmt.Errorf("failed to run heartbeat script: %w", err)
	}

	newExpiry, err := scriptMillis(raw)
	if err != nil {
		return nil, fmt.Errorf("unexpected heartbeat script reply: %w", err)
	}

	lock, err := r.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}

	lock.ExpiresAt = newExpiry
	lock.LastHeartbeat = now

	return lock, nil
}

// Release deletes the lock iff the token matches; idempotent.
func (r *LockRepository) Release(ctx context.Context, versionID, token string) error {
	err := releaseScript.Run(ctx, r.client, []string{lockKey(versionID)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to run release script: %w", err)
	}

	return nil
}

// ForceRelease removes the lock regardless of token.
func (r *LockRepository) ForceRelease(ctx context.Context, versionID string) (bool, error) {
	removed, err := r.client.Del(ctx, lockKey(versionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete lock key: %w", err)
	}

	return removed > 0, nil
}

// Get returns the raw lock state for the version, expired or not.
func (r *LockRepository) Get(ctx context.Context, versionID string) (*models.EditLock, error) {
	fields, err := r.client.HGetAll(ctx, lockKey(versionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lock hash: %w", err)
	}

	if len(fields) == 0 {
		return nil, persistence.ErrLockNotFound
	}

	acquiredAt, err := parseMillis(fields["acquired_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt lock hash: %w", err)
	}

	expiresAt, err := parseMillis(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("corrupt lock hash: %w", err)
	}

	lastHeartbeat, err := parseMillis(fields["last_heartbeat"])
	if err != nil {
		return nil, fmt.Errorf("corrupt lock hash: %w", err)
	}

	return &models.EditLock{
		ID:            fields["id"],
		VersionID:     versionID,
		UserID:        fields["user_id"],
		Token:         fields["token"],
		SessionID:     fields["session_id"],
		AcquiredAt:    acquiredAt,
		ExpiresAt:     expiresAt,
		LastHeartbeat: lastHeartbeat,
	}, nil
}

// Validate confirms the token currently owns a live lock on the version.
func (r *LockRepository) Validate(ctx context.Context, versionID, token string, now time.Time) error {
	lock, err := r.Get(ctx, versionID)
	if err != nil {
		if errors.Is(err, persistence.ErrLockNotFound) {
			return persistence.ErrLockTokenInvalid
		}

		return err
	}

	if lock.Token != token || lock.Expired(now) {
		return persistence.ErrLockTokenInvalid
	}

	return nil
}

// DeleteExpiredBefore scans lock keys and removes those expired before
// cutoff. Redis key TTLs already bound stale state; this keeps parity with
// the SQL sweeper.
func (r *LockRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()

	for iter.Next(ctx) {
		key := iter.Val()

		raw, err := r.client.HGet(ctx, key, "expires_at").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return removed, fmt.Errorf("failed to read lock expiry: %w", err)
		}

		expiresAt, err := parseMillis(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping corrupt lock key", "key", key, "error", err)

			continue
		}

		if expiresAt.Before(cutoff) {
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete expired lock: %w", err)
			}

			removed += n
		}
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan lock keys: %w", err)
	}

	return removed, nil
}

func scriptString(v any) string {
	s, _ := v.(string)

	return s
}

func scriptInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected reply type %T", v)
	}
}

func scriptMillis(v any) (time.Time, error) {
	n, err := scriptInt(v)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(n).UTC(), nil
}

func parseMillis(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed millisecond timestamp %q", s)
	}

	return time.UnixMilli(n).UTC(), nil
}
