package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const lockTokenBytes = 32

// EditLock grants its holder exclusive editing rights over one document
// version until ExpiresAt. The token is a capability: every mutating call
// must present it, and a mismatch always means the caller lost the lock.
type EditLock struct {
	ID        string    `json:"id"`
	VersionID string    `json:"version_id" validate:"required"`
	UserID    string    `json:"user_id"    validate:"required"`
	Token     string    `json:"token"`
	SessionID string    `json:"session_id,omitempty"`

	AcquiredAt    time.Time `json:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// NewLockToken generates an opaque URL-safe lock token.
func NewLockToken() string {
	buf := make([]byte, lockTokenBytes)

	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)

	return base64.RawURLEncoding.EncodeToString(buf)
}

// Expired reports whether the lock is past its expiry at now. Expiry is
// always evaluated at the moment of use; a stale row is not authoritative.
func (l *EditLock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockStatus is the read-only view returned by Inspect, used by callers to
// render read-only-mode decisions.
type LockStatus struct {
	Locked    bool      `json:"locked"`
	HolderID  string    `json:"holder_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
