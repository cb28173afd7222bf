// Package cmd provides shared constructors for the command line entrypoints.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/persistence/postgresql"
	"github.com/veridoc/veridoc/pkg/persistence/redislock"
)

// NewPersistence connects the PostgreSQL persistence layer. When redisURL is
// non-empty, edit locks are kept in Redis instead of the lock table; every
// other repository stays on PostgreSQL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, redisURL string) (persistence.Persistence, error) {
	pg, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL persistence: %w", err)
	}

	if redisURL == "" {
		return pg, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &lockOverlay{
		Persistence: pg,
		locks:       redislock.NewLockRepository(client, logger),
	}, nil
}

// lockOverlay swaps the lock repository while delegating everything else.
type lockOverlay struct {
	persistence.Persistence

	locks persistence.LockRepository
}

func (o *lockOverlay) Locks() persistence.LockRepository {
	return o.locks
}
