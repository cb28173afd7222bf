// Package postgresql provides the PostgreSQL persistence implementation for
// document versions, edit locks, comments, views and the audit trail.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/veridoc/veridoc/pkg/persistence"
	"github.com/veridoc/veridoc/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	versionRepo *VersionRepository
	lockRepo    *LockRepository
	commentRepo *CommentRepository
	viewRepo    *ViewRepository
	auditRepo   *AuditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		versionRepo: NewVersionRepository(database, logger),
		lockRepo:    NewLockRepository(database, logger),
		commentRepo: NewCommentRepository(database, logger),
		viewRepo:    NewViewRepository(database),
		auditRepo:   NewAuditRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Versions() persistence.VersionRepository {
	return p.versionRepo
}

func (p *Persistence) Locks() persistence.LockRepository {
	return p.lockRepo
}

func (p *Persistence) Comments() persistence.CommentRepository {
	return p.commentRepo
}

func (p *Persistence) Views() persistence.ViewRepository {
	return p.viewRepo
}

func (p *Persistence) Audit() persistence.AuditRepository {
	return p.auditRepo
}
