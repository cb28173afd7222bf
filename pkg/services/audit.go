package services

import (
	"context"
	"log/slog"

	"github.com/veridoc/veridoc/pkg/clock"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/events"
	"github.com/veridoc/veridoc/pkg/models"
	"github.com/veridoc/veridoc/pkg/persistence"
)

// EntityTypeVersion keys every audit entry to the version it concerns, lock
// activity included, so one query returns a version's full trail.
const EntityTypeVersion = "document_version"

// recorder funnels audit entries and lifecycle events out of the services.
// Neither sink is load-bearing for the operation that triggered it: a failed
// audit write or event publish is logged loudly and the operation's result
// stands.
type recorder struct {
	audit  persistence.AuditRepository
	bus    eventbus.EventBus
	clock  clock.Clock
	logger *slog.Logger
}

func newRecorder(audit persistence.AuditRepository, bus eventbus.EventBus, clk clock.Clock, logger *slog.Logger) *recorder {
	return &recorder{audit: audit, bus: bus, clock: clk, logger: logger}
}

func (r *recorder) record(ctx context.Context, entry *models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.clock.Now()
	}

	err := r.audit.Record(ctx, entry)
	if err != nil {
		r.logger.ErrorContext(ctx, "audit write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

func (r *recorder) publish(ctx context.Context, key string, event events.Event) {
	if r.bus == nil {
		return
	}

	err := r.bus.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "event publish failed",
			"event_type", event.GetType(),
			"key", key,
			"error", err,
		)
	}
}

func (r *recorder) base(eventType events.EventType, documentID, versionID, actorID string) events.BaseEvent {
	var id string
	if r.bus != nil {
		id = r.bus.GenerateID()
	}

	return events.BaseEvent{
		ID:         id,
		Type:       eventType,
		Timestamp:  r.clock.Now(),
		DocumentID: documentID,
		VersionID:  versionID,
		ActorID:    actorID,
	}
}
