// Package eventbus provides publish/subscribe infrastructure for document
// lifecycle events.
package eventbus

import (
	"context"

	"github.com/veridoc/veridoc/pkg/events"
)

// EventHandler processes events received from the event bus.
type EventHandler func(ctx context.Context, event any) error

// EventBus defines the interface for publishing and subscribing to document
// lifecycle events.
type EventBus interface {
	// Publish publishes an event with a routing key (document ID).
	Publish(ctx context.Context, key string, event events.Event) error

	// Handle registers a handler for a specific event type.
	Handle(eventType events.EventType, handler EventHandler) error

	// Subscribe starts consuming events and dispatching to handlers.
	Subscribe(ctx context.Context) error

	// Close shuts down the event bus.
	Close() error

	// GenerateID generates a unique identifier for events.
	GenerateID() string
}
