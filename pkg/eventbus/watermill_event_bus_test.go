package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/pkg/channels/gochannel"
	"github.com/veridoc/veridoc/pkg/eventbus"
	"github.com/veridoc/veridoc/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 1)

	err := bus.Handle(events.LockAcquiredEvent, func(ctx context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	expiresAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	err = bus.Publish(ctx, "doc-1", events.LockAcquired{
		BaseEvent: events.BaseEvent{
			ID:         bus.GenerateID(),
			Type:       events.LockAcquiredEvent,
			Timestamp:  expiresAt.Add(-30 * time.Minute),
			DocumentID: "doc-1",
			VersionID:  "version-1",
			ActorID:    "alice",
		},
		HolderID:  "alice",
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		acquired, ok := event.(*events.LockAcquired)
		require.True(t, ok)

		assert.Equal(t, "alice", acquired.HolderID)
		assert.Equal(t, "version-1", acquired.VersionID)
		assert.True(t, acquired.ExpiresAt.Equal(expiresAt))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the handled event")
	}
}

func TestWatermillEventBus_UnsubscribedTypesAreDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan any, 1)

	err := bus.Handle(events.StatusChangedEvent, func(ctx context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// No handler is registered for saves; the message is acked and dropped.
	err = bus.Publish(ctx, "doc-1", events.ContentSaved{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.ContentSavedEvent, VersionID: "version-1"},
	})
	require.NoError(t, err)

	err = bus.Publish(ctx, "doc-1", events.StatusChanged{
		BaseEvent: events.BaseEvent{ID: bus.GenerateID(), Type: events.StatusChangedEvent, VersionID: "version-1"},
		Action:    "submit",
		From:      "Draft",
		To:        "UnderReview",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		changed, ok := event.(*events.StatusChanged)
		require.True(t, ok)

		assert.Equal(t, "Draft", string(changed.From))
		assert.Equal(t, "UnderReview", string(changed.To))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the handled event")
	}
}
