package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestDispatcher_PublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventComplaintOverdue, func(_ context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventComplaintOverdue, func(_ context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventComplaintEscalated, func(_ context.Context, e Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventComplaintOverdue})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcher_PublishWithoutHandlers(t *testing.T) {
	assert.NoError(t, NewInMemoryDispatcher().Publish(context.Background(), Event{Type: EventComplaintCreated}))
}

func TestSubscribeAll(t *testing.T) {
	d := NewInMemoryDispatcher()
	seen := map[EventType]int{}
	SubscribeAll(d, func(_ context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})
	for _, eventType := range AllEventTypes {
		require.NoError(t, d.Publish(context.Background(), Event{Type: eventType}))
	}
	assert.Len(t, seen, len(AllEventTypes))
}

func TestFromTimeline(t *testing.T) {
	actor := "staff-1"
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	event := FromTimeline(domain.TimelineEvent{
		ID:          "e1",
		ComplaintID: "c1",
		EventType:   domain.TimelineStatusChanged,
		Description: "Status changed from New to Acknowledged",
		ActorID:     &actor,
		Metadata:    map[string]any{"old_status": "New", "new_status": "Acknowledged"},
		CreatedAt:   at,
	})

	assert.Equal(t, EventComplaintStatusChanged, event.Type)
	assert.Equal(t, "c1", event.ComplaintID)
	assert.Equal(t, at, event.Timestamp)
	assert.Equal(t, "staff-1", *event.ActorID)
	assert.Equal(t, "New", event.Payload.Metadata["old_status"])

	for _, eventType := range []domain.TimelineEventType{
		domain.TimelineCreated, domain.TimelineAssigned, domain.TimelineRoutedToRole,
		domain.TimelineUpdated, domain.TimelinePriorityChanged, domain.TimelineOverdue,
		domain.TimelineEscalated, domain.TimelineDeleted,
	} {
		assert.Contains(t, AllEventTypes, TypeFor(eventType))
	}
}
