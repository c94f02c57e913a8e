package domain

import "time"

// TimelineEventType identifies a lifecycle change.
type TimelineEventType string

const (
	TimelineCreated         TimelineEventType = "created"
	TimelineStatusChanged   TimelineEventType = "status_changed"
	TimelineAssigned        TimelineEventType = "assigned"
	TimelineRoutedToRole    TimelineEventType = "routed_to_role"
	TimelineUpdated         TimelineEventType = "updated"
	TimelinePriorityChanged TimelineEventType = "priority_changed"
	TimelineOverdue         TimelineEventType = "overdue"
	TimelineEscalated       TimelineEventType = "escalated"
	TimelineDeleted         TimelineEventType = "deleted"
)

// TimelineEvent is an immutable audit record of a single complaint change.
type TimelineEvent struct {
	ID          string
	ComplaintID string
	EventType   TimelineEventType
	Description string
	// ActorID is nil for system-driven changes such as the sweep.
	ActorID   *string
	Metadata  map[string]any
	CreatedAt time.Time
}
