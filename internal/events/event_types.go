package events

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventComplaintCreated         EventType = "complaint.created"
	EventComplaintStatusChanged   EventType = "complaint.status_changed"
	EventComplaintAssigned        EventType = "complaint.assigned"
	EventComplaintRoutedToRole    EventType = "complaint.routed_to_role"
	EventComplaintUpdated         EventType = "complaint.updated"
	EventComplaintPriorityChanged EventType = "complaint.priority_changed"
	EventComplaintOverdue         EventType = "complaint.overdue"
	EventComplaintEscalated       EventType = "complaint.escalated"
	EventComplaintDeleted         EventType = "complaint.deleted"
)

// AllEventTypes lists every type the service publishes.
var AllEventTypes = []EventType{
	EventComplaintCreated,
	EventComplaintStatusChanged,
	EventComplaintAssigned,
	EventComplaintRoutedToRole,
	EventComplaintUpdated,
	EventComplaintPriorityChanged,
	EventComplaintOverdue,
	EventComplaintEscalated,
	EventComplaintDeleted,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	ComplaintID string          `json:"complaint_id"`
	ActorID     *string         `json:"actor_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     TimelinePayload `json:"payload"`
}

// TimelinePayload carries the recorded timeline entry.
type TimelinePayload struct {
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TypeFor maps a timeline event type to its published event type.
func TypeFor(t domain.TimelineEventType) EventType {
	return EventType("complaint." + string(t))
}

// FromTimeline wraps a stored timeline event for publication.
func FromTimeline(e domain.TimelineEvent) Event {
	return Event{
		ID:          e.ID,
		Type:        TypeFor(e.EventType),
		ComplaintID: e.ComplaintID,
		ActorID:     e.ActorID,
		Timestamp:   e.CreatedAt,
		Payload: TimelinePayload{
			Description: e.Description,
			Metadata:    e.Metadata,
		},
	}
}
