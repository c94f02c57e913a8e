package dto

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// CreateComplaintRequest payload.
type CreateComplaintRequest struct {
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Category    string                   `json:"category"`
	Location    string                   `json:"location"`
	Priority    domain.ComplaintPriority `json:"priority"`
}

// UpdateComplaintRequest carries optional detail edits.
type UpdateComplaintRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Location    *string `json:"location"`
}

// StatusChangeRequest payload.
type StatusChangeRequest struct {
	Status string `json:"status"`
}

// PriorityChangeRequest payload.
type PriorityChangeRequest struct {
	Priority domain.ComplaintPriority `json:"priority"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// ComplaintResponse is the full complaint view.
type ComplaintResponse struct {
	ID             string                   `json:"id"`
	ReferenceKey   string                   `json:"reference_key"`
	Title          string                   `json:"title"`
	Description    string                   `json:"description"`
	Category       string                   `json:"category"`
	Location       string                   `json:"location"`
	Priority       domain.ComplaintPriority `json:"priority"`
	Status         domain.ComplaintStatus   `json:"status"`
	SLAMinutes     int                      `json:"sla_minutes"`
	DueDate        time.Time                `json:"due_date"`
	IsOverdue      bool                     `json:"is_overdue"`
	IsEscalated    bool                     `json:"is_escalated"`
	EscalatedAt    *time.Time               `json:"escalated_at"`
	AcknowledgedAt *time.Time               `json:"acknowledged_at"`
	ResolvedAt     *time.Time               `json:"resolved_at"`
	ResolvedBy     *string                  `json:"resolved_by"`
	ClosedAt       *time.Time               `json:"closed_at"`
	AssignedTo     *string                  `json:"assigned_to"`
	PendingRoleID  *string                  `json:"pending_role_id"`
	CreatedBy      string                   `json:"created_by"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// RoutingResponse describes where creation routed the complaint.
type RoutingResponse struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id,omitempty"`
	RoleID string `json:"role_id,omitempty"`
	RuleID string `json:"rule_id,omitempty"`
}

// TimelineEventResponse is one audit entry.
type TimelineEventResponse struct {
	ID          string                   `json:"id"`
	ComplaintID string                   `json:"complaint_id"`
	EventType   domain.TimelineEventType `json:"event_type"`
	Description string                   `json:"description"`
	ActorID     *string                  `json:"actor_id"`
	Metadata    map[string]any           `json:"metadata"`
	CreatedAt   time.Time                `json:"created_at"`
}

// ChangeResponse wraps a mutated complaint and the events it produced.
type ChangeResponse struct {
	Complaint ComplaintResponse       `json:"complaint"`
	Events    []TimelineEventResponse `json:"events"`
}

// CreateComplaintResponse is returned from complaint creation.
type CreateComplaintResponse struct {
	Complaint ComplaintResponse       `json:"complaint"`
	Routing   RoutingResponse         `json:"routing"`
	Events    []TimelineEventResponse `json:"events"`
}
