package domain

import "time"

// ComplaintStatus enumerates lifecycle states for complaints.
type ComplaintStatus string

const (
	ComplaintStatusNew          ComplaintStatus = "New"
	ComplaintStatusAcknowledged ComplaintStatus = "Acknowledged"
	ComplaintStatusInProgress   ComplaintStatus = "In Progress"
	ComplaintStatusResolved     ComplaintStatus = "Resolved"
	ComplaintStatusClosed       ComplaintStatus = "Closed"
)

// ComplaintStatuses lists every valid status in lifecycle order.
var ComplaintStatuses = []ComplaintStatus{
	ComplaintStatusNew,
	ComplaintStatusAcknowledged,
	ComplaintStatusInProgress,
	ComplaintStatusResolved,
	ComplaintStatusClosed,
}

// IsTerminal reports whether sweeping is frozen for the status.
func (s ComplaintStatus) IsTerminal() bool {
	return s == ComplaintStatusResolved || s == ComplaintStatusClosed
}

// ComplaintPriority enumerates SLA urgency.
type ComplaintPriority string

const (
	ComplaintPriorityLow    ComplaintPriority = "Low"
	ComplaintPriorityMedium ComplaintPriority = "Medium"
	ComplaintPriorityHigh   ComplaintPriority = "High"
	ComplaintPriorityUrgent ComplaintPriority = "Urgent"
)

// ComplaintPriorities lists the known priorities.
var ComplaintPriorities = []ComplaintPriority{
	ComplaintPriorityLow,
	ComplaintPriorityMedium,
	ComplaintPriorityHigh,
	ComplaintPriorityUrgent,
}

// IsKnown reports whether p is one of the built-in priorities.
func (p ComplaintPriority) IsKnown() bool {
	for _, known := range ComplaintPriorities {
		if p == known {
			return true
		}
	}
	return false
}

// Complaint is the aggregate for institutional complaints.
type Complaint struct {
	ID             string
	ReferenceKey   string
	Title          string
	Description    string
	Category       string
	Location       string
	Priority       ComplaintPriority
	Status         ComplaintStatus
	SLAMinutes     int
	DueDate        time.Time
	IsOverdue      bool
	IsEscalated    bool
	EscalatedAt    *time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	ResolvedBy     *string
	ClosedAt       *time.Time
	AssignedTo     *string
	PendingRoleID  *string
	CreatedBy      string
	IsDeleted      bool
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
