package domain

import "time"

// SLAPolicy maps a priority to its response, resolution and escalation bounds in minutes.
type SLAPolicy struct {
	ID                string
	Name              string
	Priority          ComplaintPriority
	ResponseMinutes   int
	ResolutionMinutes int
	// EscalationMinutes is nil when the priority never auto-escalates.
	EscalationMinutes *int
	IsActive          bool
	CreatedAt         time.Time
}
