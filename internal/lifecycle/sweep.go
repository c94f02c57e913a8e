package lifecycle

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// SweepDecision lists the flag flips a complaint needs at a given instant.
type SweepDecision struct {
	MarkOverdue   bool
	MarkEscalated bool
}

// Any reports whether at least one flag must flip.
func (d SweepDecision) Any() bool {
	return d.MarkOverdue || d.MarkEscalated
}

// EvaluateSweep decides which flags flip for c at now. Deleted and resolved/closed
// complaints are frozen. Escalation uses the escalation bound in the current snapshot.
func EvaluateSweep(c domain.Complaint, table *PolicyTable, now time.Time) SweepDecision {
	if c.IsDeleted || c.Status.IsTerminal() {
		return SweepDecision{}
	}
	var decision SweepDecision
	if !c.IsOverdue && !c.DueDate.IsZero() && now.After(c.DueDate) {
		decision.MarkOverdue = true
	}
	if !c.IsEscalated {
		if deadline, ok := EscalationDeadline(c, table); ok && now.After(deadline) {
			decision.MarkEscalated = true
		}
	}
	return decision
}

// EscalationDeadline returns created_at + escalation minutes when the priority has one.
func EscalationDeadline(c domain.Complaint, table *PolicyTable) (time.Time, bool) {
	policy := table.Lookup(c.Priority)
	if policy.EscalationMinutes == nil {
		return time.Time{}, false
	}
	return c.CreatedAt.Add(minutes(*policy.EscalationMinutes)), true
}

// OverdueEvent describes the sweep marking c overdue.
func OverdueEvent(c domain.Complaint, now time.Time) *domain.TimelineEvent {
	return &domain.TimelineEvent{
		ComplaintID: c.ID,
		EventType:   domain.TimelineOverdue,
		Description: "Complaint is past its due date",
		Metadata: map[string]any{
			"due_date": c.DueDate.UTC().Format(time.RFC3339),
		},
		CreatedAt: now,
	}
}

// EscalatedEvent describes an escalation. An empty actorID marks a sweep escalation.
func EscalatedEvent(c domain.Complaint, actorID string, now time.Time) *domain.TimelineEvent {
	description := "Complaint escalated"
	metadata := map[string]any{"trigger": "manual"}
	if actorID == "" {
		description = "Complaint escalated automatically"
		metadata["trigger"] = "sweep"
	}
	return &domain.TimelineEvent{
		ComplaintID: c.ID,
		EventType:   domain.TimelineEscalated,
		Description: description,
		ActorID:     optionalActor(actorID),
		Metadata:    metadata,
		CreatedAt:   now,
	}
}
