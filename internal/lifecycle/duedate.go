package lifecycle

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// DueDate carries the deadlines derived from a policy snapshot.
type DueDate struct {
	Policy  Policy
	DueDate time.Time
	// ResponseDue is nil when the resolved policy has no response bound.
	ResponseDue *time.Time
}

// ComputeDueDate returns createdAt plus the resolution minutes for priority.
func (t *PolicyTable) ComputeDueDate(priority domain.ComplaintPriority, createdAt time.Time) time.Time {
	return t.Deadlines(priority, createdAt).DueDate
}

// Deadlines resolves the policy for priority and derives every deadline from createdAt.
func (t *PolicyTable) Deadlines(priority domain.ComplaintPriority, createdAt time.Time) DueDate {
	policy := t.Lookup(priority)
	out := DueDate{
		Policy:  policy,
		DueDate: createdAt.Add(minutes(policy.ResolutionMinutes)),
	}
	if policy.ResponseMinutes > 0 {
		respond := createdAt.Add(minutes(policy.ResponseMinutes))
		out.ResponseDue = &respond
	}
	return out
}
