// Package lifecycle holds the complaint decision logic: SLA deadlines, routing,
// status transitions and the overdue/escalation evaluation. Nothing here does IO;
// callers pass snapshots of the policy and rule tables and an explicit clock value.
package lifecycle

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// PolicySource tells whether a resolved policy came from a stored row or the built-in table.
type PolicySource string

const (
	PolicySourceStored  PolicySource = "stored"
	PolicySourceDefault PolicySource = "default"
)

// Policy is the SLA bound that applies to a priority at snapshot time.
type Policy struct {
	Priority          domain.ComplaintPriority
	ResponseMinutes   int
	ResolutionMinutes int
	EscalationMinutes *int
	Source            PolicySource
	PolicyID          string
}

var defaultResolutionMinutes = map[domain.ComplaintPriority]int{
	domain.ComplaintPriorityLow:    10080,
	domain.ComplaintPriorityMedium: 4320,
	domain.ComplaintPriorityHigh:   1440,
	domain.ComplaintPriorityUrgent: 240,
}

// DefaultResolutionMinutes returns the built-in resolution bound. Unknown priorities get Medium's.
func DefaultResolutionMinutes(priority domain.ComplaintPriority) int {
	if minutes, ok := defaultResolutionMinutes[priority]; ok {
		return minutes
	}
	return defaultResolutionMinutes[domain.ComplaintPriorityMedium]
}

// PolicyTable is an immutable snapshot of the active SLA policies.
type PolicyTable struct {
	byPriority map[domain.ComplaintPriority]domain.SLAPolicy
}

// NewPolicyTable builds a snapshot from policy rows. Inactive rows are ignored and
// the most recently created active row wins per priority.
func NewPolicyTable(policies []domain.SLAPolicy) *PolicyTable {
	table := &PolicyTable{byPriority: make(map[domain.ComplaintPriority]domain.SLAPolicy, len(policies))}
	for _, p := range policies {
		if !p.IsActive {
			continue
		}
		current, exists := table.byPriority[p.Priority]
		if !exists || newerPolicy(p, current) {
			table.byPriority[p.Priority] = copyPolicy(p)
		}
	}
	return table
}

// DefaultPolicyTable has no stored rows, so every lookup resolves to the built-in defaults.
func DefaultPolicyTable() *PolicyTable {
	return NewPolicyTable(nil)
}

// Lookup resolves the policy for priority. It never fails.
func (t *PolicyTable) Lookup(priority domain.ComplaintPriority) Policy {
	if t != nil {
		if stored, ok := t.byPriority[priority]; ok {
			return Policy{
				Priority:          priority,
				ResponseMinutes:   stored.ResponseMinutes,
				ResolutionMinutes: stored.ResolutionMinutes,
				EscalationMinutes: copyInt(stored.EscalationMinutes),
				Source:            PolicySourceStored,
				PolicyID:          stored.ID,
			}
		}
	}
	return Policy{
		Priority:          priority,
		ResolutionMinutes: DefaultResolutionMinutes(priority),
		Source:            PolicySourceDefault,
	}
}

// Len returns the number of priorities with a stored policy.
func (t *PolicyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byPriority)
}

func newerPolicy(candidate, current domain.SLAPolicy) bool {
	if candidate.CreatedAt.Equal(current.CreatedAt) {
		return compareIDs(candidate.ID, current.ID) > 0
	}
	return candidate.CreatedAt.After(current.CreatedAt)
}

func copyPolicy(p domain.SLAPolicy) domain.SLAPolicy {
	p.EscalationMinutes = copyInt(p.EscalationMinutes)
	return p
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
