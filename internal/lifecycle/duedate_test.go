package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestComputeDueDate_Defaults(t *testing.T) {
	tests := map[string]struct {
		priority domain.ComplaintPriority
		minutes  int
	}{
		"low":     {domain.ComplaintPriorityLow, 10080},
		"medium":  {domain.ComplaintPriorityMedium, 4320},
		"high":    {domain.ComplaintPriorityHigh, 1440},
		"urgent":  {domain.ComplaintPriorityUrgent, 240},
		"unknown": {domain.ComplaintPriority("Critical"), 4320},
		"empty":   {domain.ComplaintPriority(""), 4320},
	}
	table := DefaultPolicyTable()
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := table.ComputeDueDate(tt.priority, t0)
			assert.Equal(t, t0.Add(time.Duration(tt.minutes)*time.Minute), got)
		})
	}
}

func TestComputeDueDate_NilTableUsesDefaults(t *testing.T) {
	var table *PolicyTable
	assert.Equal(t, t0.Add(240*time.Minute), table.ComputeDueDate(domain.ComplaintPriorityUrgent, t0))
}

func TestComputeDueDate_MostRecentActivePolicyWins(t *testing.T) {
	table := NewPolicyTable([]domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityHigh, ResolutionMinutes: 600, IsActive: true, CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "2", Priority: domain.ComplaintPriorityHigh, ResolutionMinutes: 120, IsActive: true, CreatedAt: t0.Add(-1 * time.Hour)},
		{ID: "3", Priority: domain.ComplaintPriorityHigh, ResolutionMinutes: 30, IsActive: false, CreatedAt: t0},
	})

	got := table.Deadlines(domain.ComplaintPriorityHigh, t0)
	assert.Equal(t, t0.Add(120*time.Minute), got.DueDate)
	assert.Equal(t, PolicySourceStored, got.Policy.Source)
	assert.Equal(t, "2", got.Policy.PolicyID)
}

func TestComputeDueDate_SameCreatedAtBreaksTieOnID(t *testing.T) {
	table := NewPolicyTable([]domain.SLAPolicy{
		{ID: "10", Priority: domain.ComplaintPriorityLow, ResolutionMinutes: 50, IsActive: true, CreatedAt: t0},
		{ID: "9", Priority: domain.ComplaintPriorityLow, ResolutionMinutes: 90, IsActive: true, CreatedAt: t0},
	})
	assert.Equal(t, "10", table.Lookup(domain.ComplaintPriorityLow).PolicyID)
}

func TestDeadlines_ResponseDue(t *testing.T) {
	table := NewPolicyTable([]domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityUrgent, ResponseMinutes: 30, ResolutionMinutes: 240, EscalationMinutes: intPtr(240), IsActive: true, CreatedAt: t0},
	})

	got := table.Deadlines(domain.ComplaintPriorityUrgent, t0)
	require.NotNil(t, got.ResponseDue)
	assert.Equal(t, t0.Add(30*time.Minute), *got.ResponseDue)
	assert.Equal(t, t0.Add(4*time.Hour), got.DueDate)

	assert.Nil(t, table.Deadlines(domain.ComplaintPriorityLow, t0).ResponseDue)
}

func TestPolicyTable_SnapshotIsolatedFromSource(t *testing.T) {
	escalation := 60
	rows := []domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityHigh, ResolutionMinutes: 100, EscalationMinutes: &escalation, IsActive: true, CreatedAt: t0},
	}
	table := NewPolicyTable(rows)

	rows[0].ResolutionMinutes = 1
	escalation = 1

	policy := table.Lookup(domain.ComplaintPriorityHigh)
	assert.Equal(t, 100, policy.ResolutionMinutes)
	require.NotNil(t, policy.EscalationMinutes)
	assert.Equal(t, 60, *policy.EscalationMinutes)
}
