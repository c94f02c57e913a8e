package dto

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// SLAPolicyRequest creates a policy row.
type SLAPolicyRequest struct {
	Name              string                   `json:"name"`
	Priority          domain.ComplaintPriority `json:"priority"`
	ResponseMinutes   int                      `json:"response_minutes"`
	ResolutionMinutes int                      `json:"resolution_minutes"`
	EscalationMinutes *int                     `json:"escalation_minutes"`
}

// SLAPolicyResponse view.
type SLAPolicyResponse struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Priority          domain.ComplaintPriority `json:"priority"`
	ResponseMinutes   int                      `json:"response_minutes"`
	ResolutionMinutes int                      `json:"resolution_minutes"`
	EscalationMinutes *int                     `json:"escalation_minutes"`
	IsActive          bool                     `json:"is_active"`
	CreatedAt         time.Time                `json:"created_at"`
}

// RoutingRuleRequest creates a routing rule.
type RoutingRuleRequest struct {
	Name     string                    `json:"name"`
	Order    int                       `json:"order"`
	Category *string                   `json:"category"`
	Location *string                   `json:"location"`
	Priority *domain.ComplaintPriority `json:"priority"`
	UserID   *string                   `json:"user_id"`
	RoleID   *string                   `json:"role_id"`
}

// RoutingRuleResponse view.
type RoutingRuleResponse struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	Order     int                       `json:"order"`
	Category  *string                   `json:"category"`
	Location  *string                   `json:"location"`
	Priority  *domain.ComplaintPriority `json:"priority"`
	UserID    *string                   `json:"user_id"`
	RoleID    *string                   `json:"role_id"`
	IsActive  bool                      `json:"is_active"`
	CreatedAt time.Time                 `json:"created_at"`
}

// SweepResponse reports a manual sweep pass.
type SweepResponse struct {
	Scanned   int `json:"scanned"`
	Overdue   int `json:"overdue"`
	Escalated int `json:"escalated"`
	Failures  int `json:"failures"`
}

// DueDateResponse reports the deadlines a priority would receive.
type DueDateResponse struct {
	Priority          domain.ComplaintPriority `json:"priority"`
	CreatedAt         time.Time                `json:"created_at"`
	DueDate           time.Time                `json:"due_date"`
	ResponseDue       *time.Time               `json:"response_due"`
	ResolutionMinutes int                      `json:"resolution_minutes"`
	EscalationMinutes *int                     `json:"escalation_minutes"`
	Source            string                   `json:"source"`
	PolicyID          string                   `json:"policy_id,omitempty"`
}
