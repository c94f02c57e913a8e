package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// ParseStatus validates a status token. "InProgress" is accepted as an alias of "In Progress".
func ParseStatus(token string) (domain.ComplaintStatus, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "InProgress" {
		return domain.ComplaintStatusInProgress, nil
	}
	for _, status := range domain.ComplaintStatuses {
		if string(status) == trimmed {
			return status, nil
		}
	}
	return "", apperrors.NewValidationError("invalid status", map[string]any{
		"status":  token,
		"allowed": domain.ComplaintStatuses,
	})
}

var strictTransitions = map[domain.ComplaintStatus][]domain.ComplaintStatus{
	domain.ComplaintStatusNew: {
		domain.ComplaintStatusAcknowledged,
		domain.ComplaintStatusInProgress,
		domain.ComplaintStatusResolved,
		domain.ComplaintStatusClosed,
	},
	domain.ComplaintStatusAcknowledged: {
		domain.ComplaintStatusInProgress,
		domain.ComplaintStatusResolved,
		domain.ComplaintStatusClosed,
	},
	domain.ComplaintStatusInProgress: {domain.ComplaintStatusResolved, domain.ComplaintStatusClosed},
	domain.ComplaintStatusResolved:   {domain.ComplaintStatusClosed, domain.ComplaintStatusInProgress},
	domain.ComplaintStatusClosed:     {},
}

// StateMachine applies status transitions and their first-occurrence timestamps.
// The zero value is unconstrained; strict mode enforces the forward-only graph.
type StateMachine struct {
	strict bool
}

// NewStateMachine builds a state machine. strict enables transition guards.
func NewStateMachine(strict bool) *StateMachine {
	return &StateMachine{strict: strict}
}

// Strict reports whether guards are enforced.
func (m *StateMachine) Strict() bool {
	return m != nil && m.strict
}

// Allowed reports whether from -> to passes the guard in the current mode.
func (m *StateMachine) Allowed(from, to domain.ComplaintStatus) bool {
	if !m.Strict() {
		return true
	}
	for _, candidate := range strictTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Apply moves c to the target status, stamps the first acknowledged/resolved/closed
// time, and returns the single status_changed event describing the move.
func (m *StateMachine) Apply(c *domain.Complaint, to domain.ComplaintStatus, actorID string, now time.Time) (*domain.TimelineEvent, error) {
	if c == nil {
		return nil, apperrors.NewValidationError("complaint required", nil)
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, err
	}
	from := c.Status
	if !m.Allowed(from, to) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": from,
			"to":   to,
		})
	}

	c.Status = to
	c.UpdatedAt = now
	switch to {
	case domain.ComplaintStatusAcknowledged:
		if c.AcknowledgedAt == nil {
			c.AcknowledgedAt = timePtr(now)
		}
	case domain.ComplaintStatusResolved:
		if c.ResolvedAt == nil {
			c.ResolvedAt = timePtr(now)
			if actorID != "" {
				c.ResolvedBy = stringPtr(actorID)
			}
		}
	case domain.ComplaintStatusClosed:
		if c.ClosedAt == nil {
			c.ClosedAt = timePtr(now)
		}
	}

	return &domain.TimelineEvent{
		ComplaintID: c.ID,
		EventType:   domain.TimelineStatusChanged,
		Description: fmt.Sprintf("Status changed from %s to %s", from, to),
		ActorID:     optionalActor(actorID),
		Metadata: map[string]any{
			"old_status": string(from),
			"new_status": string(to),
		},
		CreatedAt: now,
	}, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func stringPtr(s string) *string {
	return &s
}

func optionalActor(actorID string) *string {
	if actorID == "" {
		return nil
	}
	return stringPtr(actorID)
}
