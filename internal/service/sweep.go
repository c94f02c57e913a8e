package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
)

// SweepOutcome reports which flags a sweep step actually flipped.
type SweepOutcome struct {
	Overdue   bool
	Escalated bool
}

// SweepPolicyTable returns the policy snapshot one sweep pass evaluates against.
func (s *ComplaintService) SweepPolicyTable(ctx context.Context) (*lifecycle.PolicyTable, error) {
	return s.snapshots.PolicyTable(ctx)
}

// SweepCandidates pages open complaints that still have a flag to flip.
func (s *ComplaintService) SweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Complaint, error) {
	return s.complaints.ListSweepCandidates(ctx, afterID, limit)
}

// ApplySweep evaluates c at now and flips each due flag with a compare-and-set.
// Losing a race to another writer is not an error; the flag simply stays as that
// writer left it and no event is appended.
func (s *ComplaintService) ApplySweep(ctx context.Context, c domain.Complaint, table *lifecycle.PolicyTable, now time.Time) (SweepOutcome, error) {
	var outcome SweepOutcome
	decision := lifecycle.EvaluateSweep(c, table, now)
	if !decision.Any() {
		return outcome, nil
	}

	if decision.MarkOverdue {
		event := lifecycle.OverdueEvent(c, now)
		flipped, err := s.complaints.MarkOverdue(ctx, c.ID, now, event)
		if err != nil {
			return outcome, fmt.Errorf("mark overdue %s: %w", c.ID, err)
		}
		if flipped {
			outcome.Overdue = true
			s.publishAll(ctx, []*domain.TimelineEvent{event})
		} else {
			s.logger.Debug("overdue flag already set", zap.String("complaint_id", c.ID))
		}
	}

	if decision.MarkEscalated {
		event := lifecycle.EscalatedEvent(c, "", now)
		flipped, err := s.complaints.MarkEscalated(ctx, c.ID, now, event)
		if err != nil {
			return outcome, fmt.Errorf("mark escalated %s: %w", c.ID, err)
		}
		if flipped {
			outcome.Escalated = true
			s.publishAll(ctx, []*domain.TimelineEvent{event})
		} else {
			s.logger.Debug("escalation flag already set", zap.String("complaint_id", c.ID))
		}
	}
	return outcome, nil
}
