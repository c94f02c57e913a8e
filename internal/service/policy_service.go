package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// SnapshotInvalidator drops cached policy and rule snapshots.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context) error
}

// PolicyService administers the SLA policy and routing rule tables. Edits only
// affect complaints created afterwards.
type PolicyService struct {
	policies    repository.SLAPolicyRepository
	rules       repository.RoutingRuleRepository
	invalidator SnapshotInvalidator
	logger      *zap.Logger
}

// PolicyDependencies bundles repositories for the policy service.
type PolicyDependencies struct {
	PolicyRepo  repository.SLAPolicyRepository
	RuleRepo    repository.RoutingRuleRepository
	Invalidator SnapshotInvalidator
	Logger      *zap.Logger
}

// SLAPolicyInput describes a new SLA policy row.
type SLAPolicyInput struct {
	Name              string
	Priority          domain.ComplaintPriority
	ResponseMinutes   int
	ResolutionMinutes int
	EscalationMinutes *int
}

// RoutingRuleInput describes a new routing rule.
type RoutingRuleInput struct {
	Name     string
	Order    int
	Category *string
	Location *string
	Priority *domain.ComplaintPriority
	UserID   *string
	RoleID   *string
}

// NewPolicyService creates the service.
func NewPolicyService(deps PolicyDependencies) *PolicyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		policies:    deps.PolicyRepo,
		rules:       deps.RuleRepo,
		invalidator: deps.Invalidator,
		logger:      logger,
	}
}

// ListPolicies returns SLA policies, optionally only the active ones.
func (s *PolicyService) ListPolicies(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	return s.policies.List(ctx, activeOnly)
}

// CreatePolicy validates and stores an active SLA policy.
func (s *PolicyService) CreatePolicy(ctx context.Context, input SLAPolicyInput) (*domain.SLAPolicy, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if !input.Priority.IsKnown() {
		details["priority"] = "must be one of Low, Medium, High, Urgent"
	}
	if input.ResolutionMinutes <= 0 {
		details["resolution_minutes"] = "must be positive"
	}
	if input.ResponseMinutes < 0 {
		details["response_minutes"] = "must not be negative"
	}
	if input.EscalationMinutes != nil && *input.EscalationMinutes <= 0 {
		details["escalation_minutes"] = "must be positive when set"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid sla policy", details)
	}

	policy := &domain.SLAPolicy{
		Name:              strings.TrimSpace(input.Name),
		Priority:          input.Priority,
		ResponseMinutes:   input.ResponseMinutes,
		ResolutionMinutes: input.ResolutionMinutes,
		EscalationMinutes: input.EscalationMinutes,
		IsActive:          true,
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return policy, nil
}

// DeactivatePolicy retires a policy row.
func (s *PolicyService) DeactivatePolicy(ctx context.Context, id string) error {
	if err := s.policies.Deactivate(ctx, id); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFound("sla policy", map[string]any{"id": id})
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListRules returns routing rules in evaluation order.
func (s *PolicyService) ListRules(ctx context.Context, activeOnly bool) ([]domain.RoutingRule, error) {
	rules, err := s.rules.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if activeOnly {
		return lifecycle.NewRuleSet(rules).Rules(), nil
	}
	return rules, nil
}

// CreateRule validates and stores an active routing rule.
func (s *PolicyService) CreateRule(ctx context.Context, input RoutingRuleInput) (*domain.RoutingRule, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("routing rule name required", nil)
	}
	if input.Priority != nil && *input.Priority != "" && !input.Priority.IsKnown() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
	}
	rule := &domain.RoutingRule{
		Name:     strings.TrimSpace(input.Name),
		Order:    input.Order,
		Category: trimmedOrNil(input.Category),
		Location: trimmedOrNil(input.Location),
		Priority: input.Priority,
		UserID:   trimmedOrNil(input.UserID),
		RoleID:   trimmedOrNil(input.RoleID),
		IsActive: true,
	}
	if err := lifecycle.ValidateRule(*rule); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		details := map[string]any{"user_id": rule.UserID}
		switch {
		case errors.Is(err, repository.ErrUnknownReference):
			return nil, apperrors.NewNotFound("user", details)
		case apperrors.IsNotFound(err):
			return nil, apperrors.NewValidationError("user_id is not a valid id", details)
		}
		return nil, err
	}
	s.invalidate(ctx)
	return rule, nil
}

// DeactivateRule retires a routing rule.
func (s *PolicyService) DeactivateRule(ctx context.Context, id string) error {
	if err := s.rules.Deactivate(ctx, id); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewNotFound("routing rule", map[string]any{"id": id})
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *PolicyService) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("snapshot invalidation failed", zap.Error(err))
	}
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
