package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/worker"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// SweepRunner triggers one sweep pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (worker.SweepResult, error)
}

// AdminHandler exposes SLA policy, routing rule and sweep administration.
type AdminHandler struct {
	policies   *service.PolicyService
	complaints *service.ComplaintService
	sweeper    SweepRunner
}

// NewAdminHandler constructs handler. A nil sweeper disables POST /admin/sweep.
func NewAdminHandler(policies *service.PolicyService, complaints *service.ComplaintService, sweeper SweepRunner) *AdminHandler {
	return &AdminHandler{policies: policies, complaints: complaints, sweeper: sweeper}
}

// ListPolicies GET /admin/sla-policies.
func (h *AdminHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.policies.ListPolicies(c.UserContext(), c.QueryBool("active_only", false))
	if err != nil {
		return err
	}
	items := make([]dto.SLAPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreatePolicy POST /admin/sla-policies.
func (h *AdminHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.SLAPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.policies.CreatePolicy(c.UserContext(), service.SLAPolicyInput{
		Name:              req.Name,
		Priority:          req.Priority,
		ResponseMinutes:   req.ResponseMinutes,
		ResolutionMinutes: req.ResolutionMinutes,
		EscalationMinutes: req.EscalationMinutes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// DeactivatePolicy DELETE /admin/sla-policies/:id.
func (h *AdminHandler) DeactivatePolicy(c *fiber.Ctx) error {
	if err := h.policies.DeactivatePolicy(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListRules GET /admin/routing-rules.
func (h *AdminHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.policies.ListRules(c.UserContext(), c.QueryBool("active_only", false))
	if err != nil {
		return err
	}
	items := make([]dto.RoutingRuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateRule POST /admin/routing-rules.
func (h *AdminHandler) CreateRule(c *fiber.Ctx) error {
	var req dto.RoutingRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.policies.CreateRule(c.UserContext(), service.RoutingRuleInput{
		Name:     req.Name,
		Order:    req.Order,
		Category: req.Category,
		Location: req.Location,
		Priority: req.Priority,
		UserID:   req.UserID,
		RoleID:   req.RoleID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// DeactivateRule DELETE /admin/routing-rules/:id.
func (h *AdminHandler) DeactivateRule(c *fiber.Ctx) error {
	if err := h.policies.DeactivateRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Sweep POST /admin/sweep.
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	if h.sweeper == nil {
		return apperrors.NewConfigurationError("sweeper not configured", nil)
	}
	result, err := h.sweeper.RunOnce(c.UserContext())
	if err != nil {
		if errors.Is(err, worker.ErrSweepInProgress) {
			return apperrors.NewConflict("sweep already running", nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Scanned:   result.Scanned,
		Overdue:   result.Overdue,
		Escalated: result.Escalated,
		Failures:  result.Failures,
	}})
}

// DueDate GET /admin/due-date?priority=High&created_at=RFC3339.
func (h *AdminHandler) DueDate(c *fiber.Ctx) error {
	priority := domain.ComplaintPriority(strings.TrimSpace(c.Query("priority")))
	createdAt := time.Now().UTC()
	if raw := c.Query("created_at"); raw != "" {
		parsed := parseTime(raw)
		if parsed == nil {
			return apperrors.NewValidationError("created_at must be RFC3339", map[string]any{"created_at": raw})
		}
		createdAt = *parsed
	}
	due, err := h.complaints.ComputeDueDate(c.UserContext(), priority, createdAt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DueDateResponse{
		Priority:          priority,
		CreatedAt:         createdAt,
		DueDate:           due.DueDate,
		ResponseDue:       due.ResponseDue,
		ResolutionMinutes: due.Policy.ResolutionMinutes,
		EscalationMinutes: due.Policy.EscalationMinutes,
		Source:            string(due.Policy.Source),
		PolicyID:          due.Policy.PolicyID,
	}})
}

func policyResponse(policy *domain.SLAPolicy) dto.SLAPolicyResponse {
	return dto.SLAPolicyResponse{
		ID:                policy.ID,
		Name:              policy.Name,
		Priority:          policy.Priority,
		ResponseMinutes:   policy.ResponseMinutes,
		ResolutionMinutes: policy.ResolutionMinutes,
		EscalationMinutes: policy.EscalationMinutes,
		IsActive:          policy.IsActive,
		CreatedAt:         policy.CreatedAt,
	}
}

func ruleResponse(rule *domain.RoutingRule) dto.RoutingRuleResponse {
	return dto.RoutingRuleResponse{
		ID:        rule.ID,
		Name:      rule.Name,
		Order:     rule.Order,
		Category:  rule.Category,
		Location:  rule.Location,
		Priority:  rule.Priority,
		UserID:    rule.UserID,
		RoleID:    rule.RoleID,
		IsActive:  rule.IsActive,
		CreatedAt: rule.CreatedAt,
	}
}
