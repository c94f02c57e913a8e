package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
	"github.com/spec-kit/complaint-service/internal/service"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// ComplaintsHandler manages complaint endpoints.
type ComplaintsHandler struct {
	service *service.ComplaintService
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(complaintService *service.ComplaintService) *ComplaintsHandler {
	return &ComplaintsHandler{service: complaintService}
}

// CreateComplaint POST /complaints.
func (h *ComplaintsHandler) CreateComplaint(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateComplaintRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	res, err := h.service.CreateComplaint(c.UserContext(), actor.ID, service.ComplaintCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateComplaintResponse{
		Complaint: complaintResponse(res.Complaint),
		Routing: dto.RoutingResponse{
			Kind:   string(res.Target.Kind),
			UserID: res.Target.UserID,
			RoleID: res.Target.RoleID,
			RuleID: res.Target.RuleID,
		},
		Events: timelineResponses(res.Events),
	}})
}

// ListComplaints GET /complaints.
func (h *ComplaintsHandler) ListComplaints(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	filter, err := parseComplaintQuery(c)
	if err != nil {
		return err
	}
	complaints, err := h.service.List(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.ComplaintResponse, 0, len(complaints))
	for i := range complaints {
		items = append(items, complaintResponse(&complaints[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetComplaint GET /complaints/:id.
func (h *ComplaintsHandler) GetComplaint(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	complaint, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": complaintResponse(complaint)})
}

// UpdateComplaint PATCH /complaints/:id.
func (h *ComplaintsHandler) UpdateComplaint(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateComplaintRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.service.UpdateDetails(c.UserContext(), actor, c.Params("id"), service.ComplaintUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(res)})
}

// DeleteComplaint DELETE /complaints/:id.
func (h *ComplaintsHandler) DeleteComplaint(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	if _, err := h.service.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChangeStatus POST /complaints/:id/status.
func (h *ComplaintsHandler) ChangeStatus(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.StatusChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.service.Transition(c.UserContext(), c.Params("id"), req.Status, actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(res)})
}

// ChangePriority POST /complaints/:id/priority.
func (h *ComplaintsHandler) ChangePriority(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.PriorityChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.service.UpdatePriority(c.UserContext(), c.Params("id"), req.Priority, actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(res)})
}

// Assign POST /complaints/:id/assign.
func (h *ComplaintsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.service.Assign(c.UserContext(), c.Params("id"), req.AssigneeID, actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(res)})
}

// Escalate POST /complaints/:id/escalate.
func (h *ComplaintsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	res, err := h.service.Escalate(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": changeResponse(res)})
}

// Timeline GET /complaints/:id/timeline.
func (h *ComplaintsHandler) Timeline(c *fiber.Ctx) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return err
	}
	events, err := h.service.Timeline(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timelineResponses(events)})
}

func actorFromContext(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("user required")
	}
	return service.Actor{ID: principal.ID(), Role: principal.Role()}, nil
}

func parseComplaintQuery(c *fiber.Ctx) (service.ComplaintListFilter, error) {
	filter := service.ComplaintListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status, err := lifecycle.ParseStatus(part)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.ComplaintPriority(strings.TrimSpace(part)))
		}
	}
	filter.Category = optionalQuery(c, "category")
	filter.Location = optionalQuery(c, "location")
	filter.AssignedTo = optionalQuery(c, "assigned_to")
	filter.IsOverdue = parseBool(c.Query("overdue"))
	filter.IsEscalated = parseBool(c.Query("escalated"))

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func parseBool(val string) *bool {
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func complaintResponse(complaint *domain.Complaint) dto.ComplaintResponse {
	return dto.ComplaintResponse{
		ID:             complaint.ID,
		ReferenceKey:   complaint.ReferenceKey,
		Title:          complaint.Title,
		Description:    complaint.Description,
		Category:       complaint.Category,
		Location:       complaint.Location,
		Priority:       complaint.Priority,
		Status:         complaint.Status,
		SLAMinutes:     complaint.SLAMinutes,
		DueDate:        complaint.DueDate,
		IsOverdue:      complaint.IsOverdue,
		IsEscalated:    complaint.IsEscalated,
		EscalatedAt:    complaint.EscalatedAt,
		AcknowledgedAt: complaint.AcknowledgedAt,
		ResolvedAt:     complaint.ResolvedAt,
		ResolvedBy:     complaint.ResolvedBy,
		ClosedAt:       complaint.ClosedAt,
		AssignedTo:     complaint.AssignedTo,
		PendingRoleID:  complaint.PendingRoleID,
		CreatedBy:      complaint.CreatedBy,
		CreatedAt:      complaint.CreatedAt,
		UpdatedAt:      complaint.UpdatedAt,
	}
}

func changeResponse(res *service.ChangeResult) dto.ChangeResponse {
	return dto.ChangeResponse{
		Complaint: complaintResponse(res.Complaint),
		Events:    timelineResponses(res.Events),
	}
}

func timelineResponses(entries []domain.TimelineEvent) []dto.TimelineEventResponse {
	resp := make([]dto.TimelineEventResponse, 0, len(entries))
	for _, entry := range entries {
		metadata := entry.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		resp = append(resp, dto.TimelineEventResponse{
			ID:          entry.ID,
			ComplaintID: entry.ComplaintID,
			EventType:   entry.EventType,
			Description: entry.Description,
			ActorID:     entry.ActorID,
			Metadata:    metadata,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
