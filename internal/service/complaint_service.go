package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// SnapshotProvider hands out immutable copies of the policy and rule tables.
type SnapshotProvider interface {
	PolicyTable(ctx context.Context) (*lifecycle.PolicyTable, error)
	RuleSet(ctx context.Context) (*lifecycle.RuleSet, error)
}

// Actor identifies the caller of an interactive operation.
type Actor struct {
	ID   string
	Role domain.UserRole
}

// ComplaintService coordinates complaint workflows around the lifecycle core.
type ComplaintService struct {
	complaints repository.ComplaintRepository
	timeline   repository.TimelineRepository
	users      repository.UserRepository
	snapshots  SnapshotProvider
	dispatcher events.Dispatcher
	machine    *lifecycle.StateMachine
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ComplaintDependencies bundles collaborators for the complaint service.
type ComplaintDependencies struct {
	ComplaintRepo     repository.ComplaintRepository
	TimelineRepo      repository.TimelineRepository
	UserRepo          repository.UserRepository
	Snapshots         SnapshotProvider
	Dispatcher        events.Dispatcher
	Metrics           *observability.Metrics
	Logger            *zap.Logger
	StrictTransitions bool
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// ComplaintCreateInput describes complaint creation payload.
type ComplaintCreateInput struct {
	Title       string
	Description string
	Category    string
	Location    string
	Priority    domain.ComplaintPriority
}

// ComplaintUpdateInput carries optional detail edits.
type ComplaintUpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	Location    *string
}

// ComplaintListFilter describes listing filters.
type ComplaintListFilter struct {
	Statuses    []domain.ComplaintStatus
	Priorities  []domain.ComplaintPriority
	Category    *string
	Location    *string
	AssignedTo  *string
	IsOverdue   *bool
	IsEscalated *bool
	Limit       int
	Offset      int
}

// CreateResult is the outcome of createComplaint.
type CreateResult struct {
	Complaint *domain.Complaint
	Target    lifecycle.RoutingTarget
	Events    []domain.TimelineEvent
}

// ChangeResult is the outcome of any mutation: the stored complaint and the events it appended.
type ChangeResult struct {
	Complaint *domain.Complaint
	Events    []domain.TimelineEvent
}

// NewComplaintService constructs the service.
func NewComplaintService(deps ComplaintDependencies) *ComplaintService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &ComplaintService{
		complaints: deps.ComplaintRepo,
		timeline:   deps.TimelineRepo,
		users:      deps.UserRepo,
		snapshots:  deps.Snapshots,
		dispatcher: deps.Dispatcher,
		machine:    lifecycle.NewStateMachine(deps.StrictTransitions),
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// ComputeDueDate resolves the deadlines for priority against the live policy table.
func (s *ComplaintService) ComputeDueDate(ctx context.Context, priority domain.ComplaintPriority, createdAt time.Time) (lifecycle.DueDate, error) {
	table, err := s.snapshots.PolicyTable(ctx)
	if err != nil {
		return lifecycle.DueDate{}, err
	}
	return table.Deadlines(priority, createdAt), nil
}

// CreateComplaint routes the complaint, stamps its due date and stores it with status New.
func (s *ComplaintService) CreateComplaint(ctx context.Context, creatorID string, input ComplaintCreateInput) (*CreateResult, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	missing := []string{}
	if title == "" {
		missing = append(missing, "title")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(creatorID) == "" {
		missing = append(missing, "created_by")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required complaint fields", map[string]any{"fields": missing})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.ComplaintPriorityMedium
	}
	if !priority.IsKnown() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{
			"priority": priority,
			"allowed":  domain.ComplaintPriorities,
		})
	}

	table, err := s.snapshots.PolicyTable(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.snapshots.RuleSet(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	complaint := &domain.Complaint{
		ReferenceKey: generateReferenceKey(),
		Title:        title,
		Description:  description,
		Category:     strings.TrimSpace(input.Category),
		Location:     strings.TrimSpace(input.Location),
		Priority:     priority,
		Status:       domain.ComplaintStatusNew,
		CreatedBy:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	target := rules.Route(lifecycle.Attributes{
		Category: complaint.Category,
		Location: complaint.Location,
		Priority: complaint.Priority,
	})
	complaint.AssignedTo = target.AssignedTo()
	if target.PendingRoleDispatch() {
		roleID := target.RoleID
		complaint.PendingRoleID = &roleID
	}

	deadlines := table.Deadlines(priority, now)
	complaint.SLAMinutes = deadlines.Policy.ResolutionMinutes
	complaint.DueDate = deadlines.DueDate

	pending := []*domain.TimelineEvent{{
		EventType:   domain.TimelineCreated,
		Description: "Complaint created: " + complaint.Title,
		ActorID:     &creatorID,
		Metadata: map[string]any{
			"priority":    string(priority),
			"due_date":    complaint.DueDate.Format(time.RFC3339),
			"sla_minutes": complaint.SLAMinutes,
			"sla_source":  string(deadlines.Policy.Source),
		},
		CreatedAt: now,
	}}
	switch target.Kind {
	case lifecycle.TargetUser:
		pending = append(pending, &domain.TimelineEvent{
			EventType:   domain.TimelineAssigned,
			Description: "Complaint assigned to " + target.UserID + " by routing rule",
			Metadata:    map[string]any{"assigned_to": target.UserID, "rule_id": target.RuleID},
			CreatedAt:   now,
		})
	case lifecycle.TargetRole:
		pending = append(pending, &domain.TimelineEvent{
			EventType:   domain.TimelineRoutedToRole,
			Description: "Complaint routed to role " + target.RoleID + ", pending dispatch",
			Metadata:    map[string]any{"role_id": target.RoleID, "rule_id": target.RuleID},
			CreatedAt:   now,
		})
	}

	if err := s.complaints.Create(ctx, complaint, pending); err != nil {
		return nil, err
	}
	s.metrics.RecordComplaintCreated(target.Kind != lifecycle.TargetNone)
	recorded := s.publishAll(ctx, pending)
	return &CreateResult{Complaint: complaint, Target: target, Events: recorded}, nil
}

// Transition moves a complaint to newStatus. Every successful call appends exactly one
// status_changed event.
func (s *ComplaintService) Transition(ctx context.Context, complaintID, newStatus, actorID string) (*ChangeResult, error) {
	to, err := lifecycle.ParseStatus(newStatus)
	if err != nil {
		return nil, err
	}
	var from domain.ComplaintStatus
	complaint, pending, err := s.complaints.Mutate(ctx, complaintID, func(c *domain.Complaint) ([]*domain.TimelineEvent, error) {
		from = c.Status
		event, err := s.machine.Apply(c, to, actorID, s.now())
		if err != nil {
			return nil, err
		}
		return []*domain.TimelineEvent{event}, nil
	})
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	s.metrics.RecordTransition(string(from), string(to))
	return &ChangeResult{Complaint: complaint, Events: s.publishAll(ctx, pending)}, nil
}

// UpdateDetails edits title, description, category or location. Only the owner or a
// handler may do so. An edit that changes nothing appends no event.
func (s *ComplaintService) UpdateDetails(ctx context.Context, actor Actor, complaintID string, input ComplaintUpdateInput) (*ChangeResult, error) {
	complaint, pending, err := s.complaints.Mutate(ctx, complaintID, func(c *domain.Complaint) ([]*domain.TimelineEvent, error) {
		if !canEdit(actor, c) {
			return nil, apperrors.NewForbidden("only the owner or a handler may edit this complaint")
		}
		changed := map[string]any{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return nil, apperrors.NewValidationError("title cannot be empty", nil)
			}
			if title != c.Title {
				c.Title = title
				changed["title"] = title
			}
		}
		if input.Description != nil {
			description := strings.TrimSpace(*input.Description)
			if description == "" {
				return nil, apperrors.NewValidationError("description cannot be empty", nil)
			}
			if description != c.Description {
				c.Description = description
				changed["description"] = description
			}
		}
		if input.Category != nil && strings.TrimSpace(*input.Category) != c.Category {
			c.Category = strings.TrimSpace(*input.Category)
			changed["category"] = c.Category
		}
		if input.Location != nil && strings.TrimSpace(*input.Location) != c.Location {
			c.Location = strings.TrimSpace(*input.Location)
			changed["location"] = c.Location
		}
		if len(changed) == 0 {
			return nil, nil
		}
		now := s.now()
		c.UpdatedAt = now
		return []*domain.TimelineEvent{{
			EventType:   domain.TimelineUpdated,
			Description: "Complaint details updated",
			ActorID:     optionalString(actor.ID),
			Metadata:    changed,
			CreatedAt:   now,
		}}, nil
	})
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	return &ChangeResult{Complaint: complaint, Events: s.publishAll(ctx, pending)}, nil
}

// UpdatePriority changes the priority. The due date stays as computed at creation.
func (s *ComplaintService) UpdatePriority(ctx context.Context, complaintID string, priority domain.ComplaintPriority, actorID string) (*ChangeResult, error) {
	if !priority.IsKnown() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{
			"priority": priority,
			"allowed":  domain.ComplaintPriorities,
		})
	}
	complaint, pending, err := s.complaints.Mutate(ctx, complaintID, func(c *domain.Complaint) ([]*domain.TimelineEvent, error) {
		if c.Priority == priority {
			return nil, nil
		}
		old := c.Priority
		now := s.now()
		c.Priority = priority
		c.UpdatedAt = now
		return []*domain.TimelineEvent{{
			EventType:   domain.TimelinePriorityChanged,
			Description: fmt.Sprintf("Priority changed from %s to %s", old, priority),
			ActorID:     optionalString(actorID),
			Metadata:    map[string]any{"old_priority": string(old), "new_priority": string(priority)},
			CreatedAt:   now,
		}}, nil
	})
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	return &ChangeResult{Complaint: complaint, Events: s.publishAll(ctx, pending)}, nil
}

// Assign hands the complaint to a handler and clears any pending role dispatch.
func (s *ComplaintService) Assign(ctx context.Context, complaintID, assigneeID, actorID string) (*ChangeResult, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee required", nil)
	}
	if s.users != nil {
		user, err := s.users.GetByID(ctx, assigneeID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewNotFound("user", map[string]any{"id": assigneeID})
			}
			return nil, err
		}
		if !user.Role.IsHandler() {
			return nil, apperrors.NewValidationError("assignee must be staff or admin", map[string]any{"id": assigneeID})
		}
	}
	complaint, pending, err := s.complaints.Mutate(ctx, complaintID, func(c *domain.Complaint) ([]*domain.TimelineEvent, error) {
		if c.AssignedTo != nil && *c.AssignedTo == assigneeID && c.PendingRoleID == nil {
			return nil, nil
		}
		metadata := map[string]any{"assigned_to": assigneeID}
		if c.AssignedTo != nil {
			metadata["previous"] = *c.AssignedTo
		}
		if c.PendingRoleID != nil {
			metadata["role_id"] = *c.PendingRoleID
		}
		now := s.now()
		c.AssignedTo = &assigneeID
		c.PendingRoleID = nil
		c.UpdatedAt = now
		return []*domain.TimelineEvent{{
			EventType:   domain.TimelineAssigned,
			Description: "Complaint assigned to " + assigneeID,
			ActorID:     optionalString(actorID),
			Metadata:    metadata,
			CreatedAt:   now,
		}}, nil
	})
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	return &ChangeResult{Complaint: complaint, Events: s.publishAll(ctx, pending)}, nil
}

// Escalate flips the escalation flag on behalf of a handler. It shares the sweep's
// compare-and-set, so an already escalated complaint yields no events.
func (s *ComplaintService) Escalate(ctx context.Context, complaintID, actorID string) (*ChangeResult, error) {
	complaint, err := s.complaints.GetByID(ctx, complaintID)
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	if complaint.Status.IsTerminal() {
		return nil, apperrors.NewValidationError("resolved or closed complaints cannot be escalated", map[string]any{
			"status": complaint.Status,
		})
	}
	if complaint.IsEscalated {
		return &ChangeResult{Complaint: complaint}, nil
	}

	now := s.now()
	event := lifecycle.EscalatedEvent(*complaint, actorID, now)
	flipped, err := s.complaints.MarkEscalated(ctx, complaintID, now, event)
	if err != nil {
		return nil, err
	}
	current, err := s.complaints.GetByID(ctx, complaintID)
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	if !flipped {
		s.logger.Debug("escalation already applied", zap.String("complaint_id", complaintID))
		return &ChangeResult{Complaint: current}, nil
	}
	return &ChangeResult{Complaint: current, Events: s.publishAll(ctx, []*domain.TimelineEvent{event})}, nil
}

// Delete soft-deletes the complaint. Owners and admins may delete.
func (s *ComplaintService) Delete(ctx context.Context, actor Actor, complaintID string) (*ChangeResult, error) {
	complaint, pending, err := s.complaints.Mutate(ctx, complaintID, func(c *domain.Complaint) ([]*domain.TimelineEvent, error) {
		if actor.Role != domain.UserRoleAdmin && c.CreatedBy != actor.ID {
			return nil, apperrors.NewForbidden("only the owner or an admin may delete this complaint")
		}
		now := s.now()
		c.IsDeleted = true
		c.DeletedAt = &now
		c.UpdatedAt = now
		return []*domain.TimelineEvent{{
			EventType:   domain.TimelineDeleted,
			Description: "Complaint deleted",
			ActorID:     optionalString(actor.ID),
			CreatedAt:   now,
		}}, nil
	})
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	return &ChangeResult{Complaint: complaint, Events: s.publishAll(ctx, pending)}, nil
}

// Get returns a complaint visible to actor. Complainants only see their own.
func (s *ComplaintService) Get(ctx context.Context, actor Actor, complaintID string) (*domain.Complaint, error) {
	complaint, err := s.complaints.GetByID(ctx, complaintID)
	if err != nil {
		return nil, s.notFound(err, complaintID)
	}
	if !actor.Role.IsHandler() && complaint.CreatedBy != actor.ID {
		return nil, apperrors.NewNotFound("complaint", map[string]any{"id": complaintID})
	}
	return complaint, nil
}

// List returns complaints matching filter. Complainants are scoped to their own.
func (s *ComplaintService) List(ctx context.Context, actor Actor, filter ComplaintListFilter) ([]domain.Complaint, error) {
	repoFilter := repository.ComplaintFilter{
		Statuses:    filter.Statuses,
		Priorities:  filter.Priorities,
		Category:    filter.Category,
		Location:    filter.Location,
		AssignedTo:  filter.AssignedTo,
		IsOverdue:   filter.IsOverdue,
		IsEscalated: filter.IsEscalated,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}
	if !actor.Role.IsHandler() {
		owner := actor.ID
		repoFilter.CreatedBy = &owner
	}
	return s.complaints.ListWithFilter(ctx, repoFilter)
}

// Timeline returns the complaint's events ordered oldest first.
func (s *ComplaintService) Timeline(ctx context.Context, actor Actor, complaintID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, actor, complaintID); err != nil {
		return nil, err
	}
	return s.timeline.ListByComplaint(ctx, complaintID)
}

func (s *ComplaintService) publishAll(ctx context.Context, pending []*domain.TimelineEvent) []domain.TimelineEvent {
	recorded := make([]domain.TimelineEvent, 0, len(pending))
	for _, event := range pending {
		recorded = append(recorded, *event)
		s.publishEvent(ctx, events.FromTimeline(*event))
	}
	return recorded
}

func (s *ComplaintService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event subscribers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("complaint_id", event.ComplaintID),
			zap.Error(err))
	}
}

func (s *ComplaintService) notFound(err error, complaintID string) error {
	if apperrors.IsNotFound(err) && !apperrors.HasCode(err, apperrors.CodeNotFound) {
		return apperrors.NewNotFound("complaint", map[string]any{"id": complaintID})
	}
	return err
}

func canEdit(actor Actor, c *domain.Complaint) bool {
	return actor.Role.IsHandler() || c.CreatedBy == actor.ID
}

func generateReferenceKey() string {
	return "CMP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
