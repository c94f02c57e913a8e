// Package memory implements the repository interfaces on process memory. It backs
// the service when no Postgres DSN is configured and serves as the test double for
// the service, worker and HTTP packages. Flag updates follow the same
// compare-and-set rules as the SQL implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu         sync.Mutex
	seq        int64
	complaints map[string]*domain.Complaint
	timeline   []domain.TimelineEvent
	policies   []domain.SLAPolicy
	rules      []domain.RoutingRule
	users      map[string]*domain.User
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		complaints: make(map[string]*domain.Complaint),
		users:      make(map[string]*domain.User),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Complaints returns the complaint repository view.
func (s *Store) Complaints() repository.ComplaintRepository { return (*complaintRepo)(s) }

// Timeline returns the timeline repository view.
func (s *Store) Timeline() repository.TimelineRepository { return (*timelineRepo)(s) }

// SLAPolicies returns the SLA policy repository view.
func (s *Store) SLAPolicies() repository.SLAPolicyRepository { return (*policyRepo)(s) }

// RoutingRules returns the routing rule repository view.
func (s *Store) RoutingRules() repository.RoutingRuleRepository { return (*ruleRepo)(s) }

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return (*userRepo)(s) }

// nextID returns a sortable, zero-padded sequence id so keyset paging matches insertion order.
func (s *Store) nextID() string {
	s.seq++
	return padID(s.seq)
}

func padID(n int64) string {
	const width = 12
	digits := []byte(strings.Repeat("0", width))
	for i := width - 1; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

func (s *Store) appendEvent(event *domain.TimelineEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	stored := *event
	stored.Metadata = copyMetadata(event.Metadata)
	s.timeline = append(s.timeline, stored)
}

type complaintRepo Store

func (r *complaintRepo) store() *Store { return (*Store)(r) }

func (r *complaintRepo) Create(_ context.Context, complaint *domain.Complaint, events []*domain.TimelineEvent) error {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	complaint.ID = s.nextID()
	if complaint.CreatedAt.IsZero() {
		complaint.CreatedAt = s.now()
	}
	complaint.UpdatedAt = complaint.CreatedAt
	stored := copyComplaint(*complaint)
	s.complaints[complaint.ID] = &stored
	for _, event := range events {
		event.ComplaintID = complaint.ID
		s.appendEvent(event)
	}
	return nil
}

func (r *complaintRepo) GetByID(_ context.Context, id string) (*domain.Complaint, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.complaints[id]
	if !ok || stored.IsDeleted {
		return nil, pgx.ErrNoRows
	}
	out := copyComplaint(*stored)
	return &out, nil
}

func (r *complaintRepo) ListWithFilter(_ context.Context, filter repository.ComplaintFilter) ([]domain.Complaint, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Complaint
	for _, c := range s.complaints {
		if matchesFilter(*c, filter) {
			matched = append(matched, copyComplaint(*c))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *complaintRepo) Mutate(_ context.Context, id string, fn repository.MutateFunc) (*domain.Complaint, []*domain.TimelineEvent, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.complaints[id]
	if !ok || stored.IsDeleted {
		return nil, nil, pgx.ErrNoRows
	}
	working := copyComplaint(*stored)
	events, err := fn(&working)
	if err != nil {
		return nil, nil, err
	}

	// Only handler-owned columns are written back; flags stay as stored.
	stored.Title = working.Title
	stored.Description = working.Description
	stored.Category = working.Category
	stored.Location = working.Location
	stored.Priority = working.Priority
	stored.Status = working.Status
	stored.AcknowledgedAt = copyTime(working.AcknowledgedAt)
	stored.ResolvedAt = copyTime(working.ResolvedAt)
	stored.ResolvedBy = copyString(working.ResolvedBy)
	stored.ClosedAt = copyTime(working.ClosedAt)
	stored.AssignedTo = copyString(working.AssignedTo)
	stored.PendingRoleID = copyString(working.PendingRoleID)
	stored.IsDeleted = working.IsDeleted
	stored.DeletedAt = copyTime(working.DeletedAt)
	stored.UpdatedAt = working.UpdatedAt

	for _, event := range events {
		event.ComplaintID = id
		s.appendEvent(event)
	}
	out := copyComplaint(*stored)
	return &out, events, nil
}

func (r *complaintRepo) ListSweepCandidates(_ context.Context, afterID string, limit int) ([]domain.Complaint, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 200
	}
	var out []domain.Complaint
	for _, c := range s.complaints {
		if c.IsDeleted || c.Status.IsTerminal() || (c.IsOverdue && c.IsEscalated) {
			continue
		}
		if afterID != "" && c.ID <= afterID {
			continue
		}
		out = append(out, copyComplaint(*c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *complaintRepo) MarkOverdue(_ context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok || c.IsOverdue || c.IsDeleted || c.Status.IsTerminal() || !c.DueDate.Before(now) {
		return false, nil
	}
	c.IsOverdue = true
	c.UpdatedAt = now
	if event != nil {
		event.ComplaintID = id
		s.appendEvent(event)
	}
	return true, nil
}

func (r *complaintRepo) MarkEscalated(_ context.Context, id string, now time.Time, event *domain.TimelineEvent) (bool, error) {
	s := r.store()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.complaints[id]
	if !ok || c.IsEscalated || c.IsDeleted || c.Status.IsTerminal() {
		return false, nil
	}
	c.IsEscalated = true
	c.EscalatedAt = copyTime(&now)
	c.UpdatedAt = now
	if event != nil {
		event.ComplaintID = id
		s.appendEvent(event)
	}
	return true, nil
}

func matchesFilter(c domain.Complaint, f repository.ComplaintFilter) bool {
	if c.IsDeleted {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, c.Priority) {
		return false
	}
	if f.Category != nil && *f.Category != c.Category {
		return false
	}
	if f.Location != nil && *f.Location != c.Location {
		return false
	}
	if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
		return false
	}
	if f.CreatedBy != nil && *f.CreatedBy != c.CreatedBy {
		return false
	}
	if f.IsOverdue != nil && *f.IsOverdue != c.IsOverdue {
		return false
	}
	if f.IsEscalated != nil && *f.IsEscalated != c.IsEscalated {
		return false
	}
	return true
}

func containsStatus(list []domain.ComplaintStatus, v domain.ComplaintStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.ComplaintPriority, v domain.ComplaintPriority) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type timelineRepo Store

func (r *timelineRepo) ListByComplaint(_ context.Context, complaintID string) ([]domain.TimelineEvent, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TimelineEvent
	for _, event := range s.timeline {
		if event.ComplaintID == complaintID {
			copied := event
			copied.Metadata = copyMetadata(event.Metadata)
			out = append(out, copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type policyRepo Store

func (r *policyRepo) Create(_ context.Context, policy *domain.SLAPolicy) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	policy.ID = s.nextID()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = s.now()
	}
	stored := *policy
	stored.EscalationMinutes = copyInt(policy.EscalationMinutes)
	s.policies = append(s.policies, stored)
	return nil
}

func (r *policyRepo) List(_ context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SLAPolicy
	for _, p := range s.policies {
		if activeOnly && !p.IsActive {
			continue
		}
		p.EscalationMinutes = copyInt(p.EscalationMinutes)
		out = append(out, p)
	}
	return out, nil
}

func (r *policyRepo) Deactivate(_ context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.policies {
		if s.policies[i].ID == id {
			s.policies[i].IsActive = false
			return nil
		}
	}
	return pgx.ErrNoRows
}

type ruleRepo Store

func (r *ruleRepo) Create(_ context.Context, rule *domain.RoutingRule) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.UserID != nil {
		if _, ok := s.users[*rule.UserID]; !ok {
			return fmt.Errorf("routing_rules_user_id_fkey: %w", repository.ErrUnknownReference)
		}
	}
	rule.ID = s.nextID()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.now()
	}
	s.rules = append(s.rules, copyRule(*rule))
	return nil
}

func (r *ruleRepo) List(_ context.Context, activeOnly bool) ([]domain.RoutingRule, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RoutingRule
	for _, rule := range s.rules {
		if activeOnly && !rule.IsActive {
			continue
		}
		out = append(out, copyRule(rule))
	}
	return out, nil
}

func (r *ruleRepo) Deactivate(_ context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].IsActive = false
			return nil
		}
	}
	return pgx.ErrNoRows
}

type userRepo Store

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.ID = s.nextID()
	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *user
	return &out, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			out := *user
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func copyComplaint(c domain.Complaint) domain.Complaint {
	c.EscalatedAt = copyTime(c.EscalatedAt)
	c.AcknowledgedAt = copyTime(c.AcknowledgedAt)
	c.ResolvedAt = copyTime(c.ResolvedAt)
	c.ResolvedBy = copyString(c.ResolvedBy)
	c.ClosedAt = copyTime(c.ClosedAt)
	c.AssignedTo = copyString(c.AssignedTo)
	c.PendingRoleID = copyString(c.PendingRoleID)
	c.DeletedAt = copyTime(c.DeletedAt)
	return c
}

func copyRule(r domain.RoutingRule) domain.RoutingRule {
	r.Category = copyString(r.Category)
	r.Location = copyString(r.Location)
	r.UserID = copyString(r.UserID)
	r.RoleID = copyString(r.RoleID)
	if r.Priority != nil {
		p := *r.Priority
		r.Priority = &p
	}
	return r
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
