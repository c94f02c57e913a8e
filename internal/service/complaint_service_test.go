package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type staticSnapshots struct {
	table *lifecycle.PolicyTable
	rules *lifecycle.RuleSet
}

func (s staticSnapshots) PolicyTable(context.Context) (*lifecycle.PolicyTable, error) {
	return s.table, nil
}

func (s staticSnapshots) RuleSet(context.Context) (*lifecycle.RuleSet, error) {
	return s.rules, nil
}

type fixture struct {
	store      *memory.Store
	svc        *ComplaintService
	dispatcher events.Dispatcher
	published  *[]events.Event
	clock      *time.Time
}

func newFixture(t *testing.T, policies []domain.SLAPolicy, rules []domain.RoutingRule) fixture {
	t.Helper()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	var (
		mu        sync.Mutex
		published []events.Event
	)
	events.SubscribeAll(dispatcher, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
		return nil
	})
	clock := t0
	svc := NewComplaintService(ComplaintDependencies{
		ComplaintRepo: store.Complaints(),
		TimelineRepo:  store.Timeline(),
		UserRepo:      store.Users(),
		Snapshots:     staticSnapshots{table: lifecycle.NewPolicyTable(policies), rules: lifecycle.NewRuleSet(rules)},
		Dispatcher:    dispatcher,
		Clock:         func() time.Time { return clock },
	})
	return fixture{store: store, svc: svc, dispatcher: dispatcher, published: &published, clock: &clock}
}

func (f fixture) user(t *testing.T, email string, role domain.UserRole) *domain.User {
	t.Helper()
	user := &domain.User{Name: email, Email: email, Role: role, Status: domain.UserStatusActive}
	require.NoError(t, f.store.Users().Create(context.Background(), user))
	return user
}

func (f fixture) create(t *testing.T, creator string, priority domain.ComplaintPriority) *domain.Complaint {
	t.Helper()
	res, err := f.svc.CreateComplaint(context.Background(), creator, ComplaintCreateInput{
		Title:       "Broken projector",
		Description: "Room 101 projector does not turn on",
		Category:    "Facilities",
		Location:    "Block A",
		Priority:    priority,
	})
	require.NoError(t, err)
	return res.Complaint
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func eventTypes(list []domain.TimelineEvent) []domain.TimelineEventType {
	out := make([]domain.TimelineEventType, 0, len(list))
	for _, e := range list {
		out = append(out, e.EventType)
	}
	return out
}

func TestCreateComplaint_Routing(t *testing.T) {
	rules := []domain.RoutingRule{
		{ID: "1", Name: "facilities", Order: 1, Category: strPtr("Facilities"), UserID: strPtr("u-42"), IsActive: true},
		{ID: "2", Name: "hostel", Order: 2, Location: strPtr("Hostel"), RoleID: strPtr("warden"), IsActive: true},
	}
	tests := map[string]struct {
		category    string
		location    string
		wantKind    lifecycle.TargetKind
		wantTypes   []domain.TimelineEventType
		wantAssign  *string
		wantPending *string
	}{
		"user target": {
			category:   "Facilities",
			wantKind:   lifecycle.TargetUser,
			wantTypes:  []domain.TimelineEventType{domain.TimelineCreated, domain.TimelineAssigned},
			wantAssign: strPtr("u-42"),
		},
		"role target": {
			category:    "Food",
			location:    "Hostel",
			wantKind:    lifecycle.TargetRole,
			wantTypes:   []domain.TimelineEventType{domain.TimelineCreated, domain.TimelineRoutedToRole},
			wantPending: strPtr("warden"),
		},
		"no match": {
			category:  "Food",
			location:  "Library",
			wantKind:  lifecycle.TargetNone,
			wantTypes: []domain.TimelineEventType{domain.TimelineCreated},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil, rules)
			res, err := f.svc.CreateComplaint(context.Background(), "student-1", ComplaintCreateInput{
				Title:       "Issue",
				Description: "Details",
				Category:    tt.category,
				Location:    tt.location,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, res.Target.Kind)
			assert.Equal(t, tt.wantAssign, res.Complaint.AssignedTo)
			assert.Equal(t, tt.wantPending, res.Complaint.PendingRoleID)
			assert.Equal(t, domain.ComplaintStatusNew, res.Complaint.Status)
			assert.Equal(t, domain.ComplaintPriorityMedium, res.Complaint.Priority)
			assert.Equal(t, t0.Add(4320*time.Minute), res.Complaint.DueDate)
			assert.Equal(t, 4320, res.Complaint.SLAMinutes)
			assert.Regexp(t, `^CMP-[0-9A-F]{8}$`, res.Complaint.ReferenceKey)

			timeline, err := f.store.Timeline().ListByComplaint(context.Background(), res.Complaint.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTypes, eventTypes(timeline))
			assert.Len(t, *f.published, len(tt.wantTypes))
		})
	}
}

func TestCreateComplaint_UsesStoredPolicy(t *testing.T) {
	f := newFixture(t, []domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityUrgent, ResolutionMinutes: 120, IsActive: true, CreatedAt: t0.Add(-time.Hour)},
	}, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityUrgent)
	assert.Equal(t, t0.Add(2*time.Hour), c.DueDate)
	assert.Equal(t, 120, c.SLAMinutes)
}

func TestCreateComplaint_Validation(t *testing.T) {
	f := newFixture(t, nil, nil)
	tests := map[string]struct {
		creator string
		input   ComplaintCreateInput
	}{
		"missing title":    {creator: "s", input: ComplaintCreateInput{Description: "d"}},
		"missing body":     {creator: "s", input: ComplaintCreateInput{Title: "t"}},
		"missing creator":  {input: ComplaintCreateInput{Title: "t", Description: "d"}},
		"unknown priority": {creator: "s", input: ComplaintCreateInput{Title: "t", Description: "d", Priority: "Critical"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateComplaint(context.Background(), tt.creator, tt.input)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestTransition(t *testing.T) {
	f := newFixture(t, nil, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityHigh)

	res, err := f.svc.Transition(context.Background(), c.ID, "InProgress", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusInProgress, res.Complaint.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Status changed from New to In Progress", res.Events[0].Description)

	*f.clock = t0.Add(time.Hour)
	res, err = f.svc.Transition(context.Background(), c.ID, "Resolved", "staff-1")
	require.NoError(t, err)
	require.NotNil(t, res.Complaint.ResolvedAt)
	assert.Equal(t, t0.Add(time.Hour), *res.Complaint.ResolvedAt)
	assert.Equal(t, strPtr("staff-1"), res.Complaint.ResolvedBy)

	_, err = f.svc.Transition(context.Background(), c.ID, "Reopened", "staff-1")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Transition(context.Background(), "missing", "Closed", "staff-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	timeline, err := f.svc.Timeline(context.Background(), Actor{ID: "staff-1", Role: domain.UserRoleStaff}, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.TimelineEventType{
		domain.TimelineCreated, domain.TimelineStatusChanged, domain.TimelineStatusChanged,
	}, eventTypes(timeline))
}

func TestUpdateDetails(t *testing.T) {
	f := newFixture(t, nil, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityLow)
	owner := Actor{ID: "student-1", Role: domain.UserRoleStudent}

	res, err := f.svc.UpdateDetails(context.Background(), owner, c.ID, ComplaintUpdateInput{Title: strPtr(c.Title)})
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	res, err = f.svc.UpdateDetails(context.Background(), owner, c.ID, ComplaintUpdateInput{Location: strPtr("Block B")})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.TimelineUpdated, res.Events[0].EventType)
	assert.Equal(t, "Block B", res.Complaint.Location)

	_, err = f.svc.UpdateDetails(context.Background(), Actor{ID: "student-2", Role: domain.UserRoleStudent}, c.ID, ComplaintUpdateInput{Location: strPtr("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.svc.UpdateDetails(context.Background(), owner, c.ID, ComplaintUpdateInput{Title: strPtr("  ")})
	assert.True(t, apperrors.IsValidation(err))
}

func TestUpdatePriority_KeepsDueDate(t *testing.T) {
	f := newFixture(t, nil, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityLow)

	res, err := f.svc.UpdatePriority(context.Background(), c.ID, domain.ComplaintPriorityUrgent, "staff-1")
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "Priority changed from Low to Urgent", res.Events[0].Description)
	assert.Equal(t, c.DueDate, res.Complaint.DueDate)

	res, err = f.svc.UpdatePriority(context.Background(), c.ID, domain.ComplaintPriorityUrgent, "staff-1")
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	_, err = f.svc.UpdatePriority(context.Background(), c.ID, "Critical", "staff-1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAssign(t *testing.T) {
	f := newFixture(t, nil, []domain.RoutingRule{
		{ID: "1", Name: "all", Order: 1, RoleID: strPtr("it-desk"), IsActive: true},
	})
	staff := f.user(t, "staff@uni.edu", domain.UserRoleStaff)
	student := f.user(t, "student@uni.edu", domain.UserRoleStudent)
	c := f.create(t, student.ID, domain.ComplaintPriorityMedium)
	require.NotNil(t, c.PendingRoleID)

	res, err := f.svc.Assign(context.Background(), c.ID, staff.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, &staff.ID, res.Complaint.AssignedTo)
	assert.Nil(t, res.Complaint.PendingRoleID)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "it-desk", res.Events[0].Metadata["role_id"])

	res, err = f.svc.Assign(context.Background(), c.ID, staff.ID, "admin-1")
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	_, err = f.svc.Assign(context.Background(), c.ID, student.ID, "admin-1")
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Assign(context.Background(), c.ID, "nobody", "admin-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestEscalate(t *testing.T) {
	f := newFixture(t, nil, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityMedium)

	res, err := f.svc.Escalate(context.Background(), c.ID, "staff-1")
	require.NoError(t, err)
	assert.True(t, res.Complaint.IsEscalated)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "manual", res.Events[0].Metadata["trigger"])

	res, err = f.svc.Escalate(context.Background(), c.ID, "staff-1")
	require.NoError(t, err)
	assert.Empty(t, res.Events)

	closed := f.create(t, "student-1", domain.ComplaintPriorityMedium)
	_, err = f.svc.Transition(context.Background(), closed.ID, "Closed", "staff-1")
	require.NoError(t, err)
	_, err = f.svc.Escalate(context.Background(), closed.ID, "staff-1")
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteAndVisibility(t *testing.T) {
	f := newFixture(t, nil, nil)
	mine := f.create(t, "student-1", domain.ComplaintPriorityMedium)
	f.create(t, "student-2", domain.ComplaintPriorityMedium)

	owner := Actor{ID: "student-1", Role: domain.UserRoleStudent}
	other := Actor{ID: "student-2", Role: domain.UserRoleStudent}
	staff := Actor{ID: "staff-1", Role: domain.UserRoleStaff}

	_, err := f.svc.Get(context.Background(), other, mine.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	list, err := f.svc.List(context.Background(), owner, ComplaintListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.List(context.Background(), staff, ComplaintListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.Delete(context.Background(), other, mine.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	_, err = f.svc.Delete(context.Background(), staff, mine.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	res, err := f.svc.Delete(context.Background(), owner, mine.ID)
	require.NoError(t, err)
	assert.True(t, res.Complaint.IsDeleted)

	_, err = f.svc.Get(context.Background(), owner, mine.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestApplySweep(t *testing.T) {
	f := newFixture(t, []domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityUrgent, ResolutionMinutes: 240, EscalationMinutes: intPtr(60), IsActive: true, CreatedAt: t0.Add(-time.Hour)},
	}, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityUrgent)
	table, err := f.svc.SweepPolicyTable(context.Background())
	require.NoError(t, err)

	outcome, err := f.svc.ApplySweep(context.Background(), *c, table, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SweepOutcome{}, outcome)

	outcome, err = f.svc.ApplySweep(context.Background(), *c, table, t0.Add(61*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SweepOutcome{Escalated: true}, outcome)

	outcome, err = f.svc.ApplySweep(context.Background(), *c, table, t0.Add(241*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, SweepOutcome{Overdue: true}, outcome)

	stored, err := f.store.Complaints().GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsOverdue)
	assert.True(t, stored.IsEscalated)
}

func TestApplySweep_ConcurrentSingleEvent(t *testing.T) {
	f := newFixture(t, []domain.SLAPolicy{
		{ID: "1", Priority: domain.ComplaintPriorityHigh, ResolutionMinutes: 60, EscalationMinutes: intPtr(30), IsActive: true, CreatedAt: t0.Add(-time.Hour)},
	}, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityHigh)
	table, err := f.svc.SweepPolicyTable(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplySweep(context.Background(), *c, table, t0.Add(2*time.Hour))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	timeline, err := f.store.Timeline().ListByComplaint(context.Background(), c.ID)
	require.NoError(t, err)
	counts := map[domain.TimelineEventType]int{}
	for _, e := range timeline {
		counts[e.EventType]++
	}
	assert.Equal(t, 1, counts[domain.TimelineOverdue])
	assert.Equal(t, 1, counts[domain.TimelineEscalated])
}

func TestApplySweep_ResolvedIsFrozen(t *testing.T) {
	f := newFixture(t, nil, nil)
	c := f.create(t, "student-1", domain.ComplaintPriorityUrgent)
	res, err := f.svc.Transition(context.Background(), c.ID, "Resolved", "staff-1")
	require.NoError(t, err)

	outcome, err := f.svc.ApplySweep(context.Background(), *res.Complaint, lifecycle.DefaultPolicyTable(), t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepOutcome{}, outcome)

	candidates, err := f.svc.SweepCandidates(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestComputeDueDate(t *testing.T) {
	f := newFixture(t, nil, nil)
	due, err := f.svc.ComputeDueDate(context.Background(), domain.ComplaintPriorityUrgent, t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(4*time.Hour), due.DueDate)
	assert.Equal(t, lifecycle.PolicySourceDefault, due.Policy.Source)
	assert.Nil(t, due.ResponseDue)
}
