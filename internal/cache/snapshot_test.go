package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
)

type stubPolicies struct {
	rows  []domain.SLAPolicy
	calls int
}

func (s *stubPolicies) List(_ context.Context, activeOnly bool) ([]domain.SLAPolicy, error) {
	s.calls++
	return s.rows, nil
}

type stubRules struct {
	rows  []domain.RoutingRule
	calls int
}

func (s *stubRules) List(_ context.Context, activeOnly bool) ([]domain.RoutingRule, error) {
	s.calls++
	return s.rows, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func fixtures() (*stubPolicies, *stubRules) {
	escalation := 240
	user := "U1"
	category := "A"
	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	return &stubPolicies{rows: []domain.SLAPolicy{
			{ID: "p1", Priority: domain.ComplaintPriorityUrgent, ResolutionMinutes: 240, EscalationMinutes: &escalation, IsActive: true, CreatedAt: created},
		}}, &stubRules{rows: []domain.RoutingRule{
			{ID: "r1", Order: 1, Category: &category, UserID: &user, IsActive: true, CreatedAt: created},
		}}
}

func TestSnapshots_ReadThroughAndInvalidate(t *testing.T) {
	mr, client := newTestRedis(t)
	policies, rules := fixtures()
	snapshots := NewSnapshots(policies, rules, client, time.Minute, nil)
	ctx := context.Background()

	table, err := snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, policies.calls)
	assert.True(t, mr.Exists(snapshotKey(policiesKey, 0)))

	cached, err := snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, policies.calls)
	assert.Equal(t, table.Lookup(domain.ComplaintPriorityUrgent), cached.Lookup(domain.ComplaintPriorityUrgent))
	require.NotNil(t, cached.Lookup(domain.ComplaintPriorityUrgent).EscalationMinutes)

	set, err := snapshots.RuleSet(ctx)
	require.NoError(t, err)
	_, err = snapshots.RuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rules.calls)
	assert.Equal(t, "U1", set.Route(lifecycle.Attributes{Category: "A"}).UserID)

	require.NoError(t, snapshots.Invalidate(ctx))
	generation, err := mr.Get(generationKey)
	require.NoError(t, err)
	assert.Equal(t, "1", generation)

	_, err = snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, policies.calls)
	assert.True(t, mr.Exists(snapshotKey(policiesKey, 1)))

	_, err = snapshots.RuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.calls)
}

func TestSnapshots_EntriesExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	policies, rules := fixtures()
	snapshots := NewSnapshots(policies, rules, client, 30*time.Second, nil)
	ctx := context.Background()

	_, err := snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)

	_, err = snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, policies.calls)
}

func TestSnapshots_DisabledWithoutRedisOrTTL(t *testing.T) {
	_, client := newTestRedis(t)
	policies, rules := fixtures()
	ctx := context.Background()

	for name, snapshots := range map[string]*Snapshots{
		"nil client": NewSnapshots(policies, rules, nil, time.Minute, nil),
		"zero ttl":   NewSnapshots(policies, rules, client, 0, nil),
	} {
		t.Run(name, func(t *testing.T) {
			before := policies.calls
			_, err := snapshots.PolicyTable(ctx)
			require.NoError(t, err)
			_, err = snapshots.PolicyTable(ctx)
			require.NoError(t, err)
			assert.Equal(t, before+2, policies.calls)
			assert.NoError(t, snapshots.Invalidate(ctx))
		})
	}
}

func TestSnapshots_CorruptEntryFallsBackToSource(t *testing.T) {
	mr, client := newTestRedis(t)
	policies, rules := fixtures()
	require.NoError(t, mr.Set(snapshotKey(policiesKey, 0), "{not json"))

	table, err := NewSnapshots(policies, rules, client, time.Minute, nil).PolicyTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, policies.calls)
	assert.Equal(t, 1, table.Len())
}

// gatedPolicies parks its first List call until release is closed, returning the
// rows it saw on entry.
type gatedPolicies struct {
	mu      sync.Mutex
	rows    []domain.SLAPolicy
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPolicies) List(_ context.Context, _ bool) ([]domain.SLAPolicy, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	rows := append([]domain.SLAPolicy(nil), g.rows...)
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return rows, nil
}

func (g *gatedPolicies) replace(rows []domain.SLAPolicy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rows = rows
}

func TestSnapshots_SlowReaderCannotRepublishSupersededRows(t *testing.T) {
	_, client := newTestRedis(t)
	_, rules := fixtures()
	policies := &gatedPolicies{entered: make(chan struct{}), release: make(chan struct{})}
	snapshots := NewSnapshots(policies, rules, client, time.Minute, nil)
	ctx := context.Background()

	stale := make(chan *lifecycle.PolicyTable, 1)
	go func() {
		table, err := snapshots.PolicyTable(ctx)
		assert.NoError(t, err)
		stale <- table
	}()
	<-policies.entered

	policies.replace([]domain.SLAPolicy{{
		ID:                "p-high",
		Priority:          domain.ComplaintPriorityHigh,
		ResolutionMinutes: 60,
		IsActive:          true,
		CreatedAt:         time.Date(2026, 1, 6, 8, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, snapshots.Invalidate(ctx))
	close(policies.release)

	before := <-stale
	assert.Equal(t, 1440, before.Lookup(domain.ComplaintPriorityHigh).ResolutionMinutes)

	after, err := snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, after.Lookup(domain.ComplaintPriorityHigh).ResolutionMinutes)

	cached, err := snapshots.PolicyTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, cached.Lookup(domain.ComplaintPriorityHigh).ResolutionMinutes)
	assert.Equal(t, 2, policies.calls)
}
