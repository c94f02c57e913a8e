// Package cache keeps short-lived Redis copies of the policy and rule tables and
// provides the leader lock that keeps a single sweeper active across replicas.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
)

// Keys share a hash tag so the generation check and the write hit one slot.
const (
	generationKey = "complaint-service:{snapshot}:generation"
	policiesKey   = "complaint-service:{snapshot}:sla_policies"
	rulesKey      = "complaint-service:{snapshot}:routing_rules"
)

// setIfGenerationScript stores a snapshot only while the generation it was loaded
// under is still current. A missing generation key counts as "0".
var setIfGenerationScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if not current then
		current = "0"
	end
	if current ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
	return 1
`)

// PolicyLister loads SLA policy rows.
type PolicyLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.SLAPolicy, error)
}

// RuleLister loads routing rule rows.
type RuleLister interface {
	List(ctx context.Context, activeOnly bool) ([]domain.RoutingRule, error)
}

// Snapshots builds immutable policy and rule snapshots, reading through Redis when
// a client and a positive TTL are configured. Redis failures fall back to the source.
//
// Cached entries are keyed by a generation counter that Invalidate bumps. A reader
// that listed rows before an invalidation cannot publish them afterwards, so edits
// reach every creation that starts after Invalidate returns.
type Snapshots struct {
	policies PolicyLister
	rules    RuleLister
	client   *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
}

// NewSnapshots wires the snapshot provider. client may be nil.
func NewSnapshots(policies PolicyLister, rules RuleLister, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Snapshots {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshots{
		policies: policies,
		rules:    rules,
		client:   client,
		ttl:      ttl,
		logger:   logger,
	}
}

// PolicyTable returns a snapshot of the active SLA policies.
func (s *Snapshots) PolicyTable(ctx context.Context) (*lifecycle.PolicyTable, error) {
	var rows []domain.SLAPolicy
	generation, cacheable := s.generation(ctx)
	key := snapshotKey(policiesKey, generation)
	if cacheable && s.readCached(ctx, key, &rows) {
		return lifecycle.NewPolicyTable(rows), nil
	}
	rows, err := s.policies.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load sla policies: %w", err)
	}
	if cacheable {
		s.writeCached(ctx, generation, key, rows)
	}
	return lifecycle.NewPolicyTable(rows), nil
}

// RuleSet returns a snapshot of the active routing rules.
func (s *Snapshots) RuleSet(ctx context.Context) (*lifecycle.RuleSet, error) {
	var rows []domain.RoutingRule
	generation, cacheable := s.generation(ctx)
	key := snapshotKey(rulesKey, generation)
	if cacheable && s.readCached(ctx, key, &rows) {
		return lifecycle.NewRuleSet(rows), nil
	}
	rows, err := s.rules.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load routing rules: %w", err)
	}
	if cacheable {
		s.writeCached(ctx, generation, key, rows)
	}
	return lifecycle.NewRuleSet(rows), nil
}

// Invalidate starts a new generation so the next read goes to the source.
// Entries of older generations are left to expire.
func (s *Snapshots) Invalidate(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}
	if err := s.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}
	return nil
}

func (s *Snapshots) generation(ctx context.Context) (int64, bool) {
	if !s.enabled() {
		return 0, false
	}
	generation, err := s.client.Get(ctx, generationKey).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		s.logger.Warn("snapshot generation read failed", zap.Error(err))
		return 0, false
	}
	return generation, true
}

func snapshotKey(base string, generation int64) string {
	return base + ":" + strconv.FormatInt(generation, 10)
}

func (s *Snapshots) enabled() bool {
	return s.client != nil && s.ttl > 0
}

func (s *Snapshots) readCached(ctx context.Context, key string, dest any) bool {
	if !s.enabled() {
		return false
	}
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("snapshot cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.logger.Warn("snapshot cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Snapshots) writeCached(ctx context.Context, generation int64, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("snapshot cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	stored, err := setIfGenerationScript.Run(ctx, s.client,
		[]string{generationKey, key},
		strconv.FormatInt(generation, 10), payload, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if stored == 0 {
		s.logger.Debug("snapshot superseded before write", zap.String("key", key))
	}
}
