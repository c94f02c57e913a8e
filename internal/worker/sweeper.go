package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/service"
)

// ErrSweepInProgress is returned when another instance holds the sweep lease.
var ErrSweepInProgress = errors.New("sweep already running elsewhere")

// SweepTarget is the complaint store side of a sweep pass.
type SweepTarget interface {
	SweepPolicyTable(ctx context.Context) (*lifecycle.PolicyTable, error)
	SweepCandidates(ctx context.Context, afterID string, limit int) ([]domain.Complaint, error)
	ApplySweep(ctx context.Context, c domain.Complaint, table *lifecycle.PolicyTable, now time.Time) (service.SweepOutcome, error)
}

// Locker is a single-holder lease shared by sweeper instances.
type Locker interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepResult tallies one pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Overdue   int `json:"overdue"`
	Escalated int `json:"escalated"`
	Failures  int `json:"failures"`
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	Target  SweepTarget
	Locker  Locker
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Config  config.SweeperConfig
	Clock   func() time.Time
}

// Sweeper periodically flags overdue complaints and escalates stale ones.
type Sweeper struct {
	target  SweepTarget
	locker  Locker
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     config.SweeperConfig
	now     func() time.Time
}

// NewSweeper builds a sweeper. A nil Locker runs every pass unconditionally.
func NewSweeper(deps SweeperDependencies) *Sweeper {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	cfg := deps.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Sweeper{
		target:  deps.Target,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		logger:  logger.Named("sweeper"),
		cfg:     cfg,
		now:     clock,
	}
}

// Run sweeps once immediately and then on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.cfg.Interval()
	s.logger.Info("sweeper started", zap.Duration("interval", interval), zap.Int("batch_size", s.cfg.BatchSize))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, ErrSweepInProgress) {
				s.logger.Debug("sweep skipped, lease held elsewhere")
			} else {
				s.logger.Error("sweep pass failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce takes the lease, if any, and sweeps at the current clock.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if s.locker != nil {
		acquired, err := s.locker.TryAcquire(ctx)
		if err != nil {
			return SweepResult{}, err
		}
		if !acquired {
			return SweepResult{}, ErrSweepInProgress
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lease", zap.Error(err))
			}
		}()
	}
	return s.SweepOnce(ctx, s.now())
}

// SweepOnce evaluates every open complaint at now against a single policy snapshot.
// Candidates are paged by id. A failing complaint is logged and counted without
// stopping the pass. Cancellation lets the current batch finish and starts no new one.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(started)) }()

	var result SweepResult
	table, err := s.target.SweepPolicyTable(ctx)
	if err != nil {
		return result, err
	}

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("sweep interrupted", zap.String("after_id", afterID), zap.Int("scanned", result.Scanned))
			return result, err
		}
		batch, err := s.target.SweepCandidates(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}
		s.sweepBatch(context.WithoutCancel(ctx), batch, table, now, &result)
		afterID = batch[len(batch)-1].ID
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	if result.Overdue > 0 || result.Escalated > 0 || result.Failures > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("overdue", result.Overdue),
			zap.Int("escalated", result.Escalated),
			zap.Int("failures", result.Failures))
	}
	return result, nil
}

func (s *Sweeper) sweepBatch(ctx context.Context, batch []domain.Complaint, table *lifecycle.PolicyTable, now time.Time, result *SweepResult) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, complaint := range batch {
		g.Go(func() error {
			outcome, err := s.target.ApplySweep(ctx, complaint, table, now)

			mu.Lock()
			defer mu.Unlock()
			result.Scanned++
			if err != nil {
				result.Failures++
				s.metrics.RecordSweepFailure()
				s.logger.Error("sweep complaint failed", zap.String("complaint_id", complaint.ID), zap.Error(err))
				return nil
			}
			if outcome.Overdue {
				result.Overdue++
				s.metrics.RecordSweepFlag("overdue")
			}
			if outcome.Escalated {
				result.Escalated++
				s.metrics.RecordSweepFlag("escalated")
			}
			return nil
		})
	}
	_ = g.Wait()
}
