// Package app assembles the repositories, services and workers shared by the
// HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/cache"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/persistence"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/worker"
)

// Container holds the wired object graph.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Kafka    *events.KafkaPublisher

	Users      repository.UserRepository
	Snapshots  *cache.Snapshots
	Dispatcher events.Dispatcher

	Auth          *service.AuthService
	Complaints    *service.ComplaintService
	Policies      *service.PolicyService
	Notifications *service.NotificationService
	Sweeper       *worker.Sweeper
	Middleware    *auth.AuthMiddleware
}

// Options tune Build for the caller.
type Options struct {
	// SkipMigrations leaves the schema untouched even when configured to migrate.
	SkipMigrations bool
}

type repositories struct {
	complaints repository.ComplaintRepository
	timeline   repository.TimelineRepository
	users      repository.UserRepository
	policies   repository.SLAPolicyRepository
	rules      repository.RoutingRuleRepository
}

// Build connects to the configured stores and wires every service. Without a
// Postgres DSN the process runs on the in-memory store.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	repos, err := c.openRepositories(ctx, opts)
	if err != nil {
		c.Close()
		return nil, err
	}

	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	}
	redisClient := c.Redis.Handle()
	if redisClient != nil {
		if err := c.Redis.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, snapshot cache and sweep lease disabled", zap.Error(err))
			redisClient = nil
		}
	}

	c.Users = repos.users
	c.Snapshots = cache.NewSnapshots(repos.policies, repos.rules, redisClient, cfg.Lifecycle.SnapshotCacheTTL(), logger)
	c.Dispatcher = events.NewInMemoryDispatcher()

	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		c.Kafka = publisher
	}
	c.Notifications = service.NewNotificationService(c.Dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(c.Dispatcher, c.Notifications, c.Kafka)

	c.Auth = service.NewAuthService(*cfg, service.AuthDependencies{UserRepo: repos.users})
	c.Middleware = auth.NewAuthMiddleware(c.Auth.TokenManager(), repos.users)
	c.Complaints = service.NewComplaintService(service.ComplaintDependencies{
		ComplaintRepo:     repos.complaints,
		TimelineRepo:      repos.timeline,
		UserRepo:          repos.users,
		Snapshots:         c.Snapshots,
		Dispatcher:        c.Dispatcher,
		Metrics:           c.Metrics,
		Logger:            logger,
		StrictTransitions: cfg.Lifecycle.StrictTransitions,
	})
	c.Policies = service.NewPolicyService(service.PolicyDependencies{
		PolicyRepo:  repos.policies,
		RuleRepo:    repos.rules,
		Invalidator: c.Snapshots,
		Logger:      logger,
	})

	var locker worker.Locker
	if redisClient != nil {
		locker = cache.NewLock(redisClient, "sweep", cfg.Sweeper.LockTTL())
	}
	c.Sweeper = worker.NewSweeper(worker.SweeperDependencies{
		Target:  c.Complaints,
		Locker:  locker,
		Metrics: c.Metrics,
		Logger:  logger,
		Config:  cfg.Sweeper,
	})
	return c, nil
}

func (c *Container) openRepositories(ctx context.Context, opts Options) (repositories, error) {
	cfg := c.Config
	if strings.TrimSpace(cfg.Postgres.DSN) == "" {
		c.Logger.Warn("POSTGRES_DSN not set, using in-memory store")
		store := memory.NewStore()
		return repositories{
			complaints: store.Complaints(),
			timeline:   store.Timeline(),
			users:      store.Users(),
			policies:   store.SLAPolicies(),
			rules:      store.RoutingRules(),
		}, nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, c.Logger)
	if err != nil {
		return repositories{}, fmt.Errorf("connect postgres: %w", err)
	}
	c.Postgres = pg

	if cfg.Postgres.RunMigrations && !opts.SkipMigrations {
		if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, c.Logger); err != nil {
			return repositories{}, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool := pg.PoolHandle()
	return repositories{
		complaints: repository.NewComplaintRepository(pool),
		timeline:   repository.NewTimelineRepository(pool),
		users:      repository.NewUserRepository(pool),
		policies:   repository.NewSLAPolicyRepository(pool),
		rules:      repository.NewRoutingRuleRepository(pool),
	}, nil
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Warn("close kafka writer", zap.Error(err))
		}
	}
	c.Redis.Close()
	c.Postgres.Close()
}
