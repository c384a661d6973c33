package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/acme/callbridge/internal/api/handlers"
	"github.com/acme/callbridge/internal/config"
	"github.com/acme/callbridge/internal/infra/db"
	"github.com/acme/callbridge/internal/infra/redis"
	"github.com/acme/callbridge/internal/queue"
	"github.com/acme/callbridge/internal/repository"
	pgrepo "github.com/acme/callbridge/internal/repository/postgres"
	scyllarepo "github.com/acme/callbridge/internal/repository/scylla"
	callsvc "github.com/acme/callbridge/internal/service/call"
	"github.com/acme/callbridge/internal/service/idempotency"
	"github.com/acme/callbridge/internal/telephony"
	telephonyMock "github.com/acme/callbridge/internal/telephony/mock"
	"github.com/acme/callbridge/internal/telephony/rest"
	"github.com/acme/callbridge/internal/telephony/twilio"
	"github.com/acme/callbridge/pkg/logger"
)

const statusTopicPartitions = 12

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		reposOnce    sync.Once
		repositories *repositories

		servicesOnce sync.Once
		services     *services
		servicesErr  error
		publisher    *queue.StatusPublisher
	}
}

type repositories struct {
	Registry  repository.CallRegistry
	Snapshots repository.SnapshotStore
}

type services struct {
	Call        *callsvc.Service
	Idempotency *idempotency.Store
	Provider    telephony.Provider
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	container := &Container{Config: cfg, Logger: lg}

	if container.Postgres, err = db.NewPostgres(ctx, cfg.Postgres); err != nil {
		return nil, container.abort(ctx, fmt.Errorf("bootstrap postgres: %w", err))
	}
	if container.Scylla, err = db.NewScylla(cfg.Scylla); err != nil {
		return nil, container.abort(ctx, fmt.Errorf("bootstrap scylla: %w", err))
	}
	if container.Redis, err = redis.NewClient(ctx, cfg.Redis); err != nil {
		return nil, container.abort(ctx, fmt.Errorf("bootstrap redis: %w", err))
	}
	if container.Kafka, err = queue.NewKafka(cfg.Kafka); err != nil {
		return nil, container.abort(ctx, fmt.Errorf("bootstrap kafka: %w", err))
	}

	return container, nil
}

// NewProvider selects the telephony provider named in cfg.
func NewProvider(cfg config.ProviderConfig, lg *logger.Logger) (telephony.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "twilio":
		transport, err := rest.New(cfg, rest.WithLogger(lg))
		if err != nil {
			return nil, err
		}
		return twilio.NewProvider(transport), nil
	case "mock":
		return telephonyMock.NewProvider(0), nil
	default:
		return nil, fmt.Errorf("unknown telephony provider %q", cfg.Name)
	}
}

func (c *Container) abort(ctx context.Context, err error) error {
	_ = c.Close(ctx)
	return err
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.components.reposOnce.Do(func() {
		c.components.repositories = &repositories{
			Registry:  pgrepo.NewCallRegistry(c.Postgres.DB()),
			Snapshots: scyllarepo.NewSnapshotStore(c.Scylla.Session()),
		}
	})
	return c.components.repositories
}

// Services exposes initialized services. The telephony provider is only built
// here, so processes that never place calls need no provider credentials.
func (c *Container) Services() (*services, error) {
	c.components.servicesOnce.Do(func() {
		provider, err := NewProvider(c.Config.Provider, c.Logger)
		if err != nil {
			c.components.servicesErr = fmt.Errorf("bootstrap provider: %w", err)
			return
		}

		repos := c.Repositories()
		publisher := queue.NewStatusPublisher(c.Kafka, c.Config.Kafka.StatusTopic)
		guard := idempotency.NewStore(c.Redis.Inner(), c.Config.Idempotency.TTL, c.Config.Idempotency.LockTTL, c.Config.Idempotency.KeyPrefix)

		c.components.publisher = publisher
		c.components.services = &services{
			Call:        callsvc.NewService(provider, guard, publisher, repos.Registry, repos.Snapshots, c.Logger),
			Idempotency: guard,
			Provider:    provider,
		}
	})
	return c.components.services, c.components.servicesErr
}

// StatusReader opens a consumer on the status topic for the worker group.
func (c *Container) StatusReader() *kafka.Reader {
	return c.Kafka.NewReader(c.Config.Kafka.StatusTopic, c.Config.Kafka.ConsumerGroupID)
}

// HandlerSet builds HTTP handlers with dependencies.
func (c *Container) HandlerSet() (*handlers.HandlerSet, error) {
	svcs, err := c.Services()
	if err != nil {
		return nil, err
	}
	checks := map[string]handlers.Pinger{
		"postgres": c.Postgres,
		"scylla":   c.Scylla,
		"redis":    c.Redis,
	}
	return handlers.NewHandlerSet(svcs.Call, checks, c.Logger), nil
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("status publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.StatusTopic}, statusTopicPartitions, 1)
}
