// Package app wires the billing engine's dependencies.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/application/consumers"
	"github.com/felixgeelhaar/memberly/internal/billing/application/queries"
	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/billing/application/workers"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/billing/infrastructure/cache"
	"github.com/felixgeelhaar/memberly/internal/billing/infrastructure/gateway"
	"github.com/felixgeelhaar/memberly/internal/billing/infrastructure/lock"
	"github.com/felixgeelhaar/memberly/internal/billing/infrastructure/notify"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/memberly/pkg/config"
	"github.com/felixgeelhaar/memberly/pkg/observability"
	"github.com/redis/go-redis/v9"

	// Database drivers register themselves with the database package.
	_ "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database/sqlite"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Repositories (use interfaces for driver-agnostic access)
	SubscriptionRepo domain.SubscriptionRepository
	PlanCatalog      domain.PlanCatalog
	WebhookLedger    domain.WebhookLedger
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Collaborators
	Locker  application.SubscriptionLocker
	Gateway domain.PaymentGateway
	Mailer  application.Mailer

	// Publishers
	EventPublisher eventbus.Publisher
	inProcessBus   *eventbus.InProcessBus

	// Billing Command Handlers
	ContractPlanHandler         *commands.ContractPlanHandler
	CancelSubscriptionHandler   *commands.CancelSubscriptionHandler
	ArchiveSubscriptionHandler  *commands.ArchiveSubscriptionHandler
	CloseDueSubscriptionHandler *commands.CloseDueSubscriptionHandler

	// Webhook Processors
	ProcessAuthorizationHandler *commands.ProcessAuthorizationHandler
	ProcessPaymentHandler       *commands.ProcessPaymentHandler
	ProcessInvoiceHandler       *commands.ProcessInvoiceHandler
	WebhookDispatcher           *webhooks.Dispatcher

	// Billing Query Handlers
	GetUserPlanHandler *queries.GetUserPlanHandler

	// Workers and consumers
	SweepWorker               *workers.SweepWorker
	CancellationEmailConsumer *consumers.CancellationEmailConsumer
	OutboxProcessor           *outbox.Processor

	Health *observability.HealthRegistry
}

// NewContainer creates and wires all dependencies. Redis, RabbitMQ and the
// gateway credentials are optional outside production.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	logger = observability.OrDefault(logger)
	c := &Container{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthRegistry(),
	}

	conn, err := database.NewConnection(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy, conn.Ping))
	logger.Info("connected to database", "driver", c.DBDriver)

	if err := c.wire(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wire(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger

	factory := NewRepositoryFactory(c.DBConn)
	if err := factory.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	var err error
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		return err
	}
	if c.PlanCatalog, err = factory.PlanCatalog(); err != nil {
		return err
	}
	if c.WebhookLedger, err = factory.WebhookLedger(); err != nil {
		return err
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return err
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return err
	}

	if err := c.connectRedis(ctx); err != nil {
		return err
	}
	if c.RedisClient != nil {
		c.Locker = lock.NewRedisLocker(c.RedisClient, cfg.BillingLockTTL, logger)
		c.PlanCatalog = cache.NewPlanCatalog(c.PlanCatalog, c.RedisClient, cfg.BillingPlanCacheTTL, logger)
	} else {
		c.Locker = lock.NewLocalLocker()
	}

	client, err := gateway.NewHTTPClient(cfg.GatewayConfig(), logger)
	switch {
	case err == nil:
		c.Gateway = client
	case cfg.IsProduction():
		return fmt.Errorf("failed to configure payment gateway: %w", err)
	default:
		logger.Warn("payment gateway not configured, gateway calls will fail", "error", err)
		c.Gateway = unconfiguredGateway{}
	}
	c.Mailer = notify.NewLogMailer(logger)

	deps := commands.Dependencies{
		Subscriptions:  c.SubscriptionRepo,
		Ledger:         c.WebhookLedger,
		Outbox:         c.OutboxRepo,
		UnitOfWork:     c.UnitOfWork,
		Locker:         c.Locker,
		Gateway:        c.Gateway,
		RetryPolicy:    domain.NewRetryPolicy(cfg.BillingMaxPaymentRetries),
		GatewayTimeout: cfg.GatewayTimeout,
		Logger:         logger,
	}

	// Create billing command handlers
	c.ContractPlanHandler = commands.NewContractPlanHandler(deps, c.PlanCatalog, cfg.BillingCheckoutTTL)
	c.CancelSubscriptionHandler = commands.NewCancelSubscriptionHandler(deps)
	c.ArchiveSubscriptionHandler = commands.NewArchiveSubscriptionHandler(deps)
	c.CloseDueSubscriptionHandler = commands.NewCloseDueSubscriptionHandler(deps)

	// Create webhook processors
	c.ProcessAuthorizationHandler = commands.NewProcessAuthorizationHandler(deps)
	c.ProcessPaymentHandler = commands.NewProcessPaymentHandler(deps)
	c.ProcessInvoiceHandler = commands.NewProcessInvoiceHandler(deps)
	c.WebhookDispatcher = webhooks.NewDispatcher(webhooks.Processors{
		Authorization: c.ProcessAuthorizationHandler,
		Payment:       c.ProcessPaymentHandler,
		Invoice:       c.ProcessInvoiceHandler,
	}, logger)

	// Create billing query handlers
	c.GetUserPlanHandler = queries.NewGetUserPlanHandler(c.SubscriptionRepo, c.PlanCatalog)

	c.SweepWorker = workers.NewSweepWorker(c.SubscriptionRepo, c.CloseDueSubscriptionHandler, workers.SweepWorkerConfig{
		Schedule:  cfg.BillingSweepSchedule,
		BatchSize: cfg.BillingSweepBatchSize,
	}, logger)
	c.CancellationEmailConsumer = consumers.NewCancellationEmailConsumer(
		c.Mailer, c.WebhookLedger, c.UnitOfWork, cfg.MailFrom, logger)

	if err := c.connectPublisher(); err != nil {
		return err
	}
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		MaxRetries:       cfg.OutboxMaxRetries,
		RetryBackoffBase: outbox.DefaultProcessorConfig().RetryBackoffBase,
		RetryBackoffMax:  outbox.DefaultProcessorConfig().RetryBackoffMax,
		RetentionDays:    cfg.OutboxRetentionDays,
		CleanupInterval:  cfg.OutboxCleanupInterval,
	}, logger)

	return nil
}

// connectRedis connects when REDIS_URL is set. Outside production a failure
// falls back to process-local locking.
func (c *Container) connectRedis(ctx context.Context) error {
	cfg, logger := c.Config, c.Logger
	if cfg.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		if cfg.IsProduction() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		logger.Warn("invalid Redis URL, using local locks", "error", err)
		return nil
	}

	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		if cfg.IsProduction() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Warn("Redis not available, using local locks", "error", err)
		return nil
	}

	c.RedisClient = redisClient
	c.Health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }))
	logger.Info("connected to Redis")
	return nil
}

// connectPublisher publishes to RabbitMQ when configured and otherwise
// delivers outbox messages to in-process consumers.
func (c *Container) connectPublisher() error {
	cfg, logger := c.Config, c.Logger
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(c.rabbitMQConfig())
		if err == nil {
			c.EventPublisher = publisher
			logger.Info("connected to RabbitMQ")
			return nil
		}
		if cfg.IsProduction() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Warn("RabbitMQ not available, dispatching events in-process", "error", err)
	}

	c.inProcessBus = eventbus.NewInProcessBus(logger)
	c.inProcessBus.RegisterConsumer(c.CancellationEmailConsumer)
	c.EventPublisher = c.inProcessBus
	return nil
}

func (c *Container) rabbitMQConfig() eventbus.RabbitMQConfig {
	return eventbus.RabbitMQConfig{
		URL:       c.Config.RabbitMQURL,
		QueueName: c.Config.RabbitMQQueue,
		Logger:    c.Logger,
	}
}

// NewEventConsumer returns the consumer the worker runs. With RabbitMQ it
// opens a dedicated connection; in-process delivery happens inside the
// outbox processor and the returned bus only waits for shutdown.
func (c *Container) NewEventConsumer() (eventbus.Consumer, error) {
	if c.inProcessBus != nil {
		return c.inProcessBus, nil
	}
	consumer, err := eventbus.NewRabbitMQConsumer(c.rabbitMQConfig(), nil)
	if err != nil {
		return nil, err
	}
	consumer.RegisterConsumer(c.CancellationEmailConsumer)
	return consumer, nil
}

// Close releases all resources.
func (c *Container) Close() error {
	var errs []error
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event publisher: %w", err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Redis: %w", err))
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.Logger.Info("database connection closed")
		}
	}
	return errors.Join(errs...)
}
