package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	cliBilling "github.com/felixgeelhaar/memberly/adapter/cli/billing"
	"github.com/felixgeelhaar/memberly/internal/app"
	"github.com/felixgeelhaar/memberly/pkg/config"
	"github.com/felixgeelhaar/memberly/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// In development without .env, use defaults
		slog.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development", LogLevel: "info"}
	}

	logCfg := observability.DefaultLogConfig()
	logCfg.Level = observability.LogLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	logger := observability.NewLogger(logCfg)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		// Commands report the missing database themselves.
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
		cli.SetApp(nil)
	} else {
		defer container.Close()

		// Cancellation emails go out from the worker unless this process
		// delivers outbox messages itself.
		if cfg.OutboxProcessorEnabled && cfg.RabbitMQURL == "" {
			go func() { _ = container.OutboxProcessor.Run(ctx) }()
		}

		cli.SetApp(&cli.App{
			ContractPlan:        container.ContractPlanHandler,
			CancelSubscription:  container.CancelSubscriptionHandler,
			ArchiveSubscription: container.ArchiveSubscriptionHandler,
			GetUserPlan:         container.GetUserPlanHandler,
			Webhooks:            container.WebhookDispatcher,
			Sweep:               container.SweepWorker,
			Plans:               container.PlanCatalog,
			Currency:            cfg.BillingCurrency,
		})
	}

	cli.AddCommand(cliBilling.Cmd)
	cli.Execute(ctx)
}
