package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep daily at 03:00 UTC.
const DefaultSweepSchedule = "0 3 * * *"

// DefaultSweepBatchSize caps how many rows one query returns.
const DefaultSweepBatchSize = 500

// SweepWorkerConfig configures the sweep worker.
type SweepWorkerConfig struct {
	Schedule  string
	BatchSize int
	// RunOnStart sweeps once before waiting for the first tick.
	RunOnStart bool
}

// DefaultSweepWorkerConfig returns the default configuration.
func DefaultSweepWorkerConfig() SweepWorkerConfig {
	return SweepWorkerConfig{
		Schedule:  DefaultSweepSchedule,
		BatchSize: DefaultSweepBatchSize,
	}
}

// Closer closes one due subscription.
type Closer interface {
	Handle(ctx context.Context, cmd commands.CloseDueSubscriptionCommand) (*commands.WebhookResult, error)
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Cancelled int
	Expired   int
	Skipped   int
	Failed    int
}

// SweepWorker finalizes time-based transitions no webhook will drive.
type SweepWorker struct {
	subscriptions domain.SubscriptionRepository
	closer        Closer
	config        SweepWorkerConfig
	logger        *slog.Logger
	now           func() time.Time
	running       atomic.Bool
}

// NewSweepWorker creates a new sweep worker.
func NewSweepWorker(subscriptions domain.SubscriptionRepository, closer Closer, config SweepWorkerConfig, logger *slog.Logger) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSweepSchedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSweepBatchSize
	}
	return &SweepWorker{
		subscriptions: subscriptions,
		closer:        closer,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// Run schedules the sweep and blocks until ctx is cancelled. Runs never
// overlap: a tick that fires while a sweep is still going is skipped.
func (w *SweepWorker) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(w.config.Schedule, func() { w.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", w.config.Schedule, err)
	}

	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("sweep worker started", "schedule", w.config.Schedule, "batch_size", w.config.BatchSize)

	if w.config.RunOnStart {
		w.sweep(ctx)
	}

	c.Start()
	<-ctx.Done()
	// Wait for a running sweep to finish.
	<-c.Stop().Done()
	w.logger.Info("sweep worker stopped")
	return ctx.Err()
}

// IsRunning returns true if the worker is currently scheduled.
func (w *SweepWorker) IsRunning() bool {
	return w.running.Load()
}

func (w *SweepWorker) sweep(ctx context.Context) {
	report, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "sweep failed", "error", err)
		return
	}
	w.logger.InfoContext(ctx, "sweep finished",
		"cancelled", report.Cancelled,
		"expired", report.Expired,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
}

// RunOnce performs one sweep. Each subscription is closed independently;
// a failure is logged and counted without stopping the run. Only a failed
// query aborts it.
func (w *SweepWorker) RunOnce(ctx context.Context) (SweepReport, error) {
	report := SweepReport{StartedAt: w.now().UTC()}

	due, err := w.subscriptions.FindDueForCancellation(ctx, report.StartedAt, w.config.BatchSize)
	if err != nil {
		return report, fmt.Errorf("find subscriptions due for cancellation: %w", err)
	}
	for _, sub := range due {
		if w.close(ctx, sub.ID(), commands.ClosureCancellation, &report) {
			report.Cancelled++
		}
	}

	due, err = w.subscriptions.FindDueForExpiration(ctx, report.StartedAt, w.config.BatchSize)
	if err != nil {
		return report, fmt.Errorf("find subscriptions due for expiration: %w", err)
	}
	for _, sub := range due {
		if w.close(ctx, sub.ID(), commands.ClosureExpiration, &report) {
			report.Expired++
		}
	}

	report.Duration = time.Since(report.StartedAt)
	return report, nil
}

func (w *SweepWorker) close(ctx context.Context, id uuid.UUID, closure commands.Closure, report *SweepReport) bool {
	if ctx.Err() != nil {
		report.Skipped++
		return false
	}
	result, err := w.closer.Handle(ctx, commands.CloseDueSubscriptionCommand{SubscriptionID: id, Closure: closure})
	if err != nil {
		report.Failed++
		w.logger.ErrorContext(ctx, "failed to close subscription",
			"subscription_id", id, "closure", closure, "error", err)
		return false
	}
	if !result.Changed {
		report.Skipped++
		return false
	}
	return true
}
