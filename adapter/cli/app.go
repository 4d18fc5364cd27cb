package cli

import (
	"context"

	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/application/queries"
	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/billing/application/workers"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

// PlanContractor contracts a plan for a user.
type PlanContractor interface {
	Handle(ctx context.Context, cmd commands.ContractPlanCommand) (*commands.ContractPlanResult, error)
}

// SubscriptionCanceller cancels a user's subscription.
type SubscriptionCanceller interface {
	Handle(ctx context.Context, cmd commands.CancelSubscriptionCommand) (*commands.CancelSubscriptionResult, error)
}

// SubscriptionArchiver soft-deletes a closed subscription.
type SubscriptionArchiver interface {
	Handle(ctx context.Context, cmd commands.ArchiveSubscriptionCommand) error
}

// UserPlanReader reads a user's plan.
type UserPlanReader interface {
	Handle(ctx context.Context, query queries.GetUserPlanQuery) (*queries.UserPlanDTO, error)
}

// EventDispatcher applies a gateway notification.
type EventDispatcher interface {
	Dispatch(ctx context.Context, e webhooks.Event) (webhooks.Outcome, error)
}

// Sweeper closes subscriptions whose end date has passed.
type Sweeper interface {
	RunOnce(ctx context.Context) (workers.SweepReport, error)
}

// App holds the CLI application dependencies.
type App struct {
	ContractPlan        PlanContractor
	CancelSubscription  SubscriptionCanceller
	ArchiveSubscription SubscriptionArchiver
	GetUserPlan         UserPlanReader
	Webhooks            EventDispatcher
	Sweep               Sweeper
	Plans               domain.PlanCatalog
	// Currency is used for plans added without one.
	Currency string
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
