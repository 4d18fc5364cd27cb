package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/memberly/pkg/observability"
	"github.com/google/uuid"
)

// GatewayProvider is recorded in the webhook ledger for gateway deliveries.
const GatewayProvider = "gateway"

// DefaultGatewayTimeout bounds a single gateway call made by a handler.
const DefaultGatewayTimeout = 10 * time.Second

// Dependencies are the collaborators shared by the reconciling handlers.
type Dependencies struct {
	Subscriptions domain.SubscriptionRepository
	Ledger        domain.WebhookLedger
	Outbox        outbox.Repository
	UnitOfWork    sharedApplication.UnitOfWork
	Locker        application.SubscriptionLocker
	Gateway       domain.PaymentGateway
	RetryPolicy   domain.RetryPolicy
	// GatewayTimeout defaults to DefaultGatewayTimeout.
	GatewayTimeout time.Duration
	Logger         *slog.Logger
}

// WebhookResult reports what a processor did with one delivery.
type WebhookResult struct {
	SubscriptionID uuid.UUID
	Status         domain.Status
	// Changed is false when the delivery was acknowledged without touching
	// the subscription.
	Changed bool
}

// delivery names the ledger entries a transition must claim.
type delivery struct {
	eventType  string
	resourceID string
	keys       []string
}

func newDelivery(eventType, resourceID, notificationID string) delivery {
	d := delivery{eventType: eventType, resourceID: resourceID}
	if notificationID != "" {
		d.keys = append(d.keys, notificationID)
	}
	return d
}

// withEffect adds a key that is unique per business effect, so the same
// charge reported under a new notification id, or under none, is still
// applied once.
func (d delivery) withEffect(key string) delivery {
	d.keys = append(append([]string(nil), d.keys...), key)
	return d
}

// withChargeEffect keys approved and failed charges of a gateway resource.
// Informational statuses carry no effect key; recording them is idempotent.
func (d delivery) withChargeEffect(kind, resourceID string, outcome domain.PaymentOutcome, status string) delivery {
	switch outcome {
	case domain.OutcomeApproved:
		return d.withEffect(kind + ":" + resourceID + ":approved")
	case domain.OutcomeFailed:
		return d.withEffect(kind + ":" + resourceID + ":failed:" + domain.NormalizeGatewayStatus(status))
	}
	return d
}

// mutation changes a locked subscription. It returns false when nothing
// needs to be written.
type mutation func(sub *domain.Subscription, now time.Time) (bool, error)

type reconciler struct {
	deps Dependencies
	log  *slog.Logger
	now  func() time.Time
}

func newReconciler(deps Dependencies) *reconciler {
	if deps.GatewayTimeout <= 0 {
		deps.GatewayTimeout = DefaultGatewayTimeout
	}
	if deps.RetryPolicy.MaxRetries <= 0 {
		deps.RetryPolicy = domain.NewRetryPolicy(0)
	}
	return &reconciler{
		deps: deps,
		log:  observability.OrDefault(deps.Logger),
		now:  time.Now,
	}
}

func (r *reconciler) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.deps.GatewayTimeout)
}

// apply runs mutate on subscriptionID while holding its lock. The ledger
// claims, the update, any superseded subscription and the outbox events are
// written in one unit of work.
func (r *reconciler) apply(ctx context.Context, subscriptionID uuid.UUID, d delivery, mutate mutation) (*WebhookResult, error) {
	unlock, err := r.deps.Locker.Lock(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription %s: %w", subscriptionID, err)
	}
	defer unlock()

	var (
		result     *WebhookResult
		superseded []*domain.Subscription
	)
	err = sharedApplication.WithUnitOfWork(ctx, r.deps.UnitOfWork, func(txCtx context.Context) error {
		now := r.now().UTC()
		for _, key := range d.keys {
			claimed, err := r.deps.Ledger.Claim(txCtx, domain.LedgerEntry{
				Key:            key,
				Provider:       GatewayProvider,
				EventType:      d.eventType,
				ResourceID:     d.resourceID,
				SubscriptionID: subscriptionID,
				ReceivedAt:     now,
			})
			if err != nil {
				return err
			}
			if !claimed {
				return domain.ErrDuplicateEvent
			}
		}

		sub, err := r.deps.Subscriptions.FindByIDForUpdate(txCtx, subscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		if sub == nil {
			return domain.ErrSubscriptionNotFound
		}
		result = &WebhookResult{SubscriptionID: sub.ID(), Status: sub.Status()}

		if sub.Status().IsTerminal() {
			r.log.InfoContext(ctx, "ignoring event for closed subscription",
				"subscription_id", sub.ID(), "status", sub.Status(), "event_type", d.eventType)
			return nil
		}

		wasCurrent := sub.Status().IsCurrent()
		changed, err := mutate(sub, now)
		if errors.Is(err, domain.ErrInvalidTransition) {
			r.log.WarnContext(ctx, "event does not apply to subscription",
				"subscription_id", sub.ID(), "status", sub.Status(), "event_type", d.eventType, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if !wasCurrent && sub.Status().IsCurrent() {
			if superseded, err = r.supersedeOthers(txCtx, sub, now); err != nil {
				return err
			}
		}
		if err := r.deps.Subscriptions.Update(txCtx, sub); err != nil {
			return err
		}
		if err := application.SaveEvents(txCtx, r.deps.Outbox, append(superseded, sub)...); err != nil {
			return err
		}

		result.Status = sub.Status()
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, prev := range superseded {
		r.cancelPreapproval(ctx, prev)
	}
	return result, nil
}

// supersedeOthers ends the subscription sub replaces, and any other current
// subscription of the same user, before sub itself becomes current.
func (r *reconciler) supersedeOthers(ctx context.Context, sub *domain.Subscription, now time.Time) ([]*domain.Subscription, error) {
	var (
		candidates []uuid.UUID
		explicit   *uuid.UUID
	)
	if id := sub.ReplacesSubscriptionID(); id != nil {
		candidates = append(candidates, *id)
		explicit = id
	}
	current, err := r.deps.Subscriptions.FindCurrentByUserID(ctx, sub.UserID())
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	if current != nil && current.ID() != sub.ID() && !containsID(candidates, current.ID()) {
		r.log.WarnContext(ctx, "superseding current subscription not referenced as replaced",
			"subscription_id", sub.ID(), "current_subscription_id", current.ID())
		candidates = append(candidates, current.ID())
	}

	var superseded []*domain.Subscription
	for _, id := range candidates {
		prev, err := r.deps.Subscriptions.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load replaced subscription: %w", err)
		}
		if prev == nil {
			r.log.WarnContext(ctx, "replaced subscription not found", "subscription_id", sub.ID(), "replaced_id", id)
			continue
		}
		changed, err := prev.Supersede(sub.ID(), explicit != nil && *explicit == id, now)
		if errors.Is(err, domain.ErrInvalidTransition) {
			r.log.WarnContext(ctx, "replaced subscription cannot be superseded",
				"subscription_id", sub.ID(), "replaced_id", id, "status", prev.Status())
			continue
		}
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		if err := r.deps.Subscriptions.Update(ctx, prev); err != nil {
			return nil, fmt.Errorf("update replaced subscription: %w", err)
		}
		superseded = append(superseded, prev)
	}
	return superseded, nil
}

// cancelPreapproval stops the gateway from charging a closed subscription.
// Failures are logged; the local record already denies access.
func (r *reconciler) cancelPreapproval(ctx context.Context, sub *domain.Subscription) {
	externalID := sub.ExternalSubscriptionID()
	if externalID == "" {
		return
	}
	callCtx, cancel := r.gatewayContext(ctx)
	defer cancel()
	if err := r.deps.Gateway.CancelPreapproval(callCtx, externalID); err != nil {
		r.log.WarnContext(ctx, "failed to cancel gateway preapproval",
			"subscription_id", sub.ID(), "external_subscription_id", externalID, "error", err)
	}
}

// resolve finds the subscription a gateway resource belongs to: first by the
// external reference we sent, then by the stored gateway handle.
func (r *reconciler) resolve(ctx context.Context, externalReference string, byHandle func(context.Context) (*domain.Subscription, error)) (*domain.Subscription, error) {
	if id, err := uuid.Parse(externalReference); err == nil {
		sub, err := r.deps.Subscriptions.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load subscription: %w", err)
		}
		if sub != nil {
			return sub, nil
		}
	}
	sub, err := byHandle(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
