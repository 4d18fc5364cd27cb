package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

// Authorization actions reported by the gateway.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

// ProcessAuthorizationCommand reports a change to a recurring authorization.
type ProcessAuthorizationCommand struct {
	NotificationID string
	Action         string
	PreapprovalID  string
}

// ProcessAuthorizationHandler reconciles preapproval notifications.
type ProcessAuthorizationHandler struct {
	*reconciler
}

// NewProcessAuthorizationHandler creates a new ProcessAuthorizationHandler.
func NewProcessAuthorizationHandler(deps Dependencies) *ProcessAuthorizationHandler {
	return &ProcessAuthorizationHandler{reconciler: newReconciler(deps)}
}

// Handle fetches the preapproval from the gateway and applies its status.
func (h *ProcessAuthorizationHandler) Handle(ctx context.Context, cmd ProcessAuthorizationCommand) (*WebhookResult, error) {
	if cmd.PreapprovalID == "" {
		return nil, fmt.Errorf("%w: preapproval id is required", domain.ErrValidation)
	}

	callCtx, cancel := h.gatewayContext(ctx)
	pre, err := h.deps.Gateway.GetPreapproval(callCtx, cmd.PreapprovalID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch preapproval %s: %w", cmd.PreapprovalID, err)
	}

	sub, err := h.resolve(ctx, pre.ExternalReference, func(ctx context.Context) (*domain.Subscription, error) {
		return h.deps.Subscriptions.FindByExternalSubscriptionID(ctx, pre.ID)
	})
	if err != nil {
		return nil, err
	}

	d := newDelivery("subscription_preapproval", pre.ID, cmd.NotificationID)
	action := strings.ToLower(strings.TrimSpace(cmd.Action))
	return h.apply(ctx, sub.ID(), d, func(sub *domain.Subscription, now time.Time) (bool, error) {
		return applyAuthorization(sub, action, pre, now)
	})
}

func applyAuthorization(sub *domain.Subscription, action string, pre *domain.Preapproval, now time.Time) (bool, error) {
	status := domain.NormalizeGatewayStatus(pre.Status)

	switch {
	case status == domain.GatewayStatusCancelled:
		// A scheduled cancellation keeps its grace period; the sweep closes it.
		if sub.Status() == domain.StatusPendingCancellation {
			sub.RecordGatewayStatus(domain.GatewayStatusCancelled, "", now)
			return true, nil
		}
		return sub.Cancel(now)

	case status == domain.GatewayStatusPaused:
		if sub.Status() == domain.StatusPendingCancellation {
			sub.RecordGatewayStatus(domain.GatewayStatusPaused, "", now)
			return true, nil
		}
		return sub.Pause(now)

	case action == ActionCreated || status == domain.GatewayStatusAuthorized:
		sub.LinkExternalSubscription(pre.ID, domain.GatewayStatusAuthorized, now)
		if _, err := sub.Activate(now, pre.NextPaymentDate); err != nil {
			return false, err
		}
		return true, nil

	default:
		sub.RecordGatewayStatus(status, "", now)
		return true, nil
	}
}
