package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

// ProcessPaymentCommand reports a one-off checkout payment.
type ProcessPaymentCommand struct {
	NotificationID string
	Action         string
	PaymentID      string
}

// ProcessPaymentHandler reconciles single-payment notifications.
type ProcessPaymentHandler struct {
	*reconciler
}

// NewProcessPaymentHandler creates a new ProcessPaymentHandler.
func NewProcessPaymentHandler(deps Dependencies) *ProcessPaymentHandler {
	return &ProcessPaymentHandler{reconciler: newReconciler(deps)}
}

// Handle fetches the payment from the gateway and applies its outcome.
func (h *ProcessPaymentHandler) Handle(ctx context.Context, cmd ProcessPaymentCommand) (*WebhookResult, error) {
	if cmd.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}

	callCtx, cancel := h.gatewayContext(ctx)
	payment, err := h.deps.Gateway.GetPayment(callCtx, cmd.PaymentID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", cmd.PaymentID, err)
	}

	sub, err := h.resolve(ctx, payment.ExternalReference, func(ctx context.Context) (*domain.Subscription, error) {
		return h.deps.Subscriptions.FindByExternalPaymentID(ctx, payment.ID)
	})
	if err != nil {
		return nil, err
	}

	outcome := domain.ClassifyOneOffPayment(payment.Status)
	d := newDelivery("payment", payment.ID, cmd.NotificationID).
		withChargeEffect("payment", payment.ID, outcome, payment.Status)

	rec := domain.PaymentRecord{
		PaymentID:    payment.ID,
		Status:       domain.NormalizeGatewayStatus(payment.Status),
		StatusDetail: payment.StatusDetail,
		Method:       payment.PaymentMethod,
		PaidAt:       payment.ApprovedAt,
	}

	return h.apply(ctx, sub.ID(), d, func(sub *domain.Subscription, now time.Time) (bool, error) {
		switch outcome {
		case domain.OutcomeApproved:
			if sub.Status().IsCurrent() {
				return false, nil
			}
			if rec.PaidAt == nil {
				rec.PaidAt = &now
			}
			sub.RecordPayment(rec, now)
			_, err := sub.Activate(now, nil)
			return err == nil, err

		case domain.OutcomeFailed:
			sub.RecordPayment(rec, now)
			if _, err := sub.RecordPaymentFailure(h.deps.RetryPolicy, now); err != nil {
				return false, err
			}
			return true, nil

		default:
			sub.RecordPayment(rec, now)
			return true, nil
		}
	})
}
