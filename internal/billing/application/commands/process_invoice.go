package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

// ProcessInvoiceCommand reports one recurring charge of a preapproval.
type ProcessInvoiceCommand struct {
	NotificationID      string
	Action              string
	AuthorizedPaymentID string
}

// ProcessInvoiceHandler reconciles recurring-charge notifications.
type ProcessInvoiceHandler struct {
	*reconciler
}

// NewProcessInvoiceHandler creates a new ProcessInvoiceHandler.
func NewProcessInvoiceHandler(deps Dependencies) *ProcessInvoiceHandler {
	return &ProcessInvoiceHandler{reconciler: newReconciler(deps)}
}

// Handle fetches the authorized payment and renews or fails the subscription.
// An approved or failed charge is applied once per payment id, so the paid
// period and the retry count move once however often the gateway repeats it.
func (h *ProcessInvoiceHandler) Handle(ctx context.Context, cmd ProcessInvoiceCommand) (*WebhookResult, error) {
	if cmd.AuthorizedPaymentID == "" {
		return nil, fmt.Errorf("%w: authorized payment id is required", domain.ErrValidation)
	}

	callCtx, cancel := h.gatewayContext(ctx)
	invoice, err := h.deps.Gateway.GetAuthorizedPayment(callCtx, cmd.AuthorizedPaymentID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch authorized payment %s: %w", cmd.AuthorizedPaymentID, err)
	}

	sub, err := h.deps.Subscriptions.FindByExternalSubscriptionID(ctx, invoice.PreapprovalID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	outcome := domain.ClassifyInvoicePayment(invoice.Status)
	d := newDelivery("subscription_authorized_payment", invoice.ID, cmd.NotificationID).
		withChargeEffect("invoice", invoice.ID, outcome, invoice.Status)

	paymentID := invoice.PaymentID
	if paymentID == "" {
		paymentID = invoice.ID
	}
	rec := domain.PaymentRecord{
		PaymentID:    paymentID,
		Status:       domain.NormalizeGatewayStatus(invoice.Status),
		StatusDetail: invoice.StatusDetail,
		PaidAt:       invoice.PaidAt,
	}

	return h.apply(ctx, sub.ID(), d, func(sub *domain.Subscription, now time.Time) (bool, error) {
		switch outcome {
		case domain.OutcomeApproved:
			if _, err := sub.ApplyRenewal(now, invoice.NextPaymentDate); err != nil {
				return false, err
			}
			if rec.PaidAt == nil {
				rec.PaidAt = &now
			}
			sub.RecordPayment(rec, now)
			return true, nil

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
