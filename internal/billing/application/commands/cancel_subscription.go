package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
)

// CancelSubscriptionCommand contains the data needed to cancel a user's subscription.
type CancelSubscriptionCommand struct {
	UserID uuid.UUID
	// Email receives the cancellation confirmation.
	Email  string
	Reason string
}

// CancelSubscriptionResult describes the subscription after the request.
type CancelSubscriptionResult struct {
	SubscriptionID uuid.UUID
	Status         domain.Status
	// AccessUntil is when access ends. It is nil for an immediate cancellation
	// of a subscription that never had a paid period.
	AccessUntil *time.Time
}

// CancelSubscriptionHandler handles the CancelSubscriptionCommand.
type CancelSubscriptionHandler struct {
	*reconciler
}

// NewCancelSubscriptionHandler creates a new CancelSubscriptionHandler.
func NewCancelSubscriptionHandler(deps Dependencies) *CancelSubscriptionHandler {
	return &CancelSubscriptionHandler{reconciler: newReconciler(deps)}
}

// Handle schedules cancellation of the user's current subscription at the end
// of its paid period. A subscription still waiting for its first payment, or
// one whose payments failed, is cancelled right away.
func (h *CancelSubscriptionHandler) Handle(ctx context.Context, cmd CancelSubscriptionCommand) (*CancelSubscriptionResult, error) {
	sub, err := h.deps.Subscriptions.FindCurrentByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	immediate := false
	if sub == nil {
		sub, err = h.deps.Subscriptions.FindLatestByUserID(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("load latest subscription: %w", err)
		}
		if sub == nil || (sub.Status() != domain.StatusPendingPayment && sub.Status() != domain.StatusPaymentFailed) {
			return nil, domain.ErrSubscriptionNotFound
		}
		immediate = true
	}

	var accessUntil *time.Time
	result, err := h.apply(ctx, sub.ID(), delivery{eventType: "user_cancel"}, func(s *domain.Subscription, now time.Time) (bool, error) {
		var (
			changed bool
			err     error
		)
		req := domain.CancellationRequest{Reason: cmd.Reason, ContactEmail: cmd.Email}
		if immediate {
			changed, err = s.CancelNow(req, now)
		} else {
			changed, err = s.RequestCancellation(req, now)
		}
		accessUntil = s.EndDate()
		return changed, err
	})
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if result.Status != domain.StatusPendingCancellation && result.Status != domain.StatusCancelled {
		return nil, domain.TransitionError("cancel", result.Status)
	}

	// Stop further charges now. Access is governed by the local record.
	if result.Changed {
		h.cancelPreapproval(ctx, sub)
	}

	h.log.InfoContext(ctx, "subscription cancellation accepted",
		"subscription_id", result.SubscriptionID, "status", result.Status, "immediate", immediate)

	return &CancelSubscriptionResult{
		SubscriptionID: result.SubscriptionID,
		Status:         result.Status,
		AccessUntil:    accessUntil,
	}, nil
}
