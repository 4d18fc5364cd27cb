package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
)

// Closure is the time-based transition the sweep applies.
type Closure string

const (
	// ClosureCancellation ends a PENDING_CANCELLATION subscription whose grace period ran out.
	ClosureCancellation Closure = "cancellation"
	// ClosureExpiration ends an ACTIVE subscription that will not renew.
	ClosureExpiration Closure = "expiration"
)

// CloseDueSubscriptionCommand closes one subscription found by the sweep.
type CloseDueSubscriptionCommand struct {
	SubscriptionID uuid.UUID
	Closure        Closure
}

// CloseDueSubscriptionHandler handles the CloseDueSubscriptionCommand.
type CloseDueSubscriptionHandler struct {
	*reconciler
}

// NewCloseDueSubscriptionHandler creates a new CloseDueSubscriptionHandler.
func NewCloseDueSubscriptionHandler(deps Dependencies) *CloseDueSubscriptionHandler {
	return &CloseDueSubscriptionHandler{reconciler: newReconciler(deps)}
}

// Handle re-checks the subscription under its lock and closes it if it is
// still due. A webhook that renewed or closed it in the meantime wins.
func (h *CloseDueSubscriptionHandler) Handle(ctx context.Context, cmd CloseDueSubscriptionCommand) (*WebhookResult, error) {
	var closed *domain.Subscription
	result, err := h.apply(ctx, cmd.SubscriptionID, delivery{eventType: "sweep_" + string(cmd.Closure)}, func(sub *domain.Subscription, now time.Time) (bool, error) {
		switch cmd.Closure {
		case ClosureCancellation:
			if !sub.IsDueForCancellation(now) {
				return false, nil
			}
			closed = sub
			return sub.Cancel(now)
		case ClosureExpiration:
			if !sub.IsDueForExpiration(now) {
				return false, nil
			}
			return sub.Expire(now)
		default:
			return false, fmt.Errorf("%w: unknown closure %q", domain.ErrValidation, cmd.Closure)
		}
	})
	if err != nil {
		return nil, err
	}

	if closed != nil && result.Changed {
		h.cancelPreapproval(ctx, closed)
	}
	return result, nil
}
