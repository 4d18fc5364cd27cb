package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/google/uuid"
)

// ArchiveSubscriptionCommand soft-deletes a closed subscription.
type ArchiveSubscriptionCommand struct {
	SubscriptionID uuid.UUID
}

// ArchiveSubscriptionHandler handles the ArchiveSubscriptionCommand.
type ArchiveSubscriptionHandler struct {
	*reconciler
}

// NewArchiveSubscriptionHandler creates a new ArchiveSubscriptionHandler.
func NewArchiveSubscriptionHandler(deps Dependencies) *ArchiveSubscriptionHandler {
	return &ArchiveSubscriptionHandler{reconciler: newReconciler(deps)}
}

// Handle archives the subscription. Only terminal subscriptions can be
// archived; archiving twice is a no-op.
func (h *ArchiveSubscriptionHandler) Handle(ctx context.Context, cmd ArchiveSubscriptionCommand) error {
	unlock, err := h.deps.Locker.Lock(ctx, cmd.SubscriptionID)
	if err != nil {
		return fmt.Errorf("lock subscription %s: %w", cmd.SubscriptionID, err)
	}
	defer unlock()

	return sharedApplication.WithUnitOfWork(ctx, h.deps.UnitOfWork, func(txCtx context.Context) error {
		sub, err := h.deps.Subscriptions.FindByIDForUpdate(txCtx, cmd.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		if sub == nil {
			return domain.ErrSubscriptionNotFound
		}
		changed, err := sub.SoftDelete(h.now().UTC())
		if err != nil || !changed {
			return err
		}
		if err := h.deps.Subscriptions.Update(txCtx, sub); err != nil {
			return err
		}
		h.log.InfoContext(ctx, "subscription archived", "subscription_id", sub.ID(), "at", sub.DeletedAt().Format(time.RFC3339))
		return nil
	})
}
