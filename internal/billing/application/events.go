package application

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/memberly/internal/shared/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/outbox"
)

// SaveEvents moves the pending events of the given subscriptions into the
// outbox. Call it inside the unit of work that persisted them.
func SaveEvents(ctx context.Context, repo outbox.Repository, subs ...*domain.Subscription) error {
	var events []sharedDomain.DomainEvent
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		pending := sub.DomainEvents()
		sharedApplication.ApplyEventMetadata(pending, sharedApplication.NewEventMetadata(ctx, sub.UserID()))
		events = append(events, pending...)
	}
	if len(events) == 0 {
		return nil
	}

	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return fmt.Errorf("encode subscription events: %w", err)
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return fmt.Errorf("save subscription events: %w", err)
	}
	for _, sub := range subs {
		if sub != nil {
			sub.ClearDomainEvents()
		}
	}
	return nil
}
