package consumers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// MailProvider is recorded in the ledger for sent emails.
const MailProvider = "mail"

type cancellationRequestedPayload struct {
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	UserID         uuid.UUID  `json:"user_id"`
	ContactEmail   string     `json:"contact_email"`
	Reason         string     `json:"reason"`
	AccessUntil    *time.Time `json:"access_until"`
	Immediate      bool       `json:"immediate"`
}

// CancellationEmailConsumer confirms a user cancellation by email.
type CancellationEmailConsumer struct {
	mailer application.Mailer
	ledger domain.WebhookLedger
	uow    sharedApplication.UnitOfWork
	from   string
	logger *slog.Logger
}

// NewCancellationEmailConsumer creates a new CancellationEmailConsumer.
func NewCancellationEmailConsumer(
	mailer application.Mailer,
	ledger domain.WebhookLedger,
	uow sharedApplication.UnitOfWork,
	from string,
	logger *slog.Logger,
) *CancellationEmailConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CancellationEmailConsumer{
		mailer: mailer,
		ledger: ledger,
		uow:    uow,
		from:   from,
		logger: logger,
	}
}

// EventTypes returns the event types this consumer handles.
func (c *CancellationEmailConsumer) EventTypes() []string {
	return []string{domain.RoutingKeyCancellationRequested}
}

// Handle sends the confirmation once per event. The ledger claim commits only
// after the mailer accepted the message, so a failed send is redelivered.
func (c *CancellationEmailConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload cancellationRequestedPayload
	if err := event.DecodePayload(&payload); err != nil {
		// A malformed event will never decode; drop it.
		c.logger.ErrorContext(ctx, "undecodable cancellation event", "event_id", event.EventID, "error", err)
		return nil
	}
	log := c.logger.With("event_id", event.EventID, "subscription_id", payload.SubscriptionID)

	to := strings.TrimSpace(payload.ContactEmail)
	if to == "" {
		log.InfoContext(ctx, "no contact email for cancellation confirmation")
		return nil
	}

	return sharedApplication.WithUnitOfWork(ctx, c.uow, func(txCtx context.Context) error {
		claimed, err := c.ledger.Claim(txCtx, domain.LedgerEntry{
			Key:            "email:" + event.EventID.String(),
			Provider:       MailProvider,
			EventType:      event.RoutingKey,
			ResourceID:     to,
			SubscriptionID: payload.SubscriptionID,
			ReceivedAt:     time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !claimed {
			log.InfoContext(ctx, "cancellation confirmation already sent")
			return nil
		}

		if err := c.mailer.Send(txCtx, confirmationEmail(c.from, to, payload)); err != nil {
			log.WarnContext(ctx, "failed to send cancellation confirmation", "error", err)
			return fmt.Errorf("send cancellation confirmation: %w", err)
		}
		log.InfoContext(ctx, "cancellation confirmation sent")
		return nil
	})
}

func confirmationEmail(from, to string, p cancellationRequestedPayload) application.Email {
	var body strings.Builder
	if p.Immediate {
		body.WriteString("Your subscription has been cancelled.\n")
	} else {
		body.WriteString("Your subscription cancellation has been scheduled.\n")
	}
	if p.AccessUntil != nil {
		fmt.Fprintf(&body, "You keep access until %s.\n", p.AccessUntil.UTC().Format("2006-01-02"))
	}
	if p.Reason != "" {
		fmt.Fprintf(&body, "Reason given: %s\n", p.Reason)
	}
	fmt.Fprintf(&body, "Reference: %s\n", p.SubscriptionID)

	return application.Email{
		From:    from,
		To:      to,
		Subject: "Your cancellation is confirmed",
		Body:    body.String(),
	}
}
