// Package webhooks routes gateway notifications to the reconciliation processors.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/pkg/observability"
)

// Notification types sent by the gateway.
const (
	TypePayment           = "payment"
	TypePreapproval       = "subscription_preapproval"
	TypeAuthorizedPayment = "subscription_authorized_payment"
)

// Event is one gateway notification. DataID names the resource to fetch.
// ID is empty for notifications the gateway sends without one; those are
// deduplicated only by the effect they have.
type Event struct {
	ID     string
	Type   string
	Action string
	DataID string
}

// Outcome is what happened to a dispatched event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

type wireEvent struct {
	ID     flexibleID `json:"id"`
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID accepts both JSON strings and numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// ParseEvent decodes a gateway notification body. Older notifications carry
// "topic" instead of "type".
func ParseEvent(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: malformed notification: %v", domain.ErrValidation, err)
	}
	eventType := w.Type
	if eventType == "" {
		eventType = w.Topic
	}
	e := Event{
		ID:     string(w.ID),
		Type:   strings.TrimSpace(eventType),
		Action: w.Action,
		DataID: string(w.Data.ID),
	}
	if e.Type == "" || e.DataID == "" {
		return Event{}, fmt.Errorf("%w: notification needs a type and a data id", domain.ErrValidation)
	}
	return e, nil
}

// action strips the type prefix from actions like "payment.created".
func (e Event) action() string {
	if i := strings.LastIndex(e.Action, "."); i >= 0 {
		return e.Action[i+1:]
	}
	return e.Action
}

// AuthorizationProcessor handles preapproval notifications.
type AuthorizationProcessor interface {
	Handle(ctx context.Context, cmd commands.ProcessAuthorizationCommand) (*commands.WebhookResult, error)
}

// PaymentProcessor handles single-payment notifications.
type PaymentProcessor interface {
	Handle(ctx context.Context, cmd commands.ProcessPaymentCommand) (*commands.WebhookResult, error)
}

// InvoiceProcessor handles recurring-charge notifications.
type InvoiceProcessor interface {
	Handle(ctx context.Context, cmd commands.ProcessInvoiceCommand) (*commands.WebhookResult, error)
}

// Processors is the set of handlers the dispatcher routes to.
type Processors struct {
	Authorization AuthorizationProcessor
	Payment       PaymentProcessor
	Invoice       InvoiceProcessor
}

// Dispatcher sends each event to the processor for its type.
type Dispatcher struct {
	processors Processors
	logger     *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(processors Processors, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{processors: processors, logger: observability.OrDefault(logger)}
}

// Dispatch processes one event. A duplicate delivery is a success. Unknown
// types are acknowledged and ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (Outcome, error) {
	log := d.logger.With("event_id", e.ID, "event_type", e.Type, "action", e.Action, "data_id", e.DataID)

	var (
		result *commands.WebhookResult
		err    error
	)
	switch e.Type {
	case TypePreapproval:
		result, err = d.processors.Authorization.Handle(ctx, commands.ProcessAuthorizationCommand{
			NotificationID: e.ID,
			Action:         e.action(),
			PreapprovalID:  e.DataID,
		})
	case TypePayment:
		result, err = d.processors.Payment.Handle(ctx, commands.ProcessPaymentCommand{
			NotificationID: e.ID,
			Action:         e.action(),
			PaymentID:      e.DataID,
		})
	case TypeAuthorizedPayment:
		result, err = d.processors.Invoice.Handle(ctx, commands.ProcessInvoiceCommand{
			NotificationID:      e.ID,
			Action:              e.action(),
			AuthorizedPaymentID: e.DataID,
		})
	default:
		log.InfoContext(ctx, "ignoring unsupported notification type")
		return OutcomeIgnored, nil
	}

	if errors.Is(err, domain.ErrDuplicateEvent) {
		log.InfoContext(ctx, "duplicate notification acknowledged")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "notification processing failed", "error", err)
		return "", err
	}

	log.InfoContext(ctx, "notification processed",
		"subscription_id", result.SubscriptionID, "status", result.Status, "changed", result.Changed)
	return OutcomeProcessed, nil
}
