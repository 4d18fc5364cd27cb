package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/pkg/observability"
)

// MaxWebhookBody caps the size of a notification body.
const MaxWebhookBody = 64 << 10

// EventDispatcher applies one gateway notification.
type EventDispatcher interface {
	Dispatch(ctx context.Context, e webhooks.Event) (webhooks.Outcome, error)
}

// WebhookHandler is the gateway notification intake. Any non-2xx answer makes
// the gateway deliver the notification again.
type WebhookHandler struct {
	dispatcher EventDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(dispatcher EventDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: observability.OrDefault(logger)}
}

type webhookResponse struct {
	Outcome webhooks.Outcome `json:"outcome"`
}

// ServeHTTP handles POST /webhooks/gateway.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read body: %v", domain.ErrValidation, err))
		return
	}

	event, err := webhooks.ParseEvent(body)
	if err != nil {
		// Some gateway notifications carry the resource in the query string only.
		var ok bool
		if event, ok = eventFromQuery(r); !ok {
			h.logger.WarnContext(r.Context(), "rejecting malformed notification", "error", err)
			writeError(w, err)
			return
		}
	}

	ctx := observability.NewRequestContext(r.Context(), event.ID)
	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		// The dispatcher already logged the failure.
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Outcome: outcome})
}

func eventFromQuery(r *http.Request) (webhooks.Event, bool) {
	q := r.URL.Query()
	e := webhooks.Event{
		Type:   q.Get("type"),
		DataID: q.Get("data.id"),
	}
	if e.Type == "" {
		e.Type = q.Get("topic")
		e.DataID = q.Get("id")
	}
	return e, e.Type != "" && e.DataID != ""
}
