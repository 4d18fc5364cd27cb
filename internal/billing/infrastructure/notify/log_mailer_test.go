package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMailer_Send(t *testing.T) {
	var buf bytes.Buffer
	mailer := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	err := mailer.Send(context.Background(), application.Email{
		From:    "billing@memberly.local",
		To:      "ana@example.com",
		Subject: "Your subscription was cancelled",
		Body:    "You keep access until 2025-02-15.",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "to=ana@example.com")
	assert.NotContains(t, buf.String(), "2025-02-15")
}

func TestLogMailer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewLogMailer(nil).Send(ctx, application.Email{To: "ana@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}
