// Package notify delivers billing email.
package notify

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
)

// LogMailer writes each email to the log instead of sending it. The email
// provider is configured outside this service.
type LogMailer struct {
	logger *slog.Logger
}

var _ application.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

// Send logs the email.
func (m *LogMailer) Send(ctx context.Context, email application.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "email sent",
		"from", email.From,
		"to", email.To,
		"subject", email.Subject,
		"body_bytes", len(email.Body),
	)
	return nil
}
