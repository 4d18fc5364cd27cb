package application

import "context"

// Email is one outgoing message.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers email. The real provider lives outside this service.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}
