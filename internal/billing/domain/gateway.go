package domain

import (
	"context"
	"time"
)

// CreateSubscriptionRequest asks the gateway for a recurring authorization.
type CreateSubscriptionRequest struct {
	ExternalPlanID    string
	PayerEmail        string
	ExternalReference string
	CardToken         string
	Reason            string
	Price             Money
	BillingCycle      BillingCycle
}

// ExternalSubscription is the gateway's answer to CreateSubscription.
type ExternalSubscription struct {
	ID              string
	CheckoutURL     string
	Status          string
	NextPaymentDate *time.Time
}

// CreateCheckoutRequest asks for a single-payment checkout page.
type CreateCheckoutRequest struct {
	Title             string
	PayerEmail        string
	ExternalReference string
	Price             Money
}

// Checkout is a gateway-hosted payment page.
type Checkout struct {
	ID          string
	CheckoutURL string
}

// Payment is a one-off charge as reported by the gateway.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	PaymentMethod     string
	PayerEmail        string
	ApprovedAt        *time.Time
}

// Preapproval is a standing authorization to charge the payer.
type Preapproval struct {
	ID                string
	Status            string
	NextPaymentDate   *time.Time
	ExternalReference string
}

// AuthorizedPayment is one recurring charge against a preapproval.
type AuthorizedPayment struct {
	ID              string
	Status          string
	StatusDetail    string
	PreapprovalID   string
	PaymentID       string
	NextPaymentDate *time.Time
	PaidAt          *time.Time
}

// PaymentGateway is the outbound contract the engine needs from the payment
// provider. Implementations return ErrGatewayUnavailable for network failures,
// timeouts and 5xx responses, and ErrGatewayRejected for business rejections.
type PaymentGateway interface {
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*ExternalSubscription, error)
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*Checkout, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetPreapproval(ctx context.Context, id string) (*Preapproval, error)
	CancelPreapproval(ctx context.Context, id string) error
	GetAuthorizedPayment(ctx context.Context, id string) (*AuthorizedPayment, error)
}
