package app

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

var errGatewayNotConfigured = fmt.Errorf("%w: GATEWAY_ACCESS_TOKEN is not set", domain.ErrGatewayUnavailable)

// unconfiguredGateway lets development installs run without gateway
// credentials. Every call fails as unavailable.
type unconfiguredGateway struct{}

func (unconfiguredGateway) CreateSubscription(context.Context, domain.CreateSubscriptionRequest) (*domain.ExternalSubscription, error) {
	return nil, errGatewayNotConfigured
}

func (unconfiguredGateway) CreateCheckout(context.Context, domain.CreateCheckoutRequest) (*domain.Checkout, error) {
	return nil, errGatewayNotConfigured
}

func (unconfiguredGateway) GetPayment(context.Context, string) (*domain.Payment, error) {
	return nil, errGatewayNotConfigured
}

func (unconfiguredGateway) GetPreapproval(context.Context, string) (*domain.Preapproval, error) {
	return nil, errGatewayNotConfigured
}

func (unconfiguredGateway) CancelPreapproval(context.Context, string) error {
	return errGatewayNotConfigured
}

func (unconfiguredGateway) GetAuthorizedPayment(context.Context, string) (*domain.AuthorizedPayment, error) {
	return nil, errGatewayNotConfigured
}
