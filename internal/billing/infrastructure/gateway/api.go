package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
)

var _ domain.PaymentGateway = (*HTTPClient)(nil)

// flexID accepts ids the gateway sends as numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexID(n.String())
	}
	return nil
}

// gatewayTime parses the gateway's RFC 3339 timestamps. Unparseable or empty
// values decode to nil.
type gatewayTime struct{ t *time.Time }

func (g *gatewayTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		g.t = &t
	}
	return nil
}

func toAmount(m domain.Money) float64 {
	return float64(m.Amount) / 100
}

func currencyOrDefault(m domain.Money) string {
	if m.Currency == "" {
		return "BRL"
	}
	return strings.ToUpper(m.Currency)
}

type autoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type preapprovalRequest struct {
	PreapprovalPlanID string         `json:"preapproval_plan_id,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	ExternalReference string         `json:"external_reference"`
	PayerEmail        string         `json:"payer_email,omitempty"`
	CardTokenID       string         `json:"card_token_id,omitempty"`
	BackURL           string         `json:"back_url,omitempty"`
	NotificationURL   string         `json:"notification_url,omitempty"`
	Status            string         `json:"status,omitempty"`
	AutoRecurring     *autoRecurring `json:"auto_recurring,omitempty"`
}

type preapprovalResponse struct {
	ID                flexID      `json:"id"`
	InitPoint         string      `json:"init_point"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	NextPaymentDate   gatewayTime `json:"next_payment_date"`
}

// CreateSubscription creates a preapproval. With a card token the gateway
// authorizes it immediately; without one the payer completes the checkout.
func (c *HTTPClient) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.ExternalSubscription, error) {
	months := 1
	if req.BillingCycle == domain.BillingCycleAnnual {
		months = 12
	}
	body := preapprovalRequest{
		PreapprovalPlanID: req.ExternalPlanID,
		Reason:            req.Reason,
		ExternalReference: req.ExternalReference,
		PayerEmail:        req.PayerEmail,
		CardTokenID:       req.CardToken,
		BackURL:           c.cfg.BackURL,
		NotificationURL:   c.cfg.NotificationURL,
		AutoRecurring: &autoRecurring{
			Frequency:         months,
			FrequencyType:     "months",
			TransactionAmount: toAmount(req.Price),
			CurrencyID:        currencyOrDefault(req.Price),
		},
	}
	if req.CardToken != "" {
		body.Status = domain.GatewayStatusAuthorized
	}

	var resp preapprovalResponse
	if err := c.do(ctx, http.MethodPost, "/preapproval", "preapproval-"+req.ExternalReference, body, &resp); err != nil {
		return nil, err
	}
	return &domain.ExternalSubscription{
		ID:              string(resp.ID),
		CheckoutURL:     resp.InitPoint,
		Status:          resp.Status,
		NextPaymentDate: resp.NextPaymentDate.t,
	}, nil
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceRequest struct {
	Items []preferenceItem `json:"items"`
	Payer struct {
		Email string `json:"email,omitempty"`
	} `json:"payer"`
	ExternalReference string `json:"external_reference"`
	NotificationURL   string `json:"notification_url,omitempty"`
	BackURLs          struct {
		Success string `json:"success,omitempty"`
	} `json:"back_urls"`
}

type preferenceResponse struct {
	ID        flexID `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreateCheckout creates a single-payment checkout preference.
func (c *HTTPClient) CreateCheckout(ctx context.Context, req domain.CreateCheckoutRequest) (*domain.Checkout, error) {
	body := preferenceRequest{
		Items: []preferenceItem{{
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  toAmount(req.Price),
			CurrencyID: currencyOrDefault(req.Price),
		}},
		ExternalReference: req.ExternalReference,
		NotificationURL:   c.cfg.NotificationURL,
	}
	body.Payer.Email = req.PayerEmail
	body.BackURLs.Success = c.cfg.BackURL

	var resp preferenceResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", "checkout-"+req.ExternalReference, body, &resp); err != nil {
		return nil, err
	}
	return &domain.Checkout{ID: string(resp.ID), CheckoutURL: resp.InitPoint}, nil
}

type paymentResponse struct {
	ID                flexID      `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	PaymentMethodID   string      `json:"payment_method_id"`
	PaymentTypeID     string      `json:"payment_type_id"`
	DateApproved      gatewayTime `json:"date_approved"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// GetPayment fetches a single payment.
func (c *HTTPClient) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+escape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	method := resp.PaymentMethodID
	if method == "" {
		method = resp.PaymentTypeID
	}
	return &domain.Payment{
		ID:                string(resp.ID),
		Status:            domain.NormalizeGatewayStatus(resp.Status),
		StatusDetail:      resp.StatusDetail,
		ExternalReference: resp.ExternalReference,
		PaymentMethod:     method,
		PayerEmail:        resp.Payer.Email,
		ApprovedAt:        resp.DateApproved.t,
	}, nil
}

// GetPreapproval fetches a preapproval.
func (c *HTTPClient) GetPreapproval(ctx context.Context, id string) (*domain.Preapproval, error) {
	var resp preapprovalResponse
	if err := c.do(ctx, http.MethodGet, "/preapproval/"+escape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	return &domain.Preapproval{
		ID:                string(resp.ID),
		Status:            domain.NormalizeGatewayStatus(resp.Status),
		NextPaymentDate:   resp.NextPaymentDate.t,
		ExternalReference: resp.ExternalReference,
	}, nil
}

// CancelPreapproval stops future charges. Cancelling twice succeeds.
func (c *HTTPClient) CancelPreapproval(ctx context.Context, id string) error {
	body := map[string]string{"status": domain.GatewayStatusCancelled}
	return c.do(ctx, http.MethodPut, "/preapproval/"+escape(id), "cancel-"+id, body, nil)
}

type authorizedPaymentResponse struct {
	ID            flexID      `json:"id"`
	Status        string      `json:"status"`
	PreapprovalID string      `json:"preapproval_id"`
	DebitDate     gatewayTime `json:"debit_date"`
	Payment       struct {
		ID           flexID `json:"id"`
		Status       string `json:"status"`
		StatusDetail string `json:"status_detail"`
	} `json:"payment"`
}

// GetAuthorizedPayment fetches one recurring charge. The status reported is
// the status of the underlying payment once it exists.
func (c *HTTPClient) GetAuthorizedPayment(ctx context.Context, id string) (*domain.AuthorizedPayment, error) {
	var resp authorizedPaymentResponse
	if err := c.do(ctx, http.MethodGet, "/authorized_payments/"+escape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	status := resp.Status
	if resp.Payment.Status != "" {
		status = resp.Payment.Status
	}
	out := &domain.AuthorizedPayment{
		ID:            string(resp.ID),
		Status:        domain.NormalizeGatewayStatus(status),
		StatusDetail:  resp.Payment.StatusDetail,
		PreapprovalID: resp.PreapprovalID,
		PaymentID:     string(resp.Payment.ID),
	}
	if domain.ClassifyInvoicePayment(out.Status) == domain.OutcomeApproved {
		out.PaidAt = resp.DebitDate.t
	}
	return out, nil
}
