package webhooks

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthorization struct{ mock.Mock }

func (m *mockAuthorization) Handle(ctx context.Context, cmd commands.ProcessAuthorizationCommand) (*commands.WebhookResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.WebhookResult), args.Error(1)
}

type mockPayment struct{ mock.Mock }

func (m *mockPayment) Handle(ctx context.Context, cmd commands.ProcessPaymentCommand) (*commands.WebhookResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.WebhookResult), args.Error(1)
}

type mockInvoice struct{ mock.Mock }

func (m *mockInvoice) Handle(ctx context.Context, cmd commands.ProcessInvoiceCommand) (*commands.WebhookResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commands.WebhookResult), args.Error(1)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Event
		wantErr bool
	}{
		{
			name: "numeric ids",
			body: `{"id": 12345, "type": "payment", "action": "payment.created", "data": {"id": 987}}`,
			want: Event{ID: "12345", Type: "payment", Action: "payment.created", DataID: "987"},
		},
		{
			name: "string ids",
			body: `{"id": "n-1", "type": "subscription_preapproval", "action": "updated", "data": {"id": "pre-1"}}`,
			want: Event{ID: "n-1", Type: "subscription_preapproval", Action: "updated", DataID: "pre-1"},
		},
		{
			name: "legacy topic",
			body: `{"topic": "subscription_authorized_payment", "data": {"id": "inv-1"}}`,
			want: Event{Type: "subscription_authorized_payment", DataID: "inv-1"},
		},
		{name: "missing data id", body: `{"id": 1, "type": "payment"}`, wantErr: true},
		{name: "not json", body: `id=1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatcher_Routes(t *testing.T) {
	auth, pay, inv := new(mockAuthorization), new(mockPayment), new(mockInvoice)
	result := &commands.WebhookResult{SubscriptionID: uuid.New(), Status: domain.StatusActive, Changed: true}

	auth.On("Handle", mock.Anything, commands.ProcessAuthorizationCommand{
		NotificationID: "n-1", Action: "updated", PreapprovalID: "pre-1",
	}).Return(result, nil)
	pay.On("Handle", mock.Anything, commands.ProcessPaymentCommand{
		NotificationID: "n-2", Action: "created", PaymentID: "pay-1",
	}).Return(result, nil)
	inv.On("Handle", mock.Anything, commands.ProcessInvoiceCommand{
		AuthorizedPaymentID: "inv-1",
	}).Return(result, nil)

	d := NewDispatcher(Processors{Authorization: auth, Payment: pay, Invoice: inv}, nil)
	ctx := context.Background()

	for _, e := range []Event{
		{ID: "n-1", Type: TypePreapproval, Action: "updated", DataID: "pre-1"},
		{ID: "n-2", Type: TypePayment, Action: "payment.created", DataID: "pay-1"},
		{Type: TypeAuthorizedPayment, DataID: "inv-1"},
	} {
		outcome, err := d.Dispatch(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	}

	auth.AssertExpectations(t)
	pay.AssertExpectations(t)
	inv.AssertExpectations(t)
}

func TestDispatcher_Outcomes(t *testing.T) {
	pay := new(mockPayment)
	pay.On("Handle", mock.Anything, mock.MatchedBy(func(c commands.ProcessPaymentCommand) bool { return c.PaymentID == "dup" })).
		Return(nil, domain.ErrDuplicateEvent)
	boom := errors.New("database is locked")
	pay.On("Handle", mock.Anything, mock.MatchedBy(func(c commands.ProcessPaymentCommand) bool { return c.PaymentID == "fail" })).
		Return(nil, boom)

	d := NewDispatcher(Processors{Payment: pay}, nil)
	ctx := context.Background()

	outcome, err := d.Dispatch(ctx, Event{ID: "1", Type: TypePayment, DataID: "dup"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	_, err = d.Dispatch(ctx, Event{ID: "2", Type: TypePayment, DataID: "fail"})
	assert.ErrorIs(t, err, boom)

	outcome, err = d.Dispatch(ctx, Event{ID: "3", Type: "merchant_order", DataID: "mo-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}
