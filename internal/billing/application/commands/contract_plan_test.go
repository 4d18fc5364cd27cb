package commands

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockPlanRepo is a mock implementation of domain.PlanRepository.
type mockPlanRepo struct {
	mock.Mock
}

func (m *mockPlanRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

func TestContractPlanHandler_Validation(t *testing.T) {
	active := testPlan()
	inactive := testPlan()
	inactive.Active = false
	free := testPlan()
	free.MonthlyPrice = 0
	unsynced := testPlan()
	unsynced.ExternalAnnualPlanID = ""

	tests := []struct {
		name    string
		plan    *domain.Plan
		cmd     ContractPlanCommand
		wantErr error
	}{
		{name: "privileged role", plan: active, cmd: ContractPlanCommand{Role: "Admin", BillingCycle: "monthly"}, wantErr: domain.ErrPermissionDenied},
		{name: "bad cycle", plan: active, cmd: ContractPlanCommand{BillingCycle: "weekly"}, wantErr: domain.ErrInvalidBillingCycle},
		{name: "bad mode", plan: active, cmd: ContractPlanCommand{BillingCycle: "monthly", PaymentMode: "barter"}, wantErr: domain.ErrInvalidPaymentMode},
		{name: "unknown plan", plan: nil, cmd: ContractPlanCommand{BillingCycle: "monthly"}, wantErr: domain.ErrPlanNotFound},
		{name: "inactive plan", plan: inactive, cmd: ContractPlanCommand{BillingCycle: "monthly"}, wantErr: domain.ErrPlanInactive},
		{name: "zero price", plan: free, cmd: ContractPlanCommand{BillingCycle: "monthly"}, wantErr: domain.ErrInvalidPrice},
		{name: "plan not synced", plan: unsynced, cmd: ContractPlanCommand{BillingCycle: "annual"}, wantErr: domain.ErrPlanNotSynced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			plans := new(mockPlanRepo)
			if tt.plan != nil {
				tt.cmd.PlanID = tt.plan.ID
				plans.On("FindByID", mock.Anything, tt.plan.ID).Return(tt.plan, nil).Maybe()
			} else {
				tt.cmd.PlanID = uuid.New()
				plans.On("FindByID", mock.Anything, tt.cmd.PlanID).Return(nil, nil)
			}
			tt.cmd.UserID = uuid.New()

			_, err := NewContractPlanHandler(f.deps, plans, time.Hour).Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.store.subs)
			f.gateway.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
		})
	}
}

func TestContractPlanHandler_DuplicateSubscription(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	current := f.activeSubscription(t, userID, "pre-1")

	plan := testPlan()
	plan.ID = current.PlanID()
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)

	_, err := NewContractPlanHandler(f.deps, plans, 0).Handle(context.Background(), ContractPlanCommand{
		UserID: userID, PlanID: plan.ID, BillingCycle: "monthly",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSubscription)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Len(t, f.store.subs, 1)
}

func TestContractPlanHandler_DuplicateCheckedBeforePrice(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	current := f.activeSubscription(t, userID, "pre-1")

	// The catalog entry lost its price and gateway plan after the user contracted it.
	plan := testPlan()
	plan.ID = current.PlanID()
	plan.MonthlyPrice = 0
	plan.ExternalMonthlyPlanID = ""
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)

	_, err := NewContractPlanHandler(f.deps, plans, 0).Handle(context.Background(), ContractPlanCommand{
		UserID: userID, PlanID: plan.ID, BillingCycle: "monthly",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSubscription)
	assert.NotErrorIs(t, err, domain.ErrInvalidPrice)
	assert.Len(t, f.store.subs, 1)
}

func TestContractPlanHandler_Replacement(t *testing.T) {
	f := newFixture()
	userID := uuid.New()
	current := f.activeSubscription(t, userID, "pre-old")

	plan := testPlan()
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.AnythingOfType("domain.CreateSubscriptionRequest")).
		Return(&domain.ExternalSubscription{ID: "pre-new", CheckoutURL: "https://pay.example/pre-new", Status: "pending"}, nil)

	handler := NewContractPlanHandler(f.deps, plans, 2*time.Hour)
	handler.now = fixedClock(&day0)
	result, err := handler.Handle(context.Background(), ContractPlanCommand{
		UserID: userID, Email: "ana@example.com", PlanID: plan.ID, BillingCycle: "annual", PaymentToken: "tok-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result.ReplacesSubscriptionID)
	assert.Equal(t, current.ID(), *result.ReplacesSubscriptionID)
	assert.Equal(t, domain.StatusPendingPayment, result.Status)
	assert.Equal(t, "pre-new", result.CheckoutID)
	assert.Equal(t, day0.Add(2*time.Hour), result.ExpiresAt)

	created := f.store.get(t, result.SubscriptionID)
	assert.Equal(t, domain.Money{Amount: 49900, Currency: "BRL"}, created.Price())
	assert.Equal(t, "pre-new", created.ExternalSubscriptionID())
	// The old subscription stays current until the new one is paid.
	assert.Equal(t, domain.StatusActive, f.store.get(t, current.ID()).Status())

	req := f.gateway.Calls[0].Arguments.Get(1).(domain.CreateSubscriptionRequest)
	assert.Equal(t, result.SubscriptionID.String(), req.ExternalReference)
	assert.Equal(t, "gw-plan-a", req.ExternalPlanID)
	assert.Equal(t, "tok-1", req.CardToken)
}

func TestContractPlanHandler_AuthorizedAtCreation(t *testing.T) {
	f := newFixture()
	plan := testPlan()
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)
	next := day0.AddDate(0, 1, 0)
	f.gateway.On("CreateSubscription", mock.Anything, mock.Anything).
		Return(&domain.ExternalSubscription{ID: "pre-1", Status: "authorized", NextPaymentDate: &next}, nil)

	handler := NewContractPlanHandler(f.deps, plans, 0)
	handler.now = fixedClock(&day0)
	result, err := handler.Handle(context.Background(), ContractPlanCommand{UserID: uuid.New(), PlanID: plan.ID, BillingCycle: "monthly"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, result.Status)
	assert.Equal(t, []string{domain.RoutingKeySubscriptionCreated, domain.RoutingKeySubscriptionActivated}, f.outbox.routingKeys())
}

func TestContractPlanHandler_OneOffCheckout(t *testing.T) {
	f := newFixture()
	plan := testPlan()
	plan.ExternalMonthlyPlanID = ""
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)
	f.gateway.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req domain.CreateCheckoutRequest) bool {
		return req.Price.Amount == 4990 && req.PayerEmail == "ana@example.com"
	})).Return(&domain.Checkout{ID: "pref-1", CheckoutURL: "https://pay.example/pref-1"}, nil)

	result, err := NewContractPlanHandler(f.deps, plans, 0).Handle(context.Background(), ContractPlanCommand{
		UserID: uuid.New(), Email: "ana@example.com", PlanID: plan.ID, BillingCycle: "monthly", PaymentMode: "one_off",
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", result.CheckoutID)

	created := f.store.get(t, result.SubscriptionID)
	assert.Equal(t, domain.PaymentModeOneOff, created.PaymentMode())
	assert.False(t, created.AutoRenew())
	f.gateway.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
}

func TestContractPlanHandler_GatewayFailureKeepsPendingRow(t *testing.T) {
	f := newFixture()
	plan := testPlan()
	userID := uuid.New()
	plans := new(mockPlanRepo)
	plans.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)
	f.gateway.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil, domain.ErrGatewayUnavailable)

	_, err := NewContractPlanHandler(f.deps, plans, 0).Handle(context.Background(), ContractPlanCommand{
		UserID: userID, PlanID: plan.ID, BillingCycle: "monthly",
	})
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	latest, err := f.repo.FindLatestByUserID(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.StatusPendingPayment, latest.Status())
	assert.Equal(t, []string{domain.RoutingKeySubscriptionCreated}, f.outbox.routingKeys())
}

func TestCancelSubscriptionHandler(t *testing.T) {
	t.Run("active subscription keeps access until end date", func(t *testing.T) {
		f := newFixture()
		userID := uuid.New()
		sub := f.activeSubscription(t, userID, "pre-1")
		end := *sub.EndDate()
		f.gateway.On("CancelPreapproval", mock.Anything, "pre-1").Return(domain.ErrGatewayUnavailable)

		result, err := NewCancelSubscriptionHandler(f.deps).Handle(context.Background(), CancelSubscriptionCommand{
			UserID: userID, Email: "ana@example.com", Reason: " too expensive ",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingCancellation, result.Status)
		require.NotNil(t, result.AccessUntil)
		assert.Equal(t, end, *result.AccessUntil)

		stored := f.store.get(t, sub.ID())
		assert.Equal(t, end, *stored.EndDate())
		assert.False(t, stored.AutoRenew())
		assert.Equal(t, "too expensive", stored.CancellationReason())
		assert.Equal(t, []string{domain.RoutingKeyCancellationRequested}, f.outbox.routingKeys())
		f.gateway.AssertCalled(t, "CancelPreapproval", mock.Anything, "pre-1")
	})

	t.Run("repeated request changes nothing", func(t *testing.T) {
		f := newFixture()
		userID := uuid.New()
		sub := f.activeSubscription(t, userID, "")
		_, err := sub.RequestCancellation(domain.CancellationRequest{}, day0)
		require.NoError(t, err)
		f.store.put(t, sub)

		result, err := NewCancelSubscriptionHandler(f.deps).Handle(context.Background(), CancelSubscriptionCommand{UserID: userID})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingCancellation, result.Status)
		assert.Empty(t, f.outbox.routingKeys())
	})

	t.Run("pending subscription is cancelled now", func(t *testing.T) {
		f := newFixture()
		userID := uuid.New()
		sub := f.pendingSubscription(t, userID, nil, "pre-1")
		f.gateway.On("CancelPreapproval", mock.Anything, "pre-1").Return(nil)

		result, err := NewCancelSubscriptionHandler(f.deps).Handle(context.Background(), CancelSubscriptionCommand{
			UserID: userID, Email: "ana@example.com", Reason: "changed my mind",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, result.Status)
		stored := f.store.get(t, sub.ID())
		assert.Equal(t, domain.StatusCancelled, stored.Status())
		assert.Equal(t, "changed my mind", stored.CancellationReason())
		// the confirmation email goes out for immediate cancellations too
		assert.Equal(t, []string{domain.RoutingKeySubscriptionCancelled, domain.RoutingKeyCancellationRequested}, f.outbox.routingKeys())
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		f := newFixture()
		userID := uuid.New()
		sub := f.activeSubscription(t, userID, "")
		_, err := sub.Expire(day0)
		require.NoError(t, err)
		f.store.put(t, sub)

		_, err = NewCancelSubscriptionHandler(f.deps).Handle(context.Background(), CancelSubscriptionCommand{UserID: userID})
		assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	})
}

func TestArchiveSubscriptionHandler(t *testing.T) {
	f := newFixture()
	live := f.activeSubscription(t, uuid.New(), "")
	closed := f.activeSubscription(t, uuid.New(), "")
	_, err := closed.Cancel(day0)
	require.NoError(t, err)
	f.store.put(t, closed)

	handler := NewArchiveSubscriptionHandler(f.deps)

	err = handler.Handle(context.Background(), ArchiveSubscriptionCommand{SubscriptionID: live.ID()})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, handler.Handle(context.Background(), ArchiveSubscriptionCommand{SubscriptionID: closed.ID()}))
	assert.NotNil(t, f.store.get(t, closed.ID()).DeletedAt())
	require.NoError(t, handler.Handle(context.Background(), ArchiveSubscriptionCommand{SubscriptionID: closed.ID()}))

	err = handler.Handle(context.Background(), ArchiveSubscriptionCommand{SubscriptionID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}
