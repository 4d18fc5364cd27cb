package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/felixgeelhaar/memberly/adapter/api"
	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/application/queries"
	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGateway serves whatever state the test last set for a resource.
type scriptedGateway struct {
	mu           sync.Mutex
	payments     map[string]domain.Payment
	preapprovals map[string]domain.Preapproval
	cancelled    []string
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		payments:     map[string]domain.Payment{},
		preapprovals: map[string]domain.Preapproval{},
	}
}

func (g *scriptedGateway) setPayment(p domain.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

func (g *scriptedGateway) setPreapproval(p domain.Preapproval) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.preapprovals[p.ID] = p
}

func (g *scriptedGateway) CreateSubscription(context.Context, domain.CreateSubscriptionRequest) (*domain.ExternalSubscription, error) {
	return nil, domain.ErrGatewayUnavailable
}

func (g *scriptedGateway) CreateCheckout(context.Context, domain.CreateCheckoutRequest) (*domain.Checkout, error) {
	return nil, domain.ErrGatewayUnavailable
}

func (g *scriptedGateway) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return nil, domain.ErrGatewayUnavailable
	}
	return &p, nil
}

func (g *scriptedGateway) GetPreapproval(_ context.Context, id string) (*domain.Preapproval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.preapprovals[id]
	if !ok {
		return nil, domain.ErrGatewayUnavailable
	}
	return &p, nil
}

func (g *scriptedGateway) CancelPreapproval(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *scriptedGateway) GetAuthorizedPayment(context.Context, string) (*domain.AuthorizedPayment, error) {
	return nil, domain.ErrGatewayUnavailable
}

// intakeHandler serves the webhook route on the container's SQLite stores.
func intakeHandler(c *Container, gw domain.PaymentGateway) http.Handler {
	deps := commands.Dependencies{
		Subscriptions: c.SubscriptionRepo,
		Ledger:        c.WebhookLedger,
		Outbox:        c.OutboxRepo,
		UnitOfWork:    c.UnitOfWork,
		Locker:        c.Locker,
		Gateway:       gw,
		RetryPolicy:   domain.NewRetryPolicy(3),
	}
	dispatcher := webhooks.NewDispatcher(webhooks.Processors{
		Authorization: commands.NewProcessAuthorizationHandler(deps),
		Payment:       commands.NewProcessPaymentHandler(deps),
		Invoice:       commands.NewProcessInvoiceHandler(deps),
	}, nil)
	return api.NewServer(api.DefaultServerConfig(), api.NewWebhookHandler(dispatcher, nil), c.Health, nil).Handler()
}

func postQueryNotification(t *testing.T, h http.Handler, query string) webhooks.Outcome {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway?"+query, http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Outcome webhooks.Outcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Outcome
}

// pendingFor contracts a plan for a fresh user; the unconfigured gateway
// leaves the subscription pending.
func pendingFor(t *testing.T, c *Container, plan *domain.Plan) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	_, err := c.ContractPlanHandler.Handle(ctx, commands.ContractPlanCommand{
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: "monthly",
	})
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	dto, err := c.GetUserPlanHandler.Handle(ctx, queries.GetUserPlanQuery{UserID: userID})
	require.NoError(t, err)
	require.Equal(t, string(domain.StatusPendingPayment), dto.Status)
	return userID, dto.SubscriptionID
}

func userStatus(t *testing.T, c *Container, userID uuid.UUID) string {
	t.Helper()
	dto, err := c.GetUserPlanHandler.Handle(context.Background(), queries.GetUserPlanQuery{UserID: userID})
	require.NoError(t, err)
	return dto.Status
}

// TestWebhookIntake_QueryOnlyNotifications sends notifications that carry
// only a resource in the query string, as the gateway does for some topics.
func TestWebhookIntake_QueryOnlyNotifications(t *testing.T) {
	ctx := context.Background()
	c := newLocalContainer(t, localConfig(t))
	plan := &domain.Plan{
		ID:                    uuid.New(),
		Name:                  "Pro",
		MonthlyPrice:          4990,
		Currency:              "BRL",
		Active:                true,
		ExternalMonthlyPlanID: "gw-plan-m",
	}
	require.NoError(t, c.PlanCatalog.Save(ctx, plan))

	gw := newScriptedGateway()
	h := intakeHandler(c, gw)

	t.Run("payment moves from pending to approved", func(t *testing.T) {
		userID, subID := pendingFor(t, c, plan)

		gw.setPayment(domain.Payment{ID: "pay-1", Status: "pending", ExternalReference: subID.String()})
		assert.Equal(t, webhooks.OutcomeProcessed, postQueryNotification(t, h, "topic=payment&id=pay-1"))
		assert.Equal(t, string(domain.StatusPendingPayment), userStatus(t, c, userID))

		gw.setPayment(domain.Payment{ID: "pay-1", Status: "approved", ExternalReference: subID.String()})
		assert.Equal(t, webhooks.OutcomeProcessed, postQueryNotification(t, h, "topic=payment&id=pay-1"))
		assert.Equal(t, string(domain.StatusActive), userStatus(t, c, userID))

		assert.Equal(t, webhooks.OutcomeDuplicate, postQueryNotification(t, h, "topic=payment&id=pay-1"))
		assert.Equal(t, string(domain.StatusActive), userStatus(t, c, userID))
	})

	t.Run("authorization moves from authorized to cancelled", func(t *testing.T) {
		userID, subID := pendingFor(t, c, plan)

		gw.setPreapproval(domain.Preapproval{ID: "pre-1", Status: "authorized", ExternalReference: subID.String()})
		assert.Equal(t, webhooks.OutcomeProcessed, postQueryNotification(t, h, "type=subscription_preapproval&data.id=pre-1"))
		assert.Equal(t, string(domain.StatusActive), userStatus(t, c, userID))

		gw.setPreapproval(domain.Preapproval{ID: "pre-1", Status: "cancelled", ExternalReference: subID.String()})
		assert.Equal(t, webhooks.OutcomeProcessed, postQueryNotification(t, h, "type=subscription_preapproval&data.id=pre-1"))
		assert.Equal(t, string(domain.StatusCancelled), userStatus(t, c, userID))
	})
}
