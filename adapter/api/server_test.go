package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, e webhooks.Event) (webhooks.Outcome, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(webhooks.Outcome), args.Error(1)
}

func newTestServer(d EventDispatcher, health *observability.HealthRegistry) http.Handler {
	return NewServer(DefaultServerConfig(), NewWebhookHandler(d, nil), health, nil).Handler()
}

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookIntake_Outcomes(t *testing.T) {
	event := webhooks.Event{ID: "12345", Type: webhooks.TypePayment, Action: "payment.updated", DataID: "987"}
	body := `{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"987"}}`

	for _, outcome := range []webhooks.Outcome{webhooks.OutcomeProcessed, webhooks.OutcomeDuplicate, webhooks.OutcomeIgnored} {
		t.Run(string(outcome), func(t *testing.T) {
			d := new(mockDispatcher)
			d.On("Dispatch", mock.Anything, event).Return(outcome, nil).Once()

			rec := post(t, newTestServer(d, nil), "/webhooks/gateway", body)

			assert.Equal(t, http.StatusOK, rec.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(outcome), resp["outcome"])
			d.AssertExpectations(t)
		})
	}
}

func TestWebhookIntake_CorrelatesByNotificationID(t *testing.T) {
	d := new(mockDispatcher)
	d.On("Dispatch", mock.MatchedBy(func(ctx context.Context) bool {
		return observability.CorrelationIDFromContext(ctx) == "n-1" && observability.RequestIDFromContext(ctx) != ""
	}), mock.Anything).Return(webhooks.OutcomeProcessed, nil).Once()

	rec := post(t, newTestServer(d, nil), "/webhooks/gateway", `{"id":"n-1","type":"payment","data":{"id":1}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	d.AssertExpectations(t)
}

func TestWebhookIntake_QueryStringNotification(t *testing.T) {
	d := new(mockDispatcher)
	d.On("Dispatch", mock.Anything, webhooks.Event{Type: webhooks.TypePreapproval, DataID: "pre-1"}).
		Return(webhooks.OutcomeProcessed, nil).Once()

	rec := post(t, newTestServer(d, nil), "/webhooks/gateway?type=subscription_preapproval&data.id=pre-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	d.AssertExpectations(t)
}

func TestWebhookIntake_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"gateway down is redelivered", fmt.Errorf("fetch payment: %w", domain.ErrGatewayUnavailable), http.StatusBadGateway},
		{"unknown subscription is redelivered", domain.ErrSubscriptionNotFound, http.StatusNotFound},
		{"stale write is redelivered", domain.ErrStaleSubscription, http.StatusConflict},
		{"internal error is generic", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(mockDispatcher)
			d.On("Dispatch", mock.Anything, mock.Anything).Return(webhooks.Outcome(""), tt.err)

			rec := post(t, newTestServer(d, nil), "/webhooks/gateway", `{"id":"1","type":"payment","data":{"id":"2"}}`)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "connection reset")
			}
		})
	}
}

func TestWebhookIntake_Malformed(t *testing.T) {
	d := new(mockDispatcher)
	rec := post(t, newTestServer(d, nil), "/webhooks/gateway", `{"action":"payment.created"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestWebhookIntake_OversizedBody(t *testing.T) {
	d := new(mockDispatcher)
	body := `{"type":"payment","data":{"id":"1"},"pad":"` + strings.Repeat("x", MaxWebhookBody) + `"}`
	rec := post(t, newTestServer(d, nil), "/webhooks/gateway", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	health := observability.NewHealthRegistry()
	health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy,
		func(context.Context) error { return nil }))
	health.Register("redis", observability.PingChecker("redis", observability.HealthStatusDegraded,
		func(context.Context) error { return errors.New("refused") }))
	h := newTestServer(new(mockDispatcher), health)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report observability.OverallHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, observability.HealthStatusDegraded, report.Status)

	health.Register("database", observability.PingChecker("database", observability.HealthStatusUnhealthy,
		func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrorStatus(domain.TransitionError("cancel", domain.StatusExpired)))
	assert.Equal(t, http.StatusNotFound, ErrorStatus(domain.ErrPlanNotFound))
	assert.Equal(t, http.StatusForbidden, ErrorStatus(domain.ErrPermissionDenied))
	assert.Equal(t, http.StatusBadGateway, ErrorStatus(domain.ErrGatewayRejected))
	assert.Equal(t, http.StatusConflict, ErrorStatus(domain.ErrStaleSubscription))
	assert.Equal(t, http.StatusInternalServerError, ErrorStatus(errors.New("boom")))
}
