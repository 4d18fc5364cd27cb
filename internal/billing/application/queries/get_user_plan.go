package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
)

// GetUserPlanQuery asks for the subscription a user currently holds.
type GetUserPlanQuery struct {
	UserID uuid.UUID
}

// UserPlanDTO is the read model of a user's subscription and its plan.
type UserPlanDTO struct {
	SubscriptionID         uuid.UUID
	PlanID                 uuid.UUID
	PlanName               string
	Benefits               []string
	BillingCycle           string
	PaymentMode            string
	Price                  domain.Money
	Status                 string
	HasAccess              bool
	AutoRenew              bool
	StartDate              *time.Time
	EndDate                *time.Time
	NextPaymentDate        *time.Time
	PaymentStatus          string
	PaymentStatusDetail    string
	PaymentMethod          string
	LastPaymentAt          *time.Time
	RetryCount             int
	CancellationReason     string
	ReplacesSubscriptionID *uuid.UUID
	CreatedAt              time.Time
}

// GetUserPlanHandler handles the GetUserPlanQuery.
type GetUserPlanHandler struct {
	subscriptions domain.SubscriptionRepository
	plans         domain.PlanRepository
}

// NewGetUserPlanHandler creates a new GetUserPlanHandler.
func NewGetUserPlanHandler(subscriptions domain.SubscriptionRepository, plans domain.PlanRepository) *GetUserPlanHandler {
	return &GetUserPlanHandler{subscriptions: subscriptions, plans: plans}
}

// Handle returns the user's current subscription, or the most recent one when
// nothing is current, so a pending or failed checkout is still visible.
func (h *GetUserPlanHandler) Handle(ctx context.Context, query GetUserPlanQuery) (*UserPlanDTO, error) {
	sub, err := h.subscriptions.FindCurrentByUserID(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	if sub == nil {
		if sub, err = h.subscriptions.FindLatestByUserID(ctx, query.UserID); err != nil {
			return nil, fmt.Errorf("load latest subscription: %w", err)
		}
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	dto := &UserPlanDTO{
		SubscriptionID:         sub.ID(),
		PlanID:                 sub.PlanID(),
		BillingCycle:           string(sub.BillingCycle()),
		PaymentMode:            string(sub.PaymentMode()),
		Price:                  sub.Price(),
		Status:                 string(sub.Status()),
		HasAccess:              sub.Status().IsCurrent(),
		AutoRenew:              sub.AutoRenew(),
		StartDate:              sub.StartDate(),
		EndDate:                sub.EndDate(),
		NextPaymentDate:        sub.NextPaymentDate(),
		PaymentStatus:          sub.PaymentStatus(),
		PaymentStatusDetail:    sub.PaymentStatusDetail(),
		PaymentMethod:          sub.PaymentMethod(),
		LastPaymentAt:          sub.LastPaymentAt(),
		RetryCount:             sub.RetryCount(),
		CancellationReason:     sub.CancellationReason(),
		ReplacesSubscriptionID: sub.ReplacesSubscriptionID(),
		CreatedAt:              sub.CreatedAt(),
	}

	// The catalog may have dropped the plan; the subscription keeps its own price.
	plan, err := h.plans.FindByID(ctx, sub.PlanID())
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan != nil {
		dto.PlanName = plan.Name
		dto.Benefits = plan.Benefits
	}

	return dto, nil
}
