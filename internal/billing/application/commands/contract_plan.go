package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/application"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/google/uuid"
)

// DefaultCheckoutTTL is how long a returned checkout handle stays usable.
const DefaultCheckoutTTL = 24 * time.Hour

// ContractPlanCommand contains the data needed to contract a plan.
type ContractPlanCommand struct {
	UserID       uuid.UUID
	Email        string
	Role         string
	PlanID       uuid.UUID
	BillingCycle string
	PaymentToken string
	// PaymentMode defaults to recurring.
	PaymentMode string
}

// ContractPlanResult is the checkout the caller completes at the gateway.
type ContractPlanResult struct {
	SubscriptionID         uuid.UUID
	Status                 domain.Status
	ReplacesSubscriptionID *uuid.UUID
	CheckoutID             string
	CheckoutURL            string
	ExpiresAt              time.Time
}

// ContractPlanHandler handles the ContractPlanCommand.
type ContractPlanHandler struct {
	*reconciler
	plans       domain.PlanRepository
	checkoutTTL time.Duration
}

// NewContractPlanHandler creates a new ContractPlanHandler. A non-positive
// checkoutTTL means DefaultCheckoutTTL.
func NewContractPlanHandler(deps Dependencies, plans domain.PlanRepository, checkoutTTL time.Duration) *ContractPlanHandler {
	if checkoutTTL <= 0 {
		checkoutTTL = DefaultCheckoutTTL
	}
	return &ContractPlanHandler{
		reconciler:  newReconciler(deps),
		plans:       plans,
		checkoutTTL: checkoutTTL,
	}
}

// Handle validates the request, commits a PENDING_PAYMENT subscription and
// then asks the gateway for a checkout. A gateway failure is returned but
// leaves the pending subscription in place, since the external resource may
// exist anyway.
func (h *ContractPlanHandler) Handle(ctx context.Context, cmd ContractPlanCommand) (*ContractPlanResult, error) {
	if domain.IsPrivilegedRole(cmd.Role) {
		return nil, domain.ErrPermissionDenied
	}
	cycle, err := domain.ParseBillingCycle(cmd.BillingCycle)
	if err != nil {
		return nil, err
	}
	mode, err := domain.ParsePaymentMode(cmd.PaymentMode)
	if err != nil {
		return nil, err
	}

	plan, err := h.plans.FindByID(ctx, cmd.PlanID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	if !plan.Active {
		return nil, domain.ErrPlanInactive
	}
	// Checked again under the unit of work in createPending.
	current, err := h.deps.Subscriptions.FindCurrentByUserID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	if isSameContract(current, plan, cycle) {
		return nil, domain.ErrDuplicateSubscription
	}

	price := plan.PriceFor(cycle)
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	externalPlanID := plan.ExternalPlanIDFor(cycle)
	if mode == domain.PaymentModeRecurring && externalPlanID == "" {
		return nil, domain.ErrPlanNotSynced
	}

	sub, err := h.createPending(ctx, cmd.UserID, plan, cycle, price, mode)
	if err != nil {
		return nil, err
	}
	log := h.log.With("subscription_id", sub.ID(), "user_id", cmd.UserID, "plan_id", plan.ID)

	result := &ContractPlanResult{
		SubscriptionID:         sub.ID(),
		Status:                 sub.Status(),
		ReplacesSubscriptionID: sub.ReplacesSubscriptionID(),
	}

	if mode == domain.PaymentModeOneOff {
		callCtx, cancel := h.gatewayContext(ctx)
		checkout, err := h.deps.Gateway.CreateCheckout(callCtx, domain.CreateCheckoutRequest{
			Title:             fmt.Sprintf("%s (%s)", plan.Name, cycle),
			PayerEmail:        cmd.Email,
			ExternalReference: sub.ID().String(),
			Price:             price,
		})
		cancel()
		if err != nil {
			log.WarnContext(ctx, "gateway checkout failed; subscription left pending", "error", err)
			return nil, fmt.Errorf("create checkout: %w", err)
		}
		result.CheckoutID = checkout.ID
		result.CheckoutURL = checkout.CheckoutURL
		result.ExpiresAt = h.now().UTC().Add(h.checkoutTTL)
		return result, nil
	}

	callCtx, cancel := h.gatewayContext(ctx)
	external, err := h.deps.Gateway.CreateSubscription(callCtx, domain.CreateSubscriptionRequest{
		ExternalPlanID:    externalPlanID,
		PayerEmail:        cmd.Email,
		ExternalReference: sub.ID().String(),
		CardToken:         cmd.PaymentToken,
		Reason:            plan.Name,
		Price:             price,
		BillingCycle:      cycle,
	})
	cancel()
	if err != nil {
		log.WarnContext(ctx, "gateway subscription failed; subscription left pending", "error", err)
		return nil, fmt.Errorf("create gateway subscription: %w", err)
	}

	result.CheckoutID = external.ID
	result.CheckoutURL = external.CheckoutURL
	result.ExpiresAt = h.now().UTC().Add(h.checkoutTTL)

	if external.ID == "" {
		return result, nil
	}

	authorized := domain.NormalizeGatewayStatus(external.Status) == domain.GatewayStatusAuthorized
	applied, err := h.apply(ctx, sub.ID(), delivery{eventType: "contract"}, func(s *domain.Subscription, now time.Time) (bool, error) {
		s.LinkExternalSubscription(external.ID, domain.NormalizeGatewayStatus(external.Status), now)
		if authorized {
			if _, err := s.Activate(now, external.NextPaymentDate); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("link gateway subscription: %w", err)
	}
	result.Status = applied.Status
	return result, nil
}

// createPending commits the new subscription before any gateway call.
func (h *ContractPlanHandler) createPending(ctx context.Context, userID uuid.UUID, plan *domain.Plan, cycle domain.BillingCycle, price domain.Money, mode domain.PaymentMode) (*domain.Subscription, error) {
	var sub *domain.Subscription
	err := sharedApplication.WithUnitOfWork(ctx, h.deps.UnitOfWork, func(txCtx context.Context) error {
		current, err := h.deps.Subscriptions.FindCurrentByUserID(txCtx, userID)
		if err != nil {
			return fmt.Errorf("load current subscription: %w", err)
		}
		if isSameContract(current, plan, cycle) {
			return domain.ErrDuplicateSubscription
		}

		sub, err = domain.NewSubscription(domain.NewSubscriptionParams{
			UserID:       userID,
			PlanID:       plan.ID,
			BillingCycle: cycle,
			Price:        price,
			PaymentMode:  mode,
			Replaces:     current,
		}, h.now())
		if err != nil {
			return err
		}
		if err := h.deps.Subscriptions.Create(txCtx, sub); err != nil {
			return err
		}
		return application.SaveEvents(txCtx, h.deps.Outbox, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func isSameContract(current *domain.Subscription, plan *domain.Plan, cycle domain.BillingCycle) bool {
	return current != nil && current.PlanID() == plan.ID && current.BillingCycle() == cycle
}
