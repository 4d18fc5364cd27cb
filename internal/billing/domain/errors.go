package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the billing engine wraps exactly one of
// these, so boundaries can map them with errors.Is.
var (
	ErrValidation         = errors.New("invalid request")
	ErrNotFound           = errors.New("not found")
	ErrPermission         = errors.New("permission denied")
	ErrExternalDependency = errors.New("external dependency failed")
	ErrConsistency        = errors.New("data consistency violation")
)

var (
	ErrPlanInactive          = fmt.Errorf("%w: plan is not active", ErrValidation)
	ErrDuplicateSubscription = fmt.Errorf("%w: user already has this plan and billing cycle", ErrValidation)
	ErrInvalidPrice          = fmt.Errorf("%w: plan price must be positive", ErrValidation)
	ErrPlanNotSynced         = fmt.Errorf("%w: plan has no gateway plan id for this billing cycle", ErrValidation)
	ErrInvalidBillingCycle   = fmt.Errorf("%w: invalid billing cycle", ErrValidation)
	ErrInvalidPaymentMode    = fmt.Errorf("%w: invalid payment mode", ErrValidation)
	ErrInvalidTransition     = fmt.Errorf("%w: transition not allowed from current status", ErrValidation)
	ErrForeignReplacement    = fmt.Errorf("%w: replaced subscription belongs to another user", ErrValidation)

	ErrPlanNotFound         = fmt.Errorf("%w: plan", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)

	ErrPermissionDenied = fmt.Errorf("%w: privileged roles cannot hold subscriptions", ErrPermission)

	ErrGatewayUnavailable = fmt.Errorf("%w: payment gateway unavailable", ErrExternalDependency)
	ErrGatewayRejected    = fmt.Errorf("%w: payment gateway rejected the request", ErrExternalDependency)

	ErrStaleSubscription = fmt.Errorf("%w: subscription was modified or removed concurrently", ErrConsistency)
)

// ErrDuplicateEvent signals that a gateway notification was already applied.
// It is not a failure; callers acknowledge the delivery and move on.
var ErrDuplicateEvent = errors.New("webhook event already processed")

// TransitionError adds the offending statuses to ErrInvalidTransition.
func TransitionError(action string, from Status) error {
	return fmt.Errorf("%w: cannot %s a %s subscription", ErrInvalidTransition, action, from)
}
