package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/memberly/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "Subscription"

// Routing keys for subscription events.
const (
	RoutingKeySubscriptionCreated   = "billing.subscription.created"
	RoutingKeySubscriptionActivated = "billing.subscription.activated"
	RoutingKeySubscriptionRenewed   = "billing.subscription.renewed"
	RoutingKeyPaymentFailed         = "billing.subscription.payment_failed"
	RoutingKeyCancellationRequested = "billing.subscription.cancellation_requested"
	RoutingKeySubscriptionCancelled = "billing.subscription.cancelled"
	RoutingKeySubscriptionExpired   = "billing.subscription.expired"
	RoutingKeySubscriptionReplaced  = "billing.subscription.replaced"
)

// SubscriptionCreated is emitted when a subscription is contracted.
type SubscriptionCreated struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	UserID         uuid.UUID    `json:"user_id"`
	PlanID         uuid.UUID    `json:"plan_id"`
	BillingCycle   BillingCycle `json:"billing_cycle"`
	Price          Money        `json:"price"`
	Replaces       *uuid.UUID   `json:"replaces_subscription_id,omitempty"`
}

// NewSubscriptionCreated creates a SubscriptionCreated event.
func NewSubscriptionCreated(s *Subscription) *SubscriptionCreated {
	return &SubscriptionCreated{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionCreated, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PlanID:         s.PlanID(),
		BillingCycle:   s.BillingCycle(),
		Price:          s.Price(),
		Replaces:       s.ReplacesSubscriptionID(),
	}
}

// SubscriptionActivated is emitted when a subscription reaches ACTIVE from a
// pending or failed state.
type SubscriptionActivated struct {
	sharedDomain.BaseEvent
	SubscriptionID  uuid.UUID  `json:"subscription_id"`
	UserID          uuid.UUID  `json:"user_id"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
}

// NewSubscriptionActivated creates a SubscriptionActivated event.
func NewSubscriptionActivated(s *Subscription) *SubscriptionActivated {
	return &SubscriptionActivated{
		BaseEvent:       sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionActivated, s.UpdatedAt()),
		SubscriptionID:  s.ID(),
		UserID:          s.UserID(),
		StartDate:       s.StartDate(),
		EndDate:         s.EndDate(),
		NextPaymentDate: s.NextPaymentDate(),
	}
}

// SubscriptionRenewed is emitted when a recurring charge extends the paid period.
type SubscriptionRenewed struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	UserID         uuid.UUID  `json:"user_id"`
	PreviousStatus Status     `json:"previous_status"`
	EndDate        *time.Time `json:"end_date"`
}

// NewSubscriptionRenewed creates a SubscriptionRenewed event.
func NewSubscriptionRenewed(s *Subscription, previous Status) *SubscriptionRenewed {
	return &SubscriptionRenewed{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionRenewed, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PreviousStatus: previous,
		EndDate:        s.EndDate(),
	}
}

// PaymentFailed is emitted for every failed charge.
type PaymentFailed struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	RetryCount     int       `json:"retry_count"`
	Exhausted      bool      `json:"exhausted"`
}

// NewPaymentFailed creates a PaymentFailed event.
func NewPaymentFailed(s *Subscription, exhausted bool) *PaymentFailed {
	return &PaymentFailed{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeyPaymentFailed, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		RetryCount:     s.RetryCount(),
		Exhausted:      exhausted,
	}
}

// CancellationRequested is emitted when a user cancels. It drives the
// confirmation email. Immediate is set when access ended at once.
type CancellationRequested struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	UserID         uuid.UUID  `json:"user_id"`
	ContactEmail   string     `json:"contact_email,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	AccessUntil    *time.Time `json:"access_until,omitempty"`
	Immediate      bool       `json:"immediate,omitempty"`
}

// NewCancellationRequested creates a CancellationRequested event.
func NewCancellationRequested(s *Subscription, contactEmail string) *CancellationRequested {
	return &CancellationRequested{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeyCancellationRequested, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		ContactEmail:   contactEmail,
		Reason:         s.CancellationReason(),
		AccessUntil:    s.EndDate(),
	}
}

// SubscriptionCancelled is emitted when a subscription reaches CANCELLED.
type SubscriptionCancelled struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	UserID         uuid.UUID  `json:"user_id"`
	EndDate        *time.Time `json:"end_date"`
}

// NewSubscriptionCancelled creates a SubscriptionCancelled event.
func NewSubscriptionCancelled(s *Subscription) *SubscriptionCancelled {
	return &SubscriptionCancelled{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionCancelled, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		EndDate:        s.EndDate(),
	}
}

// SubscriptionExpired is emitted when an ACTIVE subscription runs out.
type SubscriptionExpired struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	UserID         uuid.UUID  `json:"user_id"`
	EndDate        *time.Time `json:"end_date"`
}

// NewSubscriptionExpired creates a SubscriptionExpired event.
func NewSubscriptionExpired(s *Subscription) *SubscriptionExpired {
	return &SubscriptionExpired{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionExpired, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		EndDate:        s.EndDate(),
	}
}

// SubscriptionReplaced is emitted when a newer subscription supersedes this one.
type SubscriptionReplaced struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReplacedBy     uuid.UUID `json:"replaced_by"`
}

// NewSubscriptionReplaced creates a SubscriptionReplaced event.
func NewSubscriptionReplaced(s *Subscription, by uuid.UUID) *SubscriptionReplaced {
	return &SubscriptionReplaced{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionReplaced, s.UpdatedAt()),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		ReplacedBy:     by,
	}
}
