package domain

import (
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/memberly/internal/shared/domain"
	"github.com/google/uuid"
)

// PaymentRecord is what the engine keeps about one gateway charge.
type PaymentRecord struct {
	PaymentID    string
	Status       string
	StatusDetail string
	Method       string
	PaidAt       *time.Time
}

// NewSubscriptionParams holds the inputs for a new subscription.
type NewSubscriptionParams struct {
	UserID       uuid.UUID
	PlanID       uuid.UUID
	BillingCycle BillingCycle
	Price        Money
	PaymentMode  PaymentMode
	// Replaces is the user's current subscription, superseded once this one activates.
	Replaces *Subscription
}

// CancellationRequest carries the user's reason and where to confirm it.
type CancellationRequest struct {
	Reason       string
	ContactEmail string
}

// Subscription is a user's commercial commitment to a plan for a billing cycle.
type Subscription struct {
	sharedDomain.BaseAggregateRoot
	userID                  uuid.UUID
	planID                  uuid.UUID
	replacesSubscriptionID  *uuid.UUID
	billingCycle            BillingCycle
	price                   Money
	paymentMode             PaymentMode
	status                  Status
	startDate               *time.Time
	endDate                 *time.Time
	nextPaymentDate         *time.Time
	externalSubscriptionID  string
	externalPaymentID       string
	paymentStatus           string
	paymentStatusDetail     string
	paymentMethod           string
	lastPaymentAt           *time.Time
	retryCount              int
	autoRenew               bool
	cancellationRequestedAt *time.Time
	cancellationReason      string
	deletedAt               *time.Time
}

// NewSubscription creates a PENDING_PAYMENT subscription. The price is fixed
// here and never recomputed from the plan.
func NewSubscription(p NewSubscriptionParams, now time.Time) (*Subscription, error) {
	if !p.BillingCycle.IsValid() {
		return nil, ErrInvalidBillingCycle
	}
	if !p.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	mode := p.PaymentMode
	if mode == "" {
		mode = PaymentModeRecurring
	}
	if mode != PaymentModeRecurring && mode != PaymentModeOneOff {
		return nil, ErrInvalidPaymentMode
	}

	s := &Subscription{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		userID:            p.UserID,
		planID:            p.PlanID,
		billingCycle:      p.BillingCycle,
		price:             p.Price,
		paymentMode:       mode,
		status:            StatusPendingPayment,
		autoRenew:         mode == PaymentModeRecurring,
	}

	if p.Replaces != nil {
		if p.Replaces.UserID() != p.UserID {
			return nil, ErrForeignReplacement
		}
		id := p.Replaces.ID()
		s.replacesSubscriptionID = &id
	}

	s.AddDomainEvent(NewSubscriptionCreated(s))
	return s, nil
}

// LinkExternalSubscription stores the gateway preapproval handle.
func (s *Subscription) LinkExternalSubscription(externalID, gatewayStatus string, now time.Time) {
	if externalID != "" {
		s.externalSubscriptionID = externalID
	}
	if gatewayStatus != "" {
		s.paymentStatus = gatewayStatus
	}
	s.TouchAt(now)
}

// RecordGatewayStatus stores a reported status without changing the lifecycle.
func (s *Subscription) RecordGatewayStatus(status, detail string, now time.Time) {
	if status != "" {
		s.paymentStatus = status
	}
	s.paymentStatusDetail = detail
	s.TouchAt(now)
}

// RecordPayment stores the audit fields of a gateway charge.
func (s *Subscription) RecordPayment(rec PaymentRecord, now time.Time) {
	if rec.PaymentID != "" {
		s.externalPaymentID = rec.PaymentID
	}
	if rec.Method != "" {
		s.paymentMethod = rec.Method
	}
	if rec.PaidAt != nil {
		paidAt := rec.PaidAt.UTC()
		s.lastPaymentAt = &paidAt
	}
	s.RecordGatewayStatus(rec.Status, rec.StatusDetail, now)
}

// Activate starts the paid period at now. Activating an already current
// subscription is a no-op. The returned flag tells whether the status changed.
func (s *Subscription) Activate(now time.Time, nextPaymentDate *time.Time) (bool, error) {
	switch s.status {
	case StatusActive, StatusPendingCancellation:
		return false, nil
	case StatusPendingPayment, StatusPaymentFailed:
	default:
		return false, TransitionError("activate", s.status)
	}

	start := now.UTC()
	end := s.billingCycle.Next(start)
	if s.endDate != nil && s.endDate.After(end) {
		end = *s.endDate
	}
	s.startDate = &start
	s.endDate = &end
	s.nextPaymentDate = pickNextPayment(nextPaymentDate, end)
	s.retryCount = 0
	s.status = StatusActive
	s.TouchAt(now)

	s.AddDomainEvent(NewSubscriptionActivated(s))
	return true, nil
}

// ApplyRenewal extends the paid period by one cycle from the current end date,
// so a late webhook never shortens what the user paid for. It reports whether
// the subscription was not ACTIVE before.
func (s *Subscription) ApplyRenewal(now time.Time, nextPaymentDate *time.Time) (bool, error) {
	switch s.status {
	case StatusActive, StatusPaymentFailed, StatusPendingPayment:
	default:
		return false, TransitionError("renew", s.status)
	}

	previous := s.status
	base := now.UTC()
	if s.endDate != nil {
		base = *s.endDate
	}
	end := s.billingCycle.Next(base)
	if s.startDate == nil {
		start := now.UTC()
		s.startDate = &start
	}
	s.endDate = &end
	s.nextPaymentDate = pickNextPayment(nextPaymentDate, end)
	s.retryCount = 0
	s.status = StatusActive
	s.TouchAt(now)

	s.AddDomainEvent(NewSubscriptionRenewed(s, previous))
	return previous != StatusActive, nil
}

// RecordPaymentFailure counts a failed charge against the policy. The status
// flips to PAYMENT_FAILED when the threshold is reached; further failures keep
// counting. It reports whether this call flipped the status.
func (s *Subscription) RecordPaymentFailure(policy RetryPolicy, now time.Time) (bool, error) {
	switch s.status {
	case StatusPendingPayment, StatusPaymentFailed, StatusActive:
	default:
		return false, TransitionError("record a failed charge on", s.status)
	}

	s.retryCount++
	exhausted := policy.Exhausted(s.retryCount)
	flipped := exhausted && s.status != StatusPaymentFailed
	if flipped {
		s.status = StatusPaymentFailed
	}
	s.TouchAt(now)

	s.AddDomainEvent(NewPaymentFailed(s, exhausted))
	return flipped, nil
}

// Pause records that the gateway stopped charging. The subscription returns to
// PENDING_PAYMENT until a new authorization or charge arrives.
func (s *Subscription) Pause(now time.Time) (bool, error) {
	switch s.status {
	case StatusActive, StatusPaymentFailed, StatusPendingPayment:
	default:
		return false, TransitionError("pause", s.status)
	}

	changed := s.status != StatusPendingPayment || s.paymentStatus != GatewayStatusPaused
	s.status = StatusPendingPayment
	s.paymentStatus = GatewayStatusPaused
	s.TouchAt(now)
	return changed, nil
}

// RequestCancellation stops renewal and keeps access until the current end
// date. The sweep finalizes it.
func (s *Subscription) RequestCancellation(req CancellationRequest, now time.Time) (bool, error) {
	switch s.status {
	case StatusPendingCancellation:
		return false, nil
	case StatusActive:
	default:
		return false, TransitionError("schedule cancellation of", s.status)
	}

	requestedAt := now.UTC()
	s.status = StatusPendingCancellation
	s.autoRenew = false
	s.cancellationRequestedAt = &requestedAt
	s.cancellationReason = strings.TrimSpace(req.Reason)
	s.TouchAt(now)

	s.AddDomainEvent(NewCancellationRequested(s, req.ContactEmail))
	return true, nil
}

// Cancel ends the subscription. The end date is pulled forward to now but never
// pushed later. Terminal subscriptions are left untouched.
func (s *Subscription) Cancel(now time.Time) (bool, error) {
	if s.status.IsTerminal() {
		return false, nil
	}

	now = now.UTC()
	if s.endDate == nil || s.endDate.After(now) {
		s.endDate = &now
	}
	s.status = StatusCancelled
	s.paymentStatus = GatewayStatusCancelled
	s.autoRenew = false
	s.nextPaymentDate = nil
	s.TouchAt(now)

	s.AddDomainEvent(NewSubscriptionCancelled(s))
	return true, nil
}

// CancelNow ends, at the user's request, a subscription that never had a
// paid period or whose payments failed. The confirmation event carries no
// access date since access ends immediately.
func (s *Subscription) CancelNow(req CancellationRequest, now time.Time) (bool, error) {
	switch s.status {
	case StatusCancelled:
		return false, nil
	case StatusPendingPayment, StatusPaymentFailed:
	default:
		return false, TransitionError("cancel immediately", s.status)
	}

	requestedAt := now.UTC()
	s.cancellationRequestedAt = &requestedAt
	s.cancellationReason = strings.TrimSpace(req.Reason)
	if _, err := s.Cancel(now); err != nil {
		return false, err
	}

	event := NewCancellationRequested(s, req.ContactEmail)
	event.Immediate = true
	event.AccessUntil = nil
	s.AddDomainEvent(event)
	return true, nil
}

// Expire closes an ACTIVE subscription whose paid period ran out.
func (s *Subscription) Expire(now time.Time) (bool, error) {
	switch s.status {
	case StatusExpired:
		return false, nil
	case StatusActive:
	default:
		return false, TransitionError("expire", s.status)
	}

	s.status = StatusExpired
	s.autoRenew = false
	s.nextPaymentDate = nil
	s.TouchAt(now)

	s.AddDomainEvent(NewSubscriptionExpired(s))
	return true, nil
}

// Supersede marks the subscription REPLACED by another one and ends it now.
// A subscription that already reached a terminal state never reverts.
// Explicit is true when by names this subscription as the one it replaces;
// only then may a PENDING_PAYMENT subscription (e.g. a paused one) be ended.
func (s *Subscription) Supersede(by uuid.UUID, explicit bool, now time.Time) (bool, error) {
	switch {
	case s.status.IsTerminal():
		return false, nil
	case s.status == StatusPendingPayment && !explicit:
		return false, TransitionError("replace", s.status)
	}

	now = now.UTC()
	s.status = StatusReplaced
	s.endDate = &now
	s.autoRenew = false
	s.nextPaymentDate = nil
	s.TouchAt(now)

	s.AddDomainEvent(NewSubscriptionReplaced(s, by))
	return true, nil
}

// SoftDelete hides a closed subscription while keeping it for audit.
func (s *Subscription) SoftDelete(now time.Time) (bool, error) {
	if s.deletedAt != nil {
		return false, nil
	}
	if !s.status.IsTerminal() {
		return false, TransitionError("archive", s.status)
	}
	deletedAt := now.UTC()
	s.deletedAt = &deletedAt
	s.TouchAt(now)
	return true, nil
}

// IsDueForCancellation reports whether a scheduled cancellation has reached its end date.
func (s *Subscription) IsDueForCancellation(now time.Time) bool {
	return s.status == StatusPendingCancellation && s.endDate != nil && !s.endDate.After(now)
}

// IsDueForExpiration reports whether an ACTIVE subscription ran out without renewal.
func (s *Subscription) IsDueForExpiration(now time.Time) bool {
	if s.status != StatusActive || s.endDate == nil || s.endDate.After(now) {
		return false
	}
	return !s.autoRenew || s.paymentStatus == GatewayStatusCancelled
}

func pickNextPayment(reported *time.Time, fallback time.Time) *time.Time {
	next := fallback
	if reported != nil && !reported.IsZero() {
		next = reported.UTC()
	}
	return &next
}

// Getters

func (s *Subscription) UserID() uuid.UUID                   { return s.userID }
func (s *Subscription) PlanID() uuid.UUID                   { return s.planID }
func (s *Subscription) ReplacesSubscriptionID() *uuid.UUID  { return s.replacesSubscriptionID }
func (s *Subscription) BillingCycle() BillingCycle          { return s.billingCycle }
func (s *Subscription) Price() Money                        { return s.price }
func (s *Subscription) PaymentMode() PaymentMode            { return s.paymentMode }
func (s *Subscription) Status() Status                      { return s.status }
func (s *Subscription) StartDate() *time.Time               { return s.startDate }
func (s *Subscription) EndDate() *time.Time                 { return s.endDate }
func (s *Subscription) NextPaymentDate() *time.Time         { return s.nextPaymentDate }
func (s *Subscription) ExternalSubscriptionID() string      { return s.externalSubscriptionID }
func (s *Subscription) ExternalPaymentID() string           { return s.externalPaymentID }
func (s *Subscription) PaymentStatus() string               { return s.paymentStatus }
func (s *Subscription) PaymentStatusDetail() string         { return s.paymentStatusDetail }
func (s *Subscription) PaymentMethod() string               { return s.paymentMethod }
func (s *Subscription) LastPaymentAt() *time.Time           { return s.lastPaymentAt }
func (s *Subscription) RetryCount() int                     { return s.retryCount }
func (s *Subscription) AutoRenew() bool                     { return s.autoRenew }
func (s *Subscription) CancellationRequestedAt() *time.Time { return s.cancellationRequestedAt }
func (s *Subscription) CancellationReason() string          { return s.cancellationReason }
func (s *Subscription) DeletedAt() *time.Time               { return s.deletedAt }

// SubscriptionState is the flat persisted form of a subscription.
type SubscriptionState struct {
	ID                      uuid.UUID
	UserID                  uuid.UUID
	PlanID                  uuid.UUID
	ReplacesSubscriptionID  *uuid.UUID
	BillingCycle            BillingCycle
	Price                   Money
	PaymentMode             PaymentMode
	Status                  Status
	StartDate               *time.Time
	EndDate                 *time.Time
	NextPaymentDate         *time.Time
	ExternalSubscriptionID  string
	ExternalPaymentID       string
	PaymentStatus           string
	PaymentStatusDetail     string
	PaymentMethod           string
	LastPaymentAt           *time.Time
	RetryCount              int
	AutoRenew               bool
	CancellationRequestedAt *time.Time
	CancellationReason      string
	DeletedAt               *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Version                 int
}

// State returns the persisted form of the subscription.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState{
		ID:                      s.ID(),
		UserID:                  s.userID,
		PlanID:                  s.planID,
		ReplacesSubscriptionID:  s.replacesSubscriptionID,
		BillingCycle:            s.billingCycle,
		Price:                   s.price,
		PaymentMode:             s.paymentMode,
		Status:                  s.status,
		StartDate:               s.startDate,
		EndDate:                 s.endDate,
		NextPaymentDate:         s.nextPaymentDate,
		ExternalSubscriptionID:  s.externalSubscriptionID,
		ExternalPaymentID:       s.externalPaymentID,
		PaymentStatus:           s.paymentStatus,
		PaymentStatusDetail:     s.paymentStatusDetail,
		PaymentMethod:           s.paymentMethod,
		LastPaymentAt:           s.lastPaymentAt,
		RetryCount:              s.retryCount,
		AutoRenew:               s.autoRenew,
		CancellationRequestedAt: s.cancellationRequestedAt,
		CancellationReason:      s.cancellationReason,
		DeletedAt:               s.deletedAt,
		CreatedAt:               s.CreatedAt(),
		UpdatedAt:               s.UpdatedAt(),
		Version:                 s.Version(),
	}
}

// RehydrateSubscription recreates a subscription from persisted state.
func RehydrateSubscription(st SubscriptionState) *Subscription {
	entity := sharedDomain.RehydrateBaseEntity(st.ID, st.CreatedAt, st.UpdatedAt)
	mode := st.PaymentMode
	if mode == "" {
		mode = PaymentModeRecurring
	}
	return &Subscription{
		BaseAggregateRoot:       sharedDomain.RehydrateBaseAggregateRoot(entity, st.Version),
		userID:                  st.UserID,
		planID:                  st.PlanID,
		replacesSubscriptionID:  st.ReplacesSubscriptionID,
		billingCycle:            st.BillingCycle,
		price:                   st.Price,
		paymentMode:             mode,
		status:                  st.Status,
		startDate:               st.StartDate,
		endDate:                 st.EndDate,
		nextPaymentDate:         st.NextPaymentDate,
		externalSubscriptionID:  st.ExternalSubscriptionID,
		externalPaymentID:       st.ExternalPaymentID,
		paymentStatus:           st.PaymentStatus,
		paymentStatusDetail:     st.PaymentStatusDetail,
		paymentMethod:           st.PaymentMethod,
		lastPaymentAt:           st.LastPaymentAt,
		retryCount:              st.RetryCount,
		autoRenew:               st.AutoRenew,
		cancellationRequestedAt: st.CancellationRequestedAt,
		cancellationReason:      st.CancellationReason,
		deletedAt:               st.DeletedAt,
	}
}

var privilegedRoles = map[string]struct{}{
	"admin":     {},
	"moderator": {},
}

// IsPrivilegedRole reports whether role belongs to staff, who cannot hold subscriptions.
func IsPrivilegedRole(role string) bool {
	_, ok := privilegedRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}
