package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPendingPayment      Status = "PENDING_PAYMENT"
	StatusActive              Status = "ACTIVE"
	StatusPaymentFailed       Status = "PAYMENT_FAILED"
	StatusPendingCancellation Status = "PENDING_CANCELLATION"
	StatusCancelled           Status = "CANCELLED"
	StatusExpired             Status = "EXPIRED"
	StatusReplaced            Status = "REPLACED"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingPayment, StatusActive, StatusPaymentFailed, StatusPendingCancellation,
		StatusCancelled, StatusExpired, StatusReplaced:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further lifecycle transition is expected.
// PAYMENT_FAILED is deliberately excluded: an approved charge can revive it.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusReplaced
}

// IsCurrent reports whether the status counts as the user's one live subscription.
func (s Status) IsCurrent() bool {
	return s == StatusActive || s == StatusPendingCancellation
}

// BillingCycle is the recurrence period used to compute renewal dates.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleAnnual  BillingCycle = "ANNUAL"
)

// ParseBillingCycle parses a cycle name case-insensitively.
func ParseBillingCycle(value string) (BillingCycle, error) {
	cycle := BillingCycle(strings.ToUpper(strings.TrimSpace(value)))
	if !cycle.IsValid() {
		return "", ErrInvalidBillingCycle
	}
	return cycle, nil
}

// IsValid checks if the billing cycle is known.
func (c BillingCycle) IsValid() bool {
	return c == BillingCycleMonthly || c == BillingCycleAnnual
}

// Next returns ref advanced by one calendar month or year. Day overflow is
// normalized the way time.AddDate does (Jan 31 + 1 month = Mar 3 or Mar 2).
func (c BillingCycle) Next(ref time.Time) time.Time {
	if c == BillingCycleAnnual {
		return ref.AddDate(1, 0, 0)
	}
	return ref.AddDate(0, 1, 0)
}

// PaymentMode selects how the first charge is collected.
type PaymentMode string

const (
	PaymentModeRecurring PaymentMode = "recurring"
	// PaymentModeOneOff is the legacy single checkout without a standing authorization.
	PaymentModeOneOff PaymentMode = "one_off"
)

// ParsePaymentMode defaults an empty value to recurring.
func ParsePaymentMode(value string) (PaymentMode, error) {
	switch PaymentMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", PaymentModeRecurring:
		return PaymentModeRecurring, nil
	case PaymentModeOneOff:
		return PaymentModeOneOff, nil
	default:
		return "", ErrInvalidPaymentMode
	}
}

// Gateway status strings the engine stores or reacts to.
const (
	GatewayStatusApproved    = "approved"
	GatewayStatusAuthorized  = "authorized"
	GatewayStatusPending     = "pending"
	GatewayStatusInProcess   = "in_process"
	GatewayStatusInMediation = "in_mediation"
	GatewayStatusRejected    = "rejected"
	GatewayStatusCancelled   = "cancelled"
	GatewayStatusRefunded    = "refunded"
	GatewayStatusChargedBack = "charged_back"
	GatewayStatusPaused      = "paused"
)

// PaymentOutcome is the engine's reading of a gateway payment status.
type PaymentOutcome int

const (
	// OutcomeInformational statuses are stored without a state transition.
	OutcomeInformational PaymentOutcome = iota
	OutcomeApproved
	OutcomeFailed
)

func (o PaymentOutcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeFailed:
		return "failed"
	default:
		return "informational"
	}
}

// ClassifyOneOffPayment reads the status of a single checkout payment.
// An authorized but uncaptured payment is not money yet.
func ClassifyOneOffPayment(status string) PaymentOutcome {
	switch NormalizeGatewayStatus(status) {
	case GatewayStatusApproved:
		return OutcomeApproved
	case GatewayStatusRejected, GatewayStatusCancelled, GatewayStatusRefunded, GatewayStatusChargedBack:
		return OutcomeFailed
	default:
		return OutcomeInformational
	}
}

// ClassifyInvoicePayment reads the status of a recurring charge.
func ClassifyInvoicePayment(status string) PaymentOutcome {
	switch NormalizeGatewayStatus(status) {
	case GatewayStatusApproved, GatewayStatusAuthorized:
		return OutcomeApproved
	case GatewayStatusRejected, GatewayStatusCancelled:
		return OutcomeFailed
	default:
		return OutcomeInformational
	}
}

// NormalizeGatewayStatus lowercases and trims a reported status.
func NormalizeGatewayStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
