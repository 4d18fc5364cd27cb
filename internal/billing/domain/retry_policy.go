package domain

// DefaultMaxPaymentRetries is the number of consecutive failed charges a
// subscription tolerates before it is flagged PAYMENT_FAILED.
const DefaultMaxPaymentRetries = 3

// RetryPolicy decides when consecutive payment failures become a hard failure.
type RetryPolicy struct {
	MaxRetries int
}

// NewRetryPolicy returns a policy with maxRetries, falling back to the default
// for non-positive values.
func NewRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxPaymentRetries
	}
	return RetryPolicy{MaxRetries: maxRetries}
}

// Exhausted reports whether retryCount has reached the threshold.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	max := p.MaxRetries
	if max <= 0 {
		max = DefaultMaxPaymentRetries
	}
	return retryCount >= max
}
