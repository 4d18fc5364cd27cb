// Package application holds the billing use cases and the ports they share.
package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned when another worker holds the subscription
// lock for longer than the caller is willing to wait.
var ErrLockNotAcquired = errors.New("subscription is locked by another worker")

// SubscriptionLocker serializes reconciliation per subscription. Different
// subscriptions never block each other.
type SubscriptionLocker interface {
	// Lock blocks until the lock is held or ctx is done. The returned function
	// releases it and is safe to call once.
	Lock(ctx context.Context, subscriptionID uuid.UUID) (unlock func(), err error)
}
