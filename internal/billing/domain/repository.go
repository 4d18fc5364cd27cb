package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository is the Subscription Store. Finders return nil, nil
// when nothing matches and skip soft-deleted rows, except FindByID.
type SubscriptionRepository interface {
	// Create inserts a new subscription.
	Create(ctx context.Context, s *Subscription) error
	// Update writes s if the stored version still matches s.Version() and bumps
	// the version. It returns ErrStaleSubscription when no row was affected.
	Update(ctx context.Context, s *Subscription) error

	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindByIDForUpdate loads a subscription and locks its row for the rest of
	// the surrounding transaction where the store supports it.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByExternalSubscriptionID(ctx context.Context, externalID string) (*Subscription, error)
	FindByExternalPaymentID(ctx context.Context, paymentID string) (*Subscription, error)
	// FindCurrentByUserID returns the user's ACTIVE or PENDING_CANCELLATION
	// subscription, or nil when there is none.
	FindCurrentByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	// FindLatestByUserID returns the most recently created subscription of the
	// user regardless of status, or nil.
	FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// FindDueForCancellation lists PENDING_CANCELLATION subscriptions whose end date is at or before now.
	FindDueForCancellation(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	// FindDueForExpiration lists ACTIVE subscriptions past their end date that
	// will not renew: auto-renew is off or the gateway reported the authorization cancelled.
	FindDueForExpiration(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}

// PlanRepository reads the plan catalog. FindByID returns nil, nil for an
// unknown id.
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
}

// PlanCatalog is the operator-facing side of the plan store.
type PlanCatalog interface {
	PlanRepository
	// Save inserts the plan or overwrites the stored one with the same id.
	Save(ctx context.Context, plan *Plan) error
	List(ctx context.Context, activeOnly bool) ([]*Plan, error)
}

// LedgerEntry is one claimed gateway event.
type LedgerEntry struct {
	// Key is unique per effect: the gateway notification id, or a derived key
	// such as "invoice:<payment id>:approved".
	Key            string
	Provider       string
	EventType      string
	ResourceID     string
	SubscriptionID uuid.UUID
	ReceivedAt     time.Time
}

// WebhookLedger remembers which gateway events were already applied.
type WebhookLedger interface {
	// Claim records the entry. It returns false when the key was claimed
	// before. Claims made inside a unit of work disappear on rollback.
	Claim(ctx context.Context, entry LedgerEntry) (bool, error)
}
