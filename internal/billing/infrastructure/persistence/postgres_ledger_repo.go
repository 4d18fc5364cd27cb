package persistence

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWebhookLedger implements domain.WebhookLedger on the webhook_events table.
type PostgresWebhookLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresWebhookLedger creates a new ledger.
func NewPostgresWebhookLedger(pool *pgxpool.Pool) *PostgresWebhookLedger {
	return &PostgresWebhookLedger{pool: pool}
}

// Claim inserts the entry unless its key already exists. Two transactions
// claiming the same key serialize on the primary key; the loser sees zero rows.
func (l *PostgresWebhookLedger) Claim(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	var subscriptionID *uuid.UUID
	if entry.SubscriptionID != uuid.Nil {
		subscriptionID = &entry.SubscriptionID
	}

	tag, err := sharedPersistence.Executor(ctx, l.pool).Exec(ctx, `
		INSERT INTO webhook_events (key, provider, event_type, resource_id, subscription_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO NOTHING`,
		entry.Key, entry.Provider, entry.EventType, entry.ResourceID, subscriptionID, entry.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim webhook event %s: %w", entry.Key, err)
	}
	return tag.RowsAffected() == 1, nil
}
