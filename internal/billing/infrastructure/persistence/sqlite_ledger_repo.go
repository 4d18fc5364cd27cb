package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteWebhookLedger implements domain.WebhookLedger on the webhook_events table.
type SQLiteWebhookLedger struct {
	db *sql.DB
}

// NewSQLiteWebhookLedger creates a new SQLite ledger.
func NewSQLiteWebhookLedger(db *sql.DB) *SQLiteWebhookLedger {
	return &SQLiteWebhookLedger{db: db}
}

// Claim inserts the entry unless its key already exists.
func (l *SQLiteWebhookLedger) Claim(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	var subscriptionID sql.NullString
	if entry.SubscriptionID != uuid.Nil {
		subscriptionID = sql.NullString{String: entry.SubscriptionID.String(), Valid: true}
	}

	res, err := sharedPersistence.SQLiteExecutor(ctx, l.db).ExecContext(ctx, `
		INSERT INTO webhook_events (key, provider, event_type, resource_id, subscription_id, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		entry.Key, entry.Provider, entry.EventType, entry.ResourceID, subscriptionID,
		sharedPersistence.FormatSQLiteTime(entry.ReceivedAt),
	)
	if err != nil {
		return false, fmt.Errorf("claim webhook event %s: %w", entry.Key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
