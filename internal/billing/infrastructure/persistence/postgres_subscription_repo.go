package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSubscriptionRepository implements domain.SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Create inserts a new subscription.
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	st := s.State()
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		st.ID, st.UserID, st.PlanID, st.ReplacesSubscriptionID, string(st.BillingCycle),
		st.Price.Amount, st.Price.Currency, string(st.PaymentMode), string(st.Status),
		st.StartDate, st.EndDate, st.NextPaymentDate,
		st.ExternalSubscriptionID, st.ExternalPaymentID,
		st.PaymentStatus, st.PaymentStatusDetail, st.PaymentMethod, st.LastPaymentAt,
		st.RetryCount, st.AutoRenew, st.CancellationRequestedAt, st.CancellationReason,
		st.DeletedAt, st.Version, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Update writes s when the stored version matches and bumps the version.
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	st := s.State()
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE subscriptions SET
			status = $1, start_date = $2, end_date = $3, next_payment_date = $4,
			external_subscription_id = $5, external_payment_id = $6,
			payment_status = $7, payment_status_detail = $8, payment_method = $9, last_payment_at = $10,
			retry_count = $11, auto_renew = $12, cancellation_requested_at = $13, cancellation_reason = $14,
			deleted_at = $15, version = version + 1, updated_at = $16
		WHERE id = $17 AND version = $18`,
		string(st.Status), st.StartDate, st.EndDate, st.NextPaymentDate,
		st.ExternalSubscriptionID, st.ExternalPaymentID,
		st.PaymentStatus, st.PaymentStatusDetail, st.PaymentMethod, st.LastPaymentAt,
		st.RetryCount, st.AutoRenew, st.CancellationRequestedAt, st.CancellationReason,
		st.DeletedAt, st.UpdatedAt,
		st.ID, st.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleSubscription
	}
	s.IncrementVersion()
	return nil
}

// FindByID returns a subscription by id, including soft-deleted ones.
func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresSubscriptionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresSubscriptionRepository) FindByExternalSubscriptionID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, `WHERE external_subscription_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, externalID)
}

func (r *PostgresSubscriptionRepository) FindByExternalPaymentID(ctx context.Context, paymentID string) (*domain.Subscription, error) {
	if paymentID == "" {
		return nil, nil
	}
	return r.findOne(ctx, `WHERE external_payment_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, paymentID)
}

func (r *PostgresSubscriptionRepository) FindCurrentByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = $1 AND status IN ($2, $3) AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`,
		userID, string(domain.StatusActive), string(domain.StatusPendingCancellation))
}

func (r *PostgresSubscriptionRepository) FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, userID)
}

func (r *PostgresSubscriptionRepository) FindDueForCancellation(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.findMany(ctx, `WHERE status = $1 AND end_date <= $2 AND deleted_at IS NULL
		ORDER BY end_date LIMIT $3`,
		string(domain.StatusPendingCancellation), now, limit)
}

func (r *PostgresSubscriptionRepository) FindDueForExpiration(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.findMany(ctx, `WHERE status = $1 AND end_date <= $2 AND deleted_at IS NULL
		AND (auto_renew = FALSE OR payment_status = $3)
		ORDER BY end_date LIMIT $4`,
		string(domain.StatusActive), now, domain.GatewayStatusCancelled, limit)
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Subscription, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions `+where, args...)

	s, err := scanPostgresSubscription(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return s, err
}

func (r *PostgresSubscriptionRepository) findMany(ctx context.Context, where string, args ...any) ([]*domain.Subscription, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		s, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanPostgresSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		st                  domain.SubscriptionState
		cycle, mode, status string
	)
	err := row.Scan(
		&st.ID, &st.UserID, &st.PlanID, &st.ReplacesSubscriptionID, &cycle,
		&st.Price.Amount, &st.Price.Currency, &mode, &status,
		&st.StartDate, &st.EndDate, &st.NextPaymentDate,
		&st.ExternalSubscriptionID, &st.ExternalPaymentID,
		&st.PaymentStatus, &st.PaymentStatusDetail, &st.PaymentMethod, &st.LastPaymentAt,
		&st.RetryCount, &st.AutoRenew, &st.CancellationRequestedAt, &st.CancellationReason,
		&st.DeletedAt, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.BillingCycle = domain.BillingCycle(cycle)
	st.PaymentMode = domain.PaymentMode(mode)
	st.Status = domain.Status(status)
	return domain.RehydrateSubscription(st), nil
}
