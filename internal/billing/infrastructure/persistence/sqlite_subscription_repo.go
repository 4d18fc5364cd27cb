package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

const subscriptionColumns = `
	id, user_id, plan_id, replaces_subscription_id, billing_cycle,
	price_amount, price_currency, payment_mode, status,
	start_date, end_date, next_payment_date,
	external_subscription_id, external_payment_id,
	payment_status, payment_status_detail, payment_method, last_payment_at,
	retry_count, auto_renew, cancellation_requested_at, cancellation_reason,
	deleted_at, version, created_at, updated_at`

// SQLiteSubscriptionRepository implements domain.SubscriptionRepository using SQLite.
type SQLiteSubscriptionRepository struct {
	db *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(db *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{db: db}
}

// Create inserts a new subscription.
func (r *SQLiteSubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	st := s.State()
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID.String(),
		st.UserID.String(),
		st.PlanID.String(),
		nullUUIDString(st.ReplacesSubscriptionID),
		string(st.BillingCycle),
		st.Price.Amount,
		st.Price.Currency,
		string(st.PaymentMode),
		string(st.Status),
		sharedPersistence.NullSQLiteTime(st.StartDate),
		sharedPersistence.NullSQLiteTime(st.EndDate),
		sharedPersistence.NullSQLiteTime(st.NextPaymentDate),
		st.ExternalSubscriptionID,
		st.ExternalPaymentID,
		st.PaymentStatus,
		st.PaymentStatusDetail,
		st.PaymentMethod,
		sharedPersistence.NullSQLiteTime(st.LastPaymentAt),
		st.RetryCount,
		boolToInt(st.AutoRenew),
		sharedPersistence.NullSQLiteTime(st.CancellationRequestedAt),
		st.CancellationReason,
		sharedPersistence.NullSQLiteTime(st.DeletedAt),
		st.Version,
		sharedPersistence.FormatSQLiteTime(st.CreatedAt),
		sharedPersistence.FormatSQLiteTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Update writes s when the stored version matches and bumps the version.
func (r *SQLiteSubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	st := s.State()
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)

	res, err := exec.ExecContext(ctx, `
		UPDATE subscriptions SET
			status = ?, start_date = ?, end_date = ?, next_payment_date = ?,
			external_subscription_id = ?, external_payment_id = ?,
			payment_status = ?, payment_status_detail = ?, payment_method = ?, last_payment_at = ?,
			retry_count = ?, auto_renew = ?, cancellation_requested_at = ?, cancellation_reason = ?,
			deleted_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(st.Status),
		sharedPersistence.NullSQLiteTime(st.StartDate),
		sharedPersistence.NullSQLiteTime(st.EndDate),
		sharedPersistence.NullSQLiteTime(st.NextPaymentDate),
		st.ExternalSubscriptionID,
		st.ExternalPaymentID,
		st.PaymentStatus,
		st.PaymentStatusDetail,
		st.PaymentMethod,
		sharedPersistence.NullSQLiteTime(st.LastPaymentAt),
		st.RetryCount,
		boolToInt(st.AutoRenew),
		sharedPersistence.NullSQLiteTime(st.CancellationRequestedAt),
		st.CancellationReason,
		sharedPersistence.NullSQLiteTime(st.DeletedAt),
		sharedPersistence.FormatSQLiteTime(st.UpdatedAt),
		st.ID.String(),
		st.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrStaleSubscription
	}
	s.IncrementVersion()
	return nil
}

// FindByID returns a subscription by id, including soft-deleted ones.
func (r *SQLiteSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE id = ?`, id.String())
}

// FindByIDForUpdate behaves like FindByID. SQLite transactions are serialized
// by the single connection, so the row needs no extra lock.
func (r *SQLiteSubscriptionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r *SQLiteSubscriptionRepository) FindByExternalSubscriptionID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, nil
	}
	return r.findOne(ctx, `WHERE external_subscription_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, externalID)
}

func (r *SQLiteSubscriptionRepository) FindByExternalPaymentID(ctx context.Context, paymentID string) (*domain.Subscription, error) {
	if paymentID == "" {
		return nil, nil
	}
	return r.findOne(ctx, `WHERE external_payment_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, paymentID)
}

func (r *SQLiteSubscriptionRepository) FindCurrentByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = ? AND status IN (?, ?) AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`,
		userID.String(), string(domain.StatusActive), string(domain.StatusPendingCancellation))
}

func (r *SQLiteSubscriptionRepository) FindLatestByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, userID.String())
}

func (r *SQLiteSubscriptionRepository) FindDueForCancellation(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.findMany(ctx, `WHERE status = ? AND end_date IS NOT NULL AND end_date <= ? AND deleted_at IS NULL
		ORDER BY end_date LIMIT ?`,
		string(domain.StatusPendingCancellation), sharedPersistence.FormatSQLiteTime(now), limit)
}

func (r *SQLiteSubscriptionRepository) FindDueForExpiration(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.findMany(ctx, `WHERE status = ? AND end_date IS NOT NULL AND end_date <= ? AND deleted_at IS NULL
		AND (auto_renew = 0 OR payment_status = ?)
		ORDER BY end_date LIMIT ?`,
		string(domain.StatusActive), sharedPersistence.FormatSQLiteTime(now), domain.GatewayStatusCancelled, limit)
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Subscription, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions `+where, args...)

	s, err := scanSQLiteSubscription(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteSubscriptionRepository) findMany(ctx context.Context, where string, args ...any) ([]*domain.Subscription, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		s, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		st                                      domain.SubscriptionState
		id, userID, planID                      string
		replaces                                sql.NullString
		cycle, mode, status                     string
		startDate, endDate, nextPayment         sql.NullString
		lastPaymentAt, cancelRequestedAt, delAt sql.NullString
		autoRenew                               int
		createdAt, updatedAt                    string
	)

	err := row.Scan(
		&id, &userID, &planID, &replaces, &cycle,
		&st.Price.Amount, &st.Price.Currency, &mode, &status,
		&startDate, &endDate, &nextPayment,
		&st.ExternalSubscriptionID, &st.ExternalPaymentID,
		&st.PaymentStatus, &st.PaymentStatusDetail, &st.PaymentMethod, &lastPaymentAt,
		&st.RetryCount, &autoRenew, &cancelRequestedAt, &st.CancellationReason,
		&delAt, &st.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if st.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse subscription id: %w", err)
	}
	if st.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if st.PlanID, err = uuid.Parse(planID); err != nil {
		return nil, fmt.Errorf("parse plan id: %w", err)
	}
	if replaces.Valid && replaces.String != "" {
		replacedID, err := uuid.Parse(replaces.String)
		if err != nil {
			return nil, fmt.Errorf("parse replaced subscription id: %w", err)
		}
		st.ReplacesSubscriptionID = &replacedID
	}

	st.BillingCycle = domain.BillingCycle(cycle)
	st.PaymentMode = domain.PaymentMode(mode)
	st.Status = domain.Status(status)
	st.AutoRenew = autoRenew != 0

	optional := []struct {
		src sql.NullString
		dst **time.Time
	}{
		{startDate, &st.StartDate},
		{endDate, &st.EndDate},
		{nextPayment, &st.NextPaymentDate},
		{lastPaymentAt, &st.LastPaymentAt},
		{cancelRequestedAt, &st.CancellationRequestedAt},
		{delAt, &st.DeletedAt},
	}
	for _, o := range optional {
		if *o.dst, err = sharedPersistence.ParseNullSQLiteTime(o.src); err != nil {
			return nil, err
		}
	}

	if st.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = sharedPersistence.ParseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}

	return domain.RehydrateSubscription(st), nil
}

func nullUUIDString(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
