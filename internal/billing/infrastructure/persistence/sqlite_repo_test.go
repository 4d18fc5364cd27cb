package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/application"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var day0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func setupBillingDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	return db
}

func seedPlan(t *testing.T, db *sql.DB) *domain.Plan {
	t.Helper()
	plan := &domain.Plan{
		ID:                    uuid.New(),
		Name:                  "Pro",
		MonthlyPrice:          4990,
		AnnualPrice:           49900,
		Currency:              "BRL",
		Benefits:              []string{"priority support"},
		Active:                true,
		ExternalMonthlyPlanID: "gw-plan-m",
		ExternalAnnualPlanID:  "gw-plan-a",
	}
	require.NoError(t, NewSQLitePlanRepository(db).Save(context.Background(), plan))
	return plan
}

func newSubscription(t *testing.T, userID uuid.UUID, plan *domain.Plan, replaces *domain.Subscription) *domain.Subscription {
	t.Helper()
	sub, err := domain.NewSubscription(domain.NewSubscriptionParams{
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: domain.BillingCycleMonthly,
		Price:        plan.PriceFor(domain.BillingCycleMonthly),
		Replaces:     replaces,
	}, day0)
	require.NoError(t, err)
	return sub
}

func TestSQLiteSubscriptionRepository_RoundTrip(t *testing.T) {
	db := setupBillingDB(t)
	plan := seedPlan(t, db)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	sub := newSubscription(t, uuid.New(), plan, nil)
	sub.LinkExternalSubscription("pre-1", "pending", day0)
	require.NoError(t, repo.Create(ctx, sub))

	next := day0.AddDate(0, 1, 0)
	_, err := sub.Activate(day0, &next)
	require.NoError(t, err)
	paidAt := day0.Add(time.Minute)
	sub.RecordPayment(domain.PaymentRecord{PaymentID: "pay-1", Status: "approved", Method: "pix", PaidAt: &paidAt}, day0)
	require.NoError(t, repo.Update(ctx, sub))
	assert.Equal(t, 1, sub.Version())

	loaded, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, sub.State(), loaded.State())

	byExternal, err := repo.FindByExternalSubscriptionID(ctx, "pre-1")
	require.NoError(t, err)
	require.NotNil(t, byExternal)
	assert.Equal(t, sub.ID(), byExternal.ID())

	byPayment, err := repo.FindByExternalPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, byPayment)
	assert.Equal(t, sub.ID(), byPayment.ID())

	missing, err := repo.FindByExternalPaymentID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.FindByExternalSubscriptionID(ctx, "pre-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missingPlan, err := NewSQLitePlanRepository(db).FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missingPlan)
}

func TestSQLiteSubscriptionRepository_StaleUpdate(t *testing.T) {
	db := setupBillingDB(t)
	plan := seedPlan(t, db)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	sub := newSubscription(t, uuid.New(), plan, nil)
	require.NoError(t, repo.Create(ctx, sub))

	first, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)

	_, err = first.Activate(day0, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))

	_, err = second.Pause(day0)
	require.NoError(t, err)
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, domain.ErrStaleSubscription)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestSQLiteSubscriptionRepository_SingleCurrentSubscription(t *testing.T) {
	db := setupBillingDB(t)
	plan := seedPlan(t, db)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	old := newSubscription(t, userID, plan, nil)
	require.NoError(t, repo.Create(ctx, old))
	_, err := old.Activate(day0, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, old))

	replacement := newSubscription(t, userID, plan, old)
	require.NoError(t, repo.Create(ctx, replacement))

	t.Run("second current row is rejected", func(t *testing.T) {
		dup, err := repo.FindByID(ctx, replacement.ID())
		require.NoError(t, err)
		_, err = dup.Activate(day0, nil)
		require.NoError(t, err)
		assert.Error(t, repo.Update(ctx, dup))
	})

	t.Run("supersede then activate in one unit of work", func(t *testing.T) {
		uow := sharedPersistence.NewSQLiteUnitOfWork(db)
		err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
			prev, err := repo.FindByIDForUpdate(txCtx, old.ID())
			if err != nil {
				return err
			}
			if _, err := prev.Supersede(replacement.ID(), true, day0); err != nil {
				return err
			}
			if err := repo.Update(txCtx, prev); err != nil {
				return err
			}
			next, err := repo.FindByIDForUpdate(txCtx, replacement.ID())
			if err != nil {
				return err
			}
			if _, err := next.Activate(day0, nil); err != nil {
				return err
			}
			return repo.Update(txCtx, next)
		})
		require.NoError(t, err)

		current, err := repo.FindCurrentByUserID(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, replacement.ID(), current.ID())

		prev, err := repo.FindByID(ctx, old.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReplaced, prev.Status())
	})
}

func TestSQLiteSubscriptionRepository_SweepQueries(t *testing.T) {
	db := setupBillingDB(t)
	plan := seedPlan(t, db)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()

	create := func(mutate func(s *domain.Subscription)) *domain.Subscription {
		sub := newSubscription(t, uuid.New(), plan, nil)
		require.NoError(t, repo.Create(ctx, sub))
		_, err := sub.Activate(day0, nil)
		require.NoError(t, err)
		if mutate != nil {
			mutate(sub)
		}
		require.NoError(t, repo.Update(ctx, sub))
		return sub
	}

	renewing := create(nil)
	grace := create(func(s *domain.Subscription) {
		_, err := s.RequestCancellation(domain.CancellationRequest{Reason: "too expensive"}, day0)
		require.NoError(t, err)
	})
	authCancelled := create(func(s *domain.Subscription) {
		s.RecordGatewayStatus(domain.GatewayStatusCancelled, "", day0)
	})

	beforeEnd := day0.AddDate(0, 0, 10)
	afterEnd := day0.AddDate(0, 2, 0)

	due, err := repo.FindDueForCancellation(ctx, beforeEnd, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.FindDueForCancellation(ctx, afterEnd, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, grace.ID(), due[0].ID())

	expiring, err := repo.FindDueForExpiration(ctx, afterEnd, 10)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, authCancelled.ID(), expiring[0].ID())
	assert.NotEqual(t, renewing.ID(), expiring[0].ID())
}

func TestSQLiteSubscriptionRepository_LatestSkipsArchived(t *testing.T) {
	db := setupBillingDB(t)
	plan := seedPlan(t, db)
	repo := NewSQLiteSubscriptionRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	sub := newSubscription(t, userID, plan, nil)
	require.NoError(t, repo.Create(ctx, sub))

	latest, err := repo.FindLatestByUserID(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, latest)

	_, err = sub.Cancel(day0)
	require.NoError(t, err)
	_, err = sub.SoftDelete(day0)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, sub))

	latest, err = repo.FindLatestByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	archived, err := repo.FindByID(ctx, sub.ID())
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.NotNil(t, archived.DeletedAt())
}

func TestSQLitePlanRepository(t *testing.T) {
	db := setupBillingDB(t)
	repo := NewSQLitePlanRepository(db)
	ctx := context.Background()

	plan := seedPlan(t, db)
	retired := &domain.Plan{ID: uuid.New(), Name: "Legacy", MonthlyPrice: 990, Currency: "BRL"}
	require.NoError(t, repo.Save(ctx, retired))

	loaded, err := repo.FindByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan, loaded)

	plan.Active = false
	require.NoError(t, repo.Save(ctx, plan))

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{}, all[0].Benefits)

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	missing, err := repo.FindByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteWebhookLedger_Claim(t *testing.T) {
	db := setupBillingDB(t)
	ledger := NewSQLiteWebhookLedger(db)
	ctx := context.Background()
	entry := domain.LedgerEntry{
		Key:        "notif-1",
		Provider:   "gateway",
		EventType:  "payment",
		ResourceID: "pay-1",
		ReceivedAt: day0,
	}

	claimed, err := ledger.Claim(ctx, entry)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = ledger.Claim(ctx, entry)
	require.NoError(t, err)
	assert.False(t, claimed)

	t.Run("claims roll back with the unit of work", func(t *testing.T) {
		uow := sharedPersistence.NewSQLiteUnitOfWork(db)
		entry := entry
		entry.Key = "notif-2"
		boom := errors.New("transition failed")

		err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
			claimed, err := ledger.Claim(txCtx, entry)
			require.NoError(t, err)
			require.True(t, claimed)
			return boom
		})
		require.ErrorIs(t, err, boom)

		claimed, err := ledger.Claim(ctx, entry)
		require.NoError(t, err)
		assert.True(t, claimed)
	})
}
