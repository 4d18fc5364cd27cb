package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	args := m.Called(ctx, id)
	plan, _ := args.Get(0).(*domain.Plan)
	return plan, args.Error(1)
}

func (m *mockCatalog) Save(ctx context.Context, plan *domain.Plan) error {
	return m.Called(ctx, plan).Error(0)
}

func (m *mockCatalog) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	args := m.Called(ctx, activeOnly)
	plans, _ := args.Get(0).([]*domain.Plan)
	return plans, args.Error(1)
}

func setup(t *testing.T) (*PlanCatalog, *mockCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := new(mockCatalog)
	return NewPlanCatalog(store, client, time.Minute, nil), store, mr
}

func proPlan() *domain.Plan {
	return &domain.Plan{
		ID:                    uuid.New(),
		Name:                  "Pro",
		MonthlyPrice:          4990,
		AnnualPrice:           49900,
		Currency:              "BRL",
		Benefits:              []string{"unlimited projects"},
		Active:                true,
		ExternalMonthlyPlanID: "gw-plan-m",
	}
}

func TestPlanCatalog_ReadThrough(t *testing.T) {
	catalog, store, mr := setup(t)
	plan := proPlan()
	store.On("FindByID", mock.Anything, plan.ID).Return(plan, nil).Once()

	first, err := catalog.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	second, err := catalog.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)

	assert.Equal(t, plan, first)
	assert.Equal(t, plan, second)
	assert.True(t, mr.Exists(planKey(plan.ID)))
	assert.Equal(t, time.Minute, mr.TTL(planKey(plan.ID)))
	store.AssertExpectations(t)
}

func TestPlanCatalog_UnknownPlanNotCached(t *testing.T) {
	catalog, store, mr := setup(t)
	id := uuid.New()
	store.On("FindByID", mock.Anything, id).Return(nil, nil).Twice()

	for i := 0; i < 2; i++ {
		plan, err := catalog.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, plan)
	}
	assert.False(t, mr.Exists(planKey(id)))
	store.AssertExpectations(t)
}

func TestPlanCatalog_SaveInvalidates(t *testing.T) {
	catalog, store, mr := setup(t)
	plan := proPlan()
	store.On("FindByID", mock.Anything, plan.ID).Return(plan, nil).Once()
	store.On("Save", mock.Anything, plan).Return(nil).Once()

	_, err := catalog.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(planKey(plan.ID)))

	require.NoError(t, catalog.Save(context.Background(), plan))
	assert.False(t, mr.Exists(planKey(plan.ID)))
	store.AssertExpectations(t)
}

func TestPlanCatalog_RedisDownFallsBack(t *testing.T) {
	catalog, store, mr := setup(t)
	plan := proPlan()
	store.On("FindByID", mock.Anything, plan.ID).Return(plan, nil)
	mr.Close()

	got, err := catalog.FindByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan, got)
}
