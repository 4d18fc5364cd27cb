package commands

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// memStore keeps subscriptions and ledger claims in memory. Begin snapshots
// it and Rollback restores the snapshot, so claims and updates made by a
// failed unit of work disappear the way they do in the SQL stores.
type memStore struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]domain.SubscriptionState
	ledger   map[string]domain.LedgerEntry
	snapshot *memStore
}

func newMemStore() *memStore {
	return &memStore{
		subs:   make(map[uuid.UUID]domain.SubscriptionState),
		ledger: make(map[string]domain.LedgerEntry),
	}
}

func (s *memStore) Begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := newMemStore()
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.ledger {
		snap.ledger[k] = v
	}
	s.snapshot = snap
	return ctx, nil
}

func (s *memStore) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	return nil
}

func (s *memStore) Rollback(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		s.subs, s.ledger = s.snapshot.subs, s.snapshot.ledger
		s.snapshot = nil
	}
	return nil
}

func (s *memStore) put(t *testing.T, sub *domain.Subscription) {
	t.Helper()
	sub.ClearDomainEvents()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID()] = sub.State()
}

func (s *memStore) get(t *testing.T, id uuid.UUID) *domain.Subscription {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subs[id]
	require.True(t, ok, "subscription %s not stored", id)
	return domain.RehydrateSubscription(st)
}

// memSubscriptionRepo implements domain.SubscriptionRepository on memStore.
// Like the SQL stores it refuses a second current subscription per user.
type memSubscriptionRepo struct{ store *memStore }

func (r *memSubscriptionRepo) Create(_ context.Context, sub *domain.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st := sub.State()
	if err := r.checkCurrent(st); err != nil {
		return err
	}
	r.store.subs[st.ID] = st
	return nil
}

func (r *memSubscriptionRepo) Update(_ context.Context, sub *domain.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st := sub.State()
	stored, ok := r.store.subs[st.ID]
	if !ok || stored.Version != st.Version {
		return domain.ErrStaleSubscription
	}
	if err := r.checkCurrent(st); err != nil {
		return err
	}
	st.Version++
	r.store.subs[st.ID] = st
	sub.IncrementVersion()
	return nil
}

func (r *memSubscriptionRepo) checkCurrent(st domain.SubscriptionState) error {
	if !st.Status.IsCurrent() || st.DeletedAt != nil {
		return nil
	}
	for id, other := range r.store.subs {
		if id != st.ID && other.UserID == st.UserID && other.Status.IsCurrent() && other.DeletedAt == nil {
			return errors.New("unique constraint: user already has a current subscription")
		}
	}
	return nil
}

func (r *memSubscriptionRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	st, ok := r.store.subs[id]
	if !ok {
		return nil, nil
	}
	return domain.RehydrateSubscription(st), nil
}

func (r *memSubscriptionRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r *memSubscriptionRepo) FindByExternalSubscriptionID(_ context.Context, externalID string) (*domain.Subscription, error) {
	return r.latest(func(st domain.SubscriptionState) bool {
		return externalID != "" && st.ExternalSubscriptionID == externalID
	}), nil
}

func (r *memSubscriptionRepo) FindByExternalPaymentID(_ context.Context, paymentID string) (*domain.Subscription, error) {
	return r.latest(func(st domain.SubscriptionState) bool {
		return paymentID != "" && st.ExternalPaymentID == paymentID
	}), nil
}

func (r *memSubscriptionRepo) FindCurrentByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.latest(func(st domain.SubscriptionState) bool {
		return st.UserID == userID && st.Status.IsCurrent()
	}), nil
}

func (r *memSubscriptionRepo) FindLatestByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.latest(func(st domain.SubscriptionState) bool { return st.UserID == userID }), nil
}

func (r *memSubscriptionRepo) FindDueForCancellation(_ context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.list(limit, func(sub *domain.Subscription) bool { return sub.IsDueForCancellation(now) }), nil
}

func (r *memSubscriptionRepo) FindDueForExpiration(_ context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	return r.list(limit, func(sub *domain.Subscription) bool { return sub.IsDueForExpiration(now) }), nil
}

func (r *memSubscriptionRepo) latest(match func(domain.SubscriptionState) bool) *domain.Subscription {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var found *domain.SubscriptionState
	for _, st := range r.store.subs {
		if st.DeletedAt != nil || !match(st) {
			continue
		}
		if found == nil || st.CreatedAt.After(found.CreatedAt) {
			st := st
			found = &st
		}
	}
	if found == nil {
		return nil
	}
	return domain.RehydrateSubscription(*found)
}

func (r *memSubscriptionRepo) list(limit int, match func(*domain.Subscription) bool) []*domain.Subscription {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var subs []*domain.Subscription
	for _, st := range r.store.subs {
		sub := domain.RehydrateSubscription(st)
		if st.DeletedAt == nil && match(sub) {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].EndDate().Before(*subs[j].EndDate()) })
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs
}

type memLedger struct{ store *memStore }

func (l *memLedger) Claim(_ context.Context, entry domain.LedgerEntry) (bool, error) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.ledger[entry.Key]; ok {
		return false, nil
	}
	l.store.ledger[entry.Key] = entry
	return true, nil
}

// mockGateway is a mock implementation of domain.PaymentGateway.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.ExternalSubscription, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExternalSubscription), args.Error(1)
}

func (m *mockGateway) CreateCheckout(ctx context.Context, req domain.CreateCheckoutRequest) (*domain.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Checkout), args.Error(1)
}

func (m *mockGateway) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockGateway) GetPreapproval(ctx context.Context, id string) (*domain.Preapproval, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Preapproval), args.Error(1)
}

func (m *mockGateway) CancelPreapproval(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockGateway) GetAuthorizedPayment(ctx context.Context, id string) (*domain.AuthorizedPayment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthorizedPayment), args.Error(1)
}

// recordingOutbox is an outbox.Repository that keeps the routing keys it was given.
type recordingOutbox struct {
	mu   sync.Mutex
	keys []string
}

func (o *recordingOutbox) Save(ctx context.Context, msg *outbox.Message) error {
	return o.SaveBatch(ctx, []*outbox.Message{msg})
}

func (o *recordingOutbox) SaveBatch(_ context.Context, msgs []*outbox.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, msg := range msgs {
		o.keys = append(o.keys, msg.RoutingKey)
	}
	return nil
}

func (o *recordingOutbox) GetUnpublished(context.Context, int) ([]*outbox.Message, error) {
	return nil, nil
}
func (o *recordingOutbox) MarkPublished(context.Context, int64) error                 { return nil }
func (o *recordingOutbox) MarkFailed(context.Context, int64, string, time.Time) error { return nil }
func (o *recordingOutbox) MarkDead(context.Context, int64, string) error              { return nil }
func (o *recordingOutbox) DeleteOld(context.Context, int) (int64, error)              { return 0, nil }

func (o *recordingOutbox) routingKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.keys...)
}

type countingLocker struct {
	mu    sync.Mutex
	locks int
}

func (l *countingLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	l.mu.Lock()
	l.locks++
	l.mu.Unlock()
	return func() {}, nil
}

type fixture struct {
	store   *memStore
	repo    *memSubscriptionRepo
	gateway *mockGateway
	outbox  *recordingOutbox
	deps    Dependencies
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:   store,
		repo:    &memSubscriptionRepo{store: store},
		gateway: new(mockGateway),
		outbox:  &recordingOutbox{},
	}
	f.deps = Dependencies{
		Subscriptions: f.repo,
		Ledger:        &memLedger{store: store},
		Outbox:        f.outbox,
		UnitOfWork:    store,
		Locker:        &countingLocker{},
		Gateway:       f.gateway,
		RetryPolicy:   domain.NewRetryPolicy(3),
	}
	return f
}

func fixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

func testPlan() *domain.Plan {
	return &domain.Plan{
		ID:                    uuid.New(),
		Name:                  "Pro",
		MonthlyPrice:          4990,
		AnnualPrice:           49900,
		Currency:              "BRL",
		Active:                true,
		ExternalMonthlyPlanID: "gw-plan-m",
		ExternalAnnualPlanID:  "gw-plan-a",
	}
}

// pendingSubscription stores a PENDING_PAYMENT monthly subscription linked to preapprovalID.
func (f *fixture) pendingSubscription(t *testing.T, userID uuid.UUID, replaces *domain.Subscription, preapprovalID string) *domain.Subscription {
	t.Helper()
	plan := testPlan()
	sub, err := domain.NewSubscription(domain.NewSubscriptionParams{
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: domain.BillingCycleMonthly,
		Price:        plan.PriceFor(domain.BillingCycleMonthly),
		Replaces:     replaces,
	}, day0)
	require.NoError(t, err)
	if preapprovalID != "" {
		sub.LinkExternalSubscription(preapprovalID, domain.GatewayStatusPending, day0)
	}
	f.store.put(t, sub)
	return sub
}

// activeSubscription stores a subscription activated at day0.
func (f *fixture) activeSubscription(t *testing.T, userID uuid.UUID, preapprovalID string) *domain.Subscription {
	t.Helper()
	sub := f.pendingSubscription(t, userID, nil, preapprovalID)
	_, err := sub.Activate(day0, nil)
	require.NoError(t, err)
	f.store.put(t, sub)
	return sub
}
