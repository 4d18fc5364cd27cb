// Package cache keeps read-mostly billing data in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPlanTTL is used when no TTL is configured.
const DefaultPlanTTL = 5 * time.Minute

const planKeyPrefix = "memberly:plan:"

// PlanCatalog is a read-through cache in front of the plan store. Redis
// failures fall back to the store.
type PlanCatalog struct {
	next   domain.PlanCatalog
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.PlanCatalog = (*PlanCatalog)(nil)

// NewPlanCatalog wraps next. A non-positive ttl means DefaultPlanTTL.
func NewPlanCatalog(next domain.PlanCatalog, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *PlanCatalog {
	if ttl <= 0 {
		ttl = DefaultPlanTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanCatalog{next: next, client: client, ttl: ttl, logger: logger}
}

func planKey(id uuid.UUID) string {
	return planKeyPrefix + id.String()
}

// FindByID serves from Redis when possible. Unknown plans are not cached.
func (c *PlanCatalog) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	raw, err := c.client.Get(ctx, planKey(id)).Bytes()
	switch {
	case err == nil:
		var plan domain.Plan
		if jsonErr := json.Unmarshal(raw, &plan); jsonErr == nil {
			return &plan, nil
		}
		c.logger.WarnContext(ctx, "discarding unreadable cached plan", "plan_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "plan cache read failed", "plan_id", id, "error", err)
	}

	plan, err := c.next.FindByID(ctx, id)
	if err != nil || plan == nil {
		return plan, err
	}
	c.store(ctx, plan)
	return plan, nil
}

// Save writes through to the store and drops the cached copy.
func (c *PlanCatalog) Save(ctx context.Context, plan *domain.Plan) error {
	if err := c.next.Save(ctx, plan); err != nil {
		return err
	}
	if err := c.client.Del(ctx, planKey(plan.ID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "plan cache invalidation failed", "plan_id", plan.ID, "error", err)
	}
	return nil
}

// List always reads the store.
func (c *PlanCatalog) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	return c.next.List(ctx, activeOnly)
}

func (c *PlanCatalog) store(ctx context.Context, plan *domain.Plan) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, planKey(plan.ID), raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "plan cache write failed", "plan_id", plan.ID, "error", err)
	}
}
