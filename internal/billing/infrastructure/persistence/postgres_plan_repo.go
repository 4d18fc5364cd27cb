package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPlanRepository implements domain.PlanCatalog with PostgreSQL.
type PostgresPlanRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPlanRepository creates a new repository.
func NewPostgresPlanRepository(pool *pgxpool.Pool) *PostgresPlanRepository {
	return &PostgresPlanRepository{pool: pool}
}

// Save upserts a plan.
func (r *PostgresPlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	benefits, err := encodeBenefits(plan.Benefits)
	if err != nil {
		return err
	}
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			monthly_price = EXCLUDED.monthly_price,
			annual_price = EXCLUDED.annual_price,
			currency = EXCLUDED.currency,
			benefits = EXCLUDED.benefits,
			active = EXCLUDED.active,
			external_monthly_plan_id = EXCLUDED.external_monthly_plan_id,
			external_annual_plan_id = EXCLUDED.external_annual_plan_id,
			updated_at = NOW()`,
		plan.ID, plan.Name, plan.MonthlyPrice, plan.AnnualPrice, plan.Currency,
		benefits, plan.Active, plan.ExternalMonthlyPlanID, plan.ExternalAnnualPlanID,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// FindByID returns a plan, or nil when it does not exist.
func (r *PostgresPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	row := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	plan, err := scanPostgresPlan(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return plan, err
}

// List returns plans ordered by monthly price.
func (r *PostgresPlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE active OR NOT $1 ORDER BY monthly_price, name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		plan, err := scanPostgresPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanPostgresPlan(row pgx.Row) (*domain.Plan, error) {
	var (
		plan     domain.Plan
		benefits []byte
	)
	err := row.Scan(&plan.ID, &plan.Name, &plan.MonthlyPrice, &plan.AnnualPrice, &plan.Currency,
		&benefits, &plan.Active, &plan.ExternalMonthlyPlanID, &plan.ExternalAnnualPlanID)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(benefits, &plan.Benefits); err != nil {
		return nil, fmt.Errorf("decode plan benefits: %w", err)
	}
	return &plan, nil
}
