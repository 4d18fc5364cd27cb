package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/memberly/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

const planColumns = `
	id, name, monthly_price, annual_price, currency, benefits, active,
	external_monthly_plan_id, external_annual_plan_id`

// SQLitePlanRepository implements domain.PlanCatalog using SQLite.
type SQLitePlanRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLitePlanRepository creates a new SQLite plan repository.
func NewSQLitePlanRepository(db *sql.DB) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db, now: time.Now}
}

// Save upserts a plan.
func (r *SQLitePlanRepository) Save(ctx context.Context, plan *domain.Plan) error {
	benefits, err := encodeBenefits(plan.Benefits)
	if err != nil {
		return err
	}
	now := sharedPersistence.FormatSQLiteTime(r.now())

	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			monthly_price = excluded.monthly_price,
			annual_price = excluded.annual_price,
			currency = excluded.currency,
			benefits = excluded.benefits,
			active = excluded.active,
			external_monthly_plan_id = excluded.external_monthly_plan_id,
			external_annual_plan_id = excluded.external_annual_plan_id,
			updated_at = excluded.updated_at`,
		plan.ID.String(), plan.Name, plan.MonthlyPrice, plan.AnnualPrice, plan.Currency,
		string(benefits), boolToInt(plan.Active),
		plan.ExternalMonthlyPlanID, plan.ExternalAnnualPlanID,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// FindByID returns a plan, or nil when it does not exist.
func (r *SQLitePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	row := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = ?`, id.String())
	plan, err := scanSQLitePlan(row)
	if database.IsNoRows(err) {
		return nil, nil
	}
	return plan, err
}

// List returns plans ordered by monthly price.
func (r *SQLitePlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY monthly_price, name`

	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		plan, err := scanSQLitePlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanSQLitePlan(row rowScanner) (*domain.Plan, error) {
	var (
		plan     domain.Plan
		id       string
		benefits string
		active   int
	)
	err := row.Scan(&id, &plan.Name, &plan.MonthlyPrice, &plan.AnnualPrice, &plan.Currency,
		&benefits, &active, &plan.ExternalMonthlyPlanID, &plan.ExternalAnnualPlanID)
	if err != nil {
		return nil, err
	}
	if plan.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse plan id: %w", err)
	}
	if err := json.Unmarshal([]byte(benefits), &plan.Benefits); err != nil {
		return nil, fmt.Errorf("decode plan benefits: %w", err)
	}
	plan.Active = active != 0
	return &plan, nil
}

func encodeBenefits(benefits []string) ([]byte, error) {
	if benefits == nil {
		benefits = []string{}
	}
	data, err := json.Marshal(benefits)
	if err != nil {
		return nil, fmt.Errorf("encode plan benefits: %w", err)
	}
	return data, nil
}
