package domain

import "github.com/google/uuid"

// Money is an amount in minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// Plan is a catalog entry. The catalog is owned elsewhere; the billing engine
// only reads it.
type Plan struct {
	ID                    uuid.UUID
	Name                  string
	MonthlyPrice          int64
	AnnualPrice           int64
	Currency              string
	Benefits              []string
	Active                bool
	ExternalMonthlyPlanID string
	ExternalAnnualPlanID  string
}

// PriceFor returns the price for a billing cycle.
func (p *Plan) PriceFor(cycle BillingCycle) Money {
	amount := p.MonthlyPrice
	if cycle == BillingCycleAnnual {
		amount = p.AnnualPrice
	}
	return Money{Amount: amount, Currency: p.Currency}
}

// ExternalPlanIDFor returns the gateway plan id for a billing cycle, or "" when
// the plan has not been synced with the gateway yet.
func (p *Plan) ExternalPlanIDFor(cycle BillingCycle) string {
	if cycle == BillingCycleAnnual {
		return p.ExternalAnnualPlanID
	}
	return p.ExternalMonthlyPlanID
}
