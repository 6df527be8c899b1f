// Package model defines the core domain types shared across the roll engine.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SharesPerContract is the fixed contract multiplier for every variant.
const SharesPerContract = 100

// Variant identifies an option strategy. The set is closed.
type Variant string

const (
	CoveredCall    Variant = "covered_call"
	NakedCall      Variant = "naked_call"
	CashSecuredPut Variant = "cash_secured_put"
	NakedPut       Variant = "naked_put"
	BuyCall        Variant = "buy_call"
	BuyPut         Variant = "buy_put"
)

// Variants returns every supported variant in a stable order.
func Variants() []Variant {
	return []Variant{CoveredCall, NakedCall, CashSecuredPut, NakedPut, BuyCall, BuyPut}
}

// Valid reports whether v is one of the six known variants.
func (v Variant) Valid() bool {
	for _, known := range Variants() {
		if v == known {
			return true
		}
	}
	return false
}

// IsCall reports whether the variant's option is a call.
func (v Variant) IsCall() bool {
	return v == CoveredCall || v == NakedCall || v == BuyCall
}

// IsLong reports whether the variant buys (rather than sells) the option.
func (v Variant) IsLong() bool {
	return v == BuyCall || v == BuyPut
}

// StrategyRecord is a snapshot of an existing option position. It is
// treated as immutable for the duration of a calculation.
type StrategyRecord struct {
	ID        string          `json:"id" db:"id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Variant   Variant         `json:"variant" db:"variant"`
	Strike    decimal.Decimal `json:"strike" db:"strike"`
	Premium   decimal.Decimal `json:"premium" db:"premium"` // per share; collected by sellers, paid by buyers
	Contracts int64           `json:"contracts" db:"contracts"`

	// StockCostBasis is the per-share cost of stock already held.
	// Only meaningful for covered calls.
	StockCostBasis decimal.NullDecimal `json:"stock_cost_basis" db:"stock_cost_basis"`

	// MarginOverride replaces the heuristic margin estimate for naked variants.
	MarginOverride decimal.NullDecimal `json:"margin_override" db:"margin_override"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	nakedCallMarginRate = decimal.NewFromFloat(0.20)
	nakedPutMarginRate  = decimal.NewFromFloat(0.15)
)

// Shares returns the number of underlying shares the position controls.
func (s StrategyRecord) Shares() int64 {
	return s.Contracts * SharesPerContract
}

// PremiumTotal returns premium per share × shares.
func (s StrategyRecord) PremiumTotal() decimal.Decimal {
	return s.Premium.Mul(decimal.NewFromInt(s.Shares()))
}

// MarginCost returns the margin override when set, otherwise a fallback
// estimate: 20% of notional for naked calls, 15% for naked puts, zero for
// everything else. The estimate is not a broker margin model.
func (s StrategyRecord) MarginCost() decimal.Decimal {
	if s.MarginOverride.Valid {
		return s.MarginOverride.Decimal
	}
	notional := s.Strike.Mul(decimal.NewFromInt(s.Shares()))
	switch s.Variant {
	case NakedCall:
		return notional.Mul(nakedCallMarginRate)
	case NakedPut:
		return notional.Mul(nakedPutMarginRate)
	default:
		return decimal.Zero
	}
}

// RollRecord is an immutable log entry of one roll analysis run against a
// strategy. Totals are absent when the scenario could not be calculated.
type RollRecord struct {
	ID                string              `json:"id" db:"id"`
	StrategyID        string              `json:"strategy_id" db:"strategy_id"`
	EndMode           string              `json:"end_mode" db:"end_mode"`
	NewVariant        Variant             `json:"new_variant" db:"new_variant"`
	NewStrike         decimal.Decimal     `json:"new_strike" db:"new_strike"`
	NewPremium        decimal.Decimal     `json:"new_premium" db:"new_premium"`
	NewContracts      int64               `json:"new_contracts" db:"new_contracts"`
	ExercisedTotal    decimal.NullDecimal `json:"exercised_total" db:"exercised_total"`
	NotExercisedTotal decimal.NullDecimal `json:"not_exercised_total" db:"not_exercised_total"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
}
