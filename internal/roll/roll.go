// Package roll values the roll of an option position: resolving the old leg
// under an asserted outcome, projecting the new leg's exercised and
// not-exercised scenarios, and sweeping a payoff curve across hypothetical
// settlement prices.
//
// Every function in this package is pure. Inputs are passed as arguments and
// nothing is cached, so all of it is safe for concurrent use.
//
// All monetary values use shopspring/decimal; never float64 for money.
// Values that could not be computed are decimal.NullDecimal with Valid=false,
// never a zero placeholder.
package roll

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

var (
	// ErrIncompleteInputs is returned by Analyze in strict mode when any
	// part of the result fell back or could not be calculated.
	ErrIncompleteInputs = errors.New("roll: required price inputs are missing")

	// PriceScale is the number of decimal places kept for interpolated prices.
	PriceScale int32 = 4

	hundred = decimal.NewFromInt(100)
)

// EndMode is how the old leg ended.
type EndMode string

const (
	Exercised EndMode = "exercised"
	Closed    EndMode = "closed"
	Expired   EndMode = "expired"
)

// Valid reports whether m is a known end mode.
func (m EndMode) Valid() bool {
	return m == Exercised || m == Closed || m == Expired
}

// OldLegAssumption is the user's assertion about how the old leg resolved.
type OldLegAssumption struct {
	EndMode EndMode `json:"end_mode"`

	// ClosePrice is the per-share buy-back (or sale) price. Required when
	// EndMode is Closed.
	ClosePrice decimal.NullDecimal `json:"close_price"`

	// MarketPriceAtExercise is the underlying price when the leg was
	// exercised. Required for naked calls and long options; covered calls
	// and puts sold resolve from the strike alone.
	MarketPriceAtExercise decimal.NullDecimal `json:"market_price_at_exercise"`
}

// NewPositionInput describes the leg being opened.
type NewPositionInput struct {
	// Variant defaults to the old leg's variant when empty.
	Variant model.Variant   `json:"variant,omitempty"`
	Strike  decimal.Decimal `json:"strike"`
	Premium decimal.Decimal `json:"premium"` // per share

	// Quantity in contracts; defaults to the old leg's contract count.
	Quantity *int64 `json:"quantity,omitempty"`

	// ExpectedSettlementPrice is needed by scenarios whose payoff depends
	// on where the underlying settles.
	ExpectedSettlementPrice decimal.NullDecimal `json:"expected_settlement_price"`
}

// VariantFor returns the new leg's variant, defaulting to rec's.
func (n NewPositionInput) VariantFor(rec model.StrategyRecord) model.Variant {
	if n.Variant != "" {
		return n.Variant
	}
	return rec.Variant
}

// ContractsFor returns the new leg's contract count, defaulting to rec's.
func (n NewPositionInput) ContractsFor(rec model.StrategyRecord) int64 {
	if n.Quantity != nil {
		return *n.Quantity
	}
	return rec.Contracts
}

// StockPosition is stock held after a leg resolves. CostBasisPerShare is
// present iff Quantity > 0.
type StockPosition struct {
	Quantity          int64               `json:"quantity"`
	CostBasisPerShare decimal.NullDecimal `json:"cost_basis_per_share"`
}

// Fallback names the input whose absence forced a premium-only resolution.
type Fallback string

const (
	FallbackNone                 Fallback = ""
	FallbackMissingClosePrice    Fallback = "close_price_missing"
	FallbackMissingExercisePrice Fallback = "market_price_at_exercise_missing"
)

// ResolvedOldLeg is the realized outcome of the old leg.
type ResolvedOldLeg struct {
	RealizedPnL decimal.Decimal `json:"realized_pnl"`

	// Stock is nil when no stock is carried forward. A non-nil position
	// with Quantity 0 means stock was carried forward and then delivered.
	Stock *StockPosition `json:"stock"`

	Fallback Fallback `json:"fallback,omitempty"`
}

// HasStock reports whether shares are carried forward.
func (r ResolvedOldLeg) HasStock() bool {
	return r.Stock != nil && r.Stock.Quantity > 0 && r.Stock.CostBasisPerShare.Valid
}

// Scenario names one resolution of the new leg.
type Scenario string

const (
	ScenarioExercised    Scenario = "exercised"
	ScenarioNotExercised Scenario = "not_exercised"
)

// ScenarioResult is the full P&L breakdown for one scenario.
type ScenarioResult struct {
	Scenario  Scenario            `json:"scenario"`
	OldLegPnL decimal.Decimal     `json:"old_leg_pnl"`
	NewLegPnL decimal.NullDecimal `json:"new_leg_pnl"`
	TotalPnL  decimal.NullDecimal `json:"total_pnl"`

	CostBasis decimal.NullDecimal `json:"cost_basis"`
	// ReturnPercent is TotalPnL / CostBasis already scaled by 100 and
	// rounded to 2 places: 11.14 means 11.14%.
	ReturnPercent decimal.NullDecimal `json:"return_percent"`

	FinalStock *StockPosition `json:"final_stock"`

	Description        string `json:"description"`
	IsCalculated       bool   `json:"is_calculated"`
	MissingDataWarning string `json:"missing_data_warning,omitempty"`
}

// PayoffPoint is total P&L at one hypothetical settlement price.
type PayoffPoint struct {
	SettlementPrice decimal.Decimal `json:"settlement_price"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
}

func some(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}

var none = decimal.NullDecimal{}
