package roll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// legModel is the per-variant capability set. Each variant's arithmetic
// lives in one type so a new variant is a new type plus one table entry.
type legModel interface {
	// resolve computes the old leg's realized outcome.
	resolve(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg

	// exercised and notExercised fill NewLegPnL, CostBasis, FinalStock,
	// Description and MissingDataWarning. Totals are derived by finish.
	exercised(p projection) ScenarioResult
	notExercised(p projection) ScenarioResult

	// valueAt returns the new leg's P&L (stock included) if the underlying
	// settles at price.
	valueAt(p projection, price decimal.Decimal) decimal.Decimal
}

// legModels must carry an entry for every model.Variants() value;
// TestLegModels_CoverEveryVariant enforces it.
var legModels = map[model.Variant]legModel{
	model.CoveredCall:    coveredCall{},
	model.NakedCall:      nakedCall{},
	model.CashSecuredPut: shortPut{secured: true},
	model.NakedPut:       shortPut{},
	model.BuyCall:        longOption{call: true},
	model.BuyPut:         longOption{},
}

func legFor(v model.Variant) legModel {
	if m, ok := legModels[v]; ok {
		return m
	}
	return unsupported{variant: v}
}

// projection bundles everything a scenario branch needs.
type projection struct {
	rec      model.StrategyRecord
	resolved ResolvedOldLeg
	next     NewPositionInput
	variant  model.Variant

	sharesN int64
	shares  decimal.Decimal
	premium decimal.Decimal // new premium total
}

func newProjection(rec model.StrategyRecord, resolved ResolvedOldLeg, next NewPositionInput) projection {
	variant := next.VariantFor(rec)
	sharesN := next.ContractsFor(rec) * model.SharesPerContract
	shares := decimal.NewFromInt(sharesN)
	return projection{
		rec:      rec,
		resolved: resolved,
		next:     next,
		variant:  variant,
		sharesN:  sharesN,
		shares:   shares,
		premium:  next.Premium.Mul(shares),
	}
}

// margin is the old strategy's margin estimate, computed for the variant
// being projected.
func (p projection) margin() decimal.Decimal {
	rec := p.rec
	rec.Variant = p.variant
	return rec.MarginCost()
}

func (p projection) carriedStock() *StockPosition {
	return copyStock(p.resolved.Stock)
}

func copyStock(s *StockPosition) *StockPosition {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// resolveShortUnexercised handles the expired and closed outcomes shared by
// every short variant.
func resolveShortUnexercised(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	premium := rec.PremiumTotal()
	if a.EndMode != Closed {
		return ResolvedOldLeg{RealizedPnL: premium}
	}
	if !a.ClosePrice.Valid {
		// Treated as expired worthless; the caller must supply a close price.
		return ResolvedOldLeg{RealizedPnL: premium, Fallback: FallbackMissingClosePrice}
	}
	buyBack := a.ClosePrice.Decimal.Mul(decimal.NewFromInt(rec.Shares()))
	return ResolvedOldLeg{RealizedPnL: premium.Sub(buyBack)}
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// unsupported keeps callers total over unknown variants. Input validation
// should make it unreachable.
type unsupported struct {
	variant model.Variant
}

func (u unsupported) warning() string {
	return fmt.Sprintf("unsupported strategy variant %q", u.variant)
}

func (u unsupported) resolve(_ model.StrategyRecord, _ OldLegAssumption) ResolvedOldLeg {
	return ResolvedOldLeg{RealizedPnL: decimal.Zero}
}

func (u unsupported) exercised(p projection) ScenarioResult {
	return ScenarioResult{
		Scenario:           ScenarioExercised,
		FinalStock:         p.carriedStock(),
		Description:        u.warning(),
		MissingDataWarning: u.warning(),
	}
}

func (u unsupported) notExercised(p projection) ScenarioResult {
	r := u.exercised(p)
	r.Scenario = ScenarioNotExercised
	return r
}

func (u unsupported) valueAt(_ projection, _ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
