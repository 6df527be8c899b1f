package roll

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// ProjectScenarios values the new leg under both of its resolutions and
// combines each with the old leg's realized P&L.
//
// The branch is chosen by next.Variant, or by the old strategy's variant
// when next.Variant is empty. A scenario that lacks a required price is
// returned with IsCalculated=false, an absent NewLegPnL/TotalPnL and a
// MissingDataWarning naming the missing value.
func ProjectScenarios(rec model.StrategyRecord, resolved ResolvedOldLeg, next NewPositionInput) (exercised, notExercised ScenarioResult) {
	p := newProjection(rec, resolved, next)
	leg := legFor(p.variant)
	return finish(p, leg.exercised(p)), finish(p, leg.notExercised(p))
}

// finish derives the totals every scenario shares.
func finish(p projection, r ScenarioResult) ScenarioResult {
	r.OldLegPnL = p.resolved.RealizedPnL
	r.IsCalculated = r.NewLegPnL.Valid
	if !r.IsCalculated {
		r.NewLegPnL = none
		r.TotalPnL = none
		r.ReturnPercent = none
		return r
	}
	r.MissingDataWarning = ""

	total := p.resolved.RealizedPnL.Add(r.NewLegPnL.Decimal)
	r.TotalPnL = some(total)
	r.ReturnPercent = returnPercent(total, r.CostBasis)
	return r
}

// returnPercent is total / costBasis × 100, absent unless the cost basis is
// present and strictly positive.
func returnPercent(total decimal.Decimal, costBasis decimal.NullDecimal) decimal.NullDecimal {
	if !costBasis.Valid || !costBasis.Decimal.IsPositive() {
		return none
	}
	return some(total.Div(costBasis.Decimal).Mul(hundred).Round(2))
}
