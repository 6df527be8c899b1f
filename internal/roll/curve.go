package roll

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// CurveSteps is the number of equal intervals the price range is split
// into; the curve carries CurveSteps+1 points.
const CurveSteps = 100

var (
	spanBufferRate  = decimal.NewFromFloat(0.3)
	floorBufferRate = decimal.NewFromFloat(0.2)
)

// PriceRange returns the settlement prices the payoff curve is sampled at:
// CurveSteps+1 ascending, equally spaced prices covering both strikes plus
// a buffer of max(30% of the strike span, 20% of the lower strike), floored
// at zero.
func PriceRange(oldStrike, newStrike decimal.Decimal) []decimal.Decimal {
	lo := decimal.Min(oldStrike, newStrike)
	hi := decimal.Max(oldStrike, newStrike)
	buffer := decimal.Max(hi.Sub(lo).Mul(spanBufferRate), lo.Mul(floorBufferRate))

	lower := decimal.Max(decimal.Zero, lo.Sub(buffer))
	upper := hi.Add(buffer)
	step := upper.Sub(lower).Div(decimal.NewFromInt(CurveSteps))

	prices := make([]decimal.Decimal, CurveSteps+1)
	for i := range prices {
		prices[i] = lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	// Pin the last point so rounding in step never moves the bound.
	prices[CurveSteps] = upper
	return prices
}

// EvaluateAt returns total P&L (old leg realized plus new leg) if the
// underlying settles at price. A price equal to the new strike counts as
// exercised, so EvaluateAt(newStrike) matches the exercised scenario.
func EvaluateAt(rec model.StrategyRecord, resolved ResolvedOldLeg, next NewPositionInput, price decimal.Decimal) decimal.Decimal {
	p := newProjection(rec, resolved, next)
	return resolved.RealizedPnL.Add(legFor(p.variant).valueAt(p, price))
}

// GenerateCurve resolves the old leg and evaluates total P&L across
// PriceRange(rec.Strike, next.Strike).
func GenerateCurve(rec model.StrategyRecord, a OldLegAssumption, next NewPositionInput) []PayoffPoint {
	return curveFor(rec, ResolveOldLeg(rec, a), next)
}

func curveFor(rec model.StrategyRecord, resolved ResolvedOldLeg, next NewPositionInput) []PayoffPoint {
	p := newProjection(rec, resolved, next)
	leg := legFor(p.variant)

	prices := PriceRange(rec.Strike, next.Strike)
	curve := make([]PayoffPoint, len(prices))
	for i, price := range prices {
		curve[i] = PayoffPoint{
			SettlementPrice: price,
			TotalPnL:        resolved.RealizedPnL.Add(leg.valueAt(p, price)),
		}
	}
	return curve
}
