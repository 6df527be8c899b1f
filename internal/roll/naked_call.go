package roll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// nakedCall is a short call with no shares behind it.
type nakedCall struct{}

func (nakedCall) resolve(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	if a.EndMode != Exercised {
		return resolveShortUnexercised(rec, a)
	}

	premium := rec.PremiumTotal()
	if !a.MarketPriceAtExercise.Valid {
		return ResolvedOldLeg{RealizedPnL: premium, Fallback: FallbackMissingExercisePrice}
	}
	loss := a.MarketPriceAtExercise.Decimal.Sub(rec.Strike).Mul(decimal.NewFromInt(rec.Shares()))
	return ResolvedOldLeg{RealizedPnL: premium.Sub(loss)}
}

func (nakedCall) exercised(p projection) ScenarioResult {
	res := ScenarioResult{
		Scenario:   ScenarioExercised,
		CostBasis:  some(p.margin()),
		FinalStock: p.carriedStock(),
	}
	if !p.next.ExpectedSettlementPrice.Valid {
		res.Description = fmt.Sprintf("New call assigned at %s; assignment loss unknown", money(p.next.Strike))
		res.MissingDataWarning = "expected settlement price required to value the assignment loss"
		return res
	}

	expected := p.next.ExpectedSettlementPrice.Decimal
	loss := expected.Sub(p.next.Strike).Mul(p.shares)
	res.NewLegPnL = some(p.premium.Sub(loss))
	res.Description = fmt.Sprintf("New call assigned at %s with the underlying at %s: loss %s against premium %s",
		money(p.next.Strike), money(expected), money(loss), money(p.premium))
	return res
}

func (nakedCall) notExercised(p projection) ScenarioResult {
	return ScenarioResult{
		Scenario:    ScenarioNotExercised,
		NewLegPnL:   some(p.premium),
		CostBasis:   some(p.margin()),
		FinalStock:  p.carriedStock(),
		Description: fmt.Sprintf("New call expires worthless; full premium %s kept", money(p.premium)),
	}
}

func (nakedCall) valueAt(p projection, price decimal.Decimal) decimal.Decimal {
	if price.GreaterThanOrEqual(p.next.Strike) {
		return p.premium.Sub(price.Sub(p.next.Strike).Mul(p.shares))
	}
	return p.premium
}
