package roll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// shortPut covers cash-secured and naked puts. Assignment is deterministic
// at the strike either way; only the cost basis differs.
type shortPut struct {
	secured bool
}

func (shortPut) resolve(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	if a.EndMode != Exercised {
		return resolveShortUnexercised(rec, a)
	}

	// Assignment converts cash to stock; it is not itself a gain or loss.
	shares := decimal.NewFromInt(rec.Shares())
	cost := rec.Strike.Sub(rec.PremiumTotal().Div(shares))
	return ResolvedOldLeg{
		RealizedPnL: decimal.Zero,
		Stock:       &StockPosition{Quantity: rec.Shares(), CostBasisPerShare: some(cost)},
	}
}

func (s shortPut) exercised(p projection) ScenarioResult {
	cost := p.next.Strike
	if p.sharesN > 0 {
		cost = cost.Sub(p.premium.Div(p.shares))
	}
	res := ScenarioResult{
		Scenario:   ScenarioExercised,
		NewLegPnL:  some(p.premium),
		FinalStock: mergeStock(p.resolved, p.sharesN, cost),
		Description: fmt.Sprintf("New put assigned: %d shares bought at %s, effective cost %s per share",
			p.sharesN, money(p.next.Strike), money(cost)),
	}
	if s.secured {
		res.CostBasis = some(p.next.Strike.Mul(p.shares).Sub(p.premium))
	} else {
		res.CostBasis = some(p.margin())
	}
	return res
}

func (s shortPut) notExercised(p projection) ScenarioResult {
	res := ScenarioResult{
		Scenario:    ScenarioNotExercised,
		NewLegPnL:   some(p.premium),
		FinalStock:  p.carriedStock(),
		Description: fmt.Sprintf("New put expires worthless; full premium %s kept", money(p.premium)),
	}
	if s.secured {
		res.CostBasis = some(p.next.Strike.Mul(p.shares))
	} else {
		res.CostBasis = some(p.margin())
	}
	return res
}

func (shortPut) valueAt(p projection, price decimal.Decimal) decimal.Decimal {
	if price.LessThanOrEqual(p.next.Strike) {
		return p.premium.Sub(p.next.Strike.Sub(price).Mul(p.shares))
	}
	return p.premium
}

// mergeStock adds newly assigned shares to whatever the old leg left,
// averaging the per-share cost.
func mergeStock(resolved ResolvedOldLeg, qty int64, cost decimal.Decimal) *StockPosition {
	if !resolved.HasStock() {
		return heldStock(qty, cost)
	}
	old := resolved.Stock
	total := old.Quantity + qty
	value := old.CostBasisPerShare.Decimal.Mul(decimal.NewFromInt(old.Quantity)).
		Add(cost.Mul(decimal.NewFromInt(qty)))
	return heldStock(total, value.Div(decimal.NewFromInt(total)))
}
