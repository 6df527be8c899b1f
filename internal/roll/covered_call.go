package roll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// coveredCall is a short call written against shares already held.
type coveredCall struct{}

func (coveredCall) resolve(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	if a.EndMode == Exercised {
		// Shares are called away at the strike.
		shares := decimal.NewFromInt(rec.Shares())
		gain := rec.Strike.Sub(rec.StockCostBasis.Decimal).Mul(shares)
		return ResolvedOldLeg{
			RealizedPnL: gain.Add(rec.PremiumTotal()),
			Stock:       &StockPosition{Quantity: 0},
		}
	}

	r := resolveShortUnexercised(rec, a)
	r.Stock = &StockPosition{Quantity: rec.Shares(), CostBasisPerShare: rec.StockCostBasis}
	return r
}

func (coveredCall) exercised(p projection) ScenarioResult {
	res := ScenarioResult{Scenario: ScenarioExercised}
	if !p.resolved.HasStock() {
		res.NewLegPnL = some(p.premium)
		res.FinalStock = p.carriedStock()
		res.Description = fmt.Sprintf(
			"New call assigned at %s with no shares carried forward: nothing to sell, premium %s kept",
			money(p.next.Strike), money(p.premium))
		return res
	}

	stock := p.resolved.Stock
	cost := stock.CostBasisPerShare.Decimal
	sold := min(stock.Quantity, p.sharesN)
	remaining := stock.Quantity - sold

	pnl := p.next.Strike.Sub(cost).Mul(decimal.NewFromInt(sold)).Add(p.premium)
	if remaining > 0 {
		// Shares the call does not cover are marked at the expected price,
		// or at the strike, the lowest price at which the call is exercised.
		mark := p.next.Strike
		if p.next.ExpectedSettlementPrice.Valid {
			mark = p.next.ExpectedSettlementPrice.Decimal
		}
		pnl = pnl.Add(mark.Sub(cost).Mul(decimal.NewFromInt(remaining)))
	}

	res.NewLegPnL = some(pnl)
	res.CostBasis = some(cost.Mul(decimal.NewFromInt(stock.Quantity)))
	res.FinalStock = heldStock(remaining, cost)
	res.Description = fmt.Sprintf("%d shares called away at %s (cost %s) plus premium %s",
		sold, money(p.next.Strike), money(cost), money(p.premium))
	return res
}

func (coveredCall) notExercised(p projection) ScenarioResult {
	res := ScenarioResult{Scenario: ScenarioNotExercised, FinalStock: p.carriedStock()}
	if !p.resolved.HasStock() {
		res.Description = "New call expires worthless but no shares are held to mark"
		res.MissingDataWarning = "no stock position: the old leg's shares were called away, so the retained position cannot be valued"
		return res
	}

	stock := p.resolved.Stock
	cost := stock.CostBasisPerShare.Decimal
	qty := decimal.NewFromInt(stock.Quantity)
	res.CostBasis = some(cost.Mul(qty))

	if !p.next.ExpectedSettlementPrice.Valid {
		res.Description = fmt.Sprintf("New call expires worthless; %d shares retained", stock.Quantity)
		res.MissingDataWarning = "expected settlement price required to mark the retained shares to market"
		return res
	}

	expected := p.next.ExpectedSettlementPrice.Decimal
	res.NewLegPnL = some(expected.Sub(cost).Mul(qty).Add(p.premium))
	res.Description = fmt.Sprintf("New call expires worthless; %d shares retained and marked at %s",
		stock.Quantity, money(expected))
	return res
}

func (coveredCall) valueAt(p projection, price decimal.Decimal) decimal.Decimal {
	if !p.resolved.HasStock() {
		return p.premium
	}
	stock := p.resolved.Stock
	cost := stock.CostBasisPerShare.Decimal

	if price.GreaterThanOrEqual(p.next.Strike) {
		sold := min(stock.Quantity, p.sharesN)
		remaining := decimal.NewFromInt(stock.Quantity - sold)
		sale := p.next.Strike.Sub(cost).Mul(decimal.NewFromInt(sold))
		return sale.Add(price.Sub(cost).Mul(remaining)).Add(p.premium)
	}
	return price.Sub(cost).Mul(decimal.NewFromInt(stock.Quantity)).Add(p.premium)
}

// heldStock builds a position, leaving the cost absent when nothing is held.
func heldStock(qty int64, cost decimal.Decimal) *StockPosition {
	if qty <= 0 {
		return &StockPosition{Quantity: 0}
	}
	return &StockPosition{Quantity: qty, CostBasisPerShare: some(cost)}
}
