package roll

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// FindBreakEvens returns the settlement prices at which the curve crosses
// zero, in ascending order. Each adjacent pair whose P&L values bracket zero
// (one ≤ 0, the other ≥ 0) is linearly interpolated. Pairs with equal P&L
// report nothing, and a crossing that lands on a shared point is reported
// once. The curve need not be monotonic.
func FindBreakEvens(curve []PayoffPoint) []decimal.Decimal {
	var roots []decimal.Decimal
	for i := 1; i < len(curve); i++ {
		p0, p1 := curve[i-1], curve[i]
		if !brackets(p0.TotalPnL, p1.TotalPnL) {
			continue
		}
		diff := p1.TotalPnL.Sub(p0.TotalPnL)
		if diff.IsZero() {
			continue
		}

		frac := p0.TotalPnL.Neg().Div(diff)
		price := p0.SettlementPrice.Add(frac.Mul(p1.SettlementPrice.Sub(p0.SettlementPrice))).Round(PriceScale)
		if n := len(roots); n > 0 && roots[n-1].Equal(price) {
			continue
		}
		roots = append(roots, price)
	}
	return roots
}

func brackets(a, b decimal.Decimal) bool {
	return (a.Sign() <= 0 && b.Sign() >= 0) || (a.Sign() >= 0 && b.Sign() <= 0)
}

// CurveSummary describes the extremes of a payoff curve.
type CurveSummary struct {
	MaxProfit        decimal.Decimal   `json:"max_profit"`
	MaxProfitAtPrice decimal.Decimal   `json:"max_profit_at_price"`
	MaxLoss          decimal.Decimal   `json:"max_loss"`
	MaxLossAtPrice   decimal.Decimal   `json:"max_loss_at_price"`
	BreakEvens       []decimal.Decimal `json:"break_evens"`
}

// Summarize locates the best and worst points of the curve. Extremes are
// found on a float64 projection of the P&L values; the reported amounts
// are the exact decimals at those points.
func Summarize(curve []PayoffPoint) CurveSummary {
	summary := CurveSummary{BreakEvens: FindBreakEvens(curve)}
	if len(curve) == 0 {
		return summary
	}

	pnl := make([]float64, len(curve))
	for i, pt := range curve {
		pnl[i] = pt.TotalPnL.InexactFloat64()
	}
	best := curve[floats.MaxIdx(pnl)]
	worst := curve[floats.MinIdx(pnl)]

	summary.MaxProfit = best.TotalPnL
	summary.MaxProfitAtPrice = best.SettlementPrice
	summary.MaxLoss = worst.TotalPnL
	summary.MaxLossAtPrice = worst.SettlementPrice
	return summary
}
