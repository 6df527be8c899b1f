package roll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
)

// longOption is a bought call or put. Premium is paid, not collected, and
// exercise is valued at intrinsic value.
type longOption struct {
	call bool
}

func (o longOption) kind() string {
	if o.call {
		return "call"
	}
	return "put"
}

// intrinsic is the per-share exercise value at price.
func (o longOption) intrinsic(price, strike decimal.Decimal) decimal.Decimal {
	if o.call {
		return price.Sub(strike)
	}
	return strike.Sub(price)
}

func (o longOption) resolve(rec model.StrategyRecord, a OldLegAssumption) ResolvedOldLeg {
	paid := rec.PremiumTotal()
	shares := decimal.NewFromInt(rec.Shares())

	switch a.EndMode {
	case Closed:
		if !a.ClosePrice.Valid {
			return ResolvedOldLeg{RealizedPnL: paid.Neg(), Fallback: FallbackMissingClosePrice}
		}
		return ResolvedOldLeg{RealizedPnL: a.ClosePrice.Decimal.Mul(shares).Sub(paid)}
	case Exercised:
		if !a.MarketPriceAtExercise.Valid {
			return ResolvedOldLeg{RealizedPnL: paid.Neg(), Fallback: FallbackMissingExercisePrice}
		}
		value := o.intrinsic(a.MarketPriceAtExercise.Decimal, rec.Strike).Mul(shares)
		return ResolvedOldLeg{RealizedPnL: value.Sub(paid)}
	default:
		return ResolvedOldLeg{RealizedPnL: paid.Neg()}
	}
}

func (o longOption) exercised(p projection) ScenarioResult {
	res := ScenarioResult{
		Scenario:   ScenarioExercised,
		CostBasis:  some(p.premium),
		FinalStock: p.carriedStock(),
	}
	if !p.next.ExpectedSettlementPrice.Valid {
		res.Description = fmt.Sprintf("New %s exercised at %s; exercise value unknown", o.kind(), money(p.next.Strike))
		res.MissingDataWarning = "expected settlement price required to value the exercise"
		return res
	}

	expected := p.next.ExpectedSettlementPrice.Decimal
	value := o.intrinsic(expected, p.next.Strike).Mul(p.shares)
	res.NewLegPnL = some(value.Sub(p.premium))
	res.Description = fmt.Sprintf("New %s exercised at %s with the underlying at %s: value %s against premium paid %s",
		o.kind(), money(p.next.Strike), money(expected), money(value), money(p.premium))
	return res
}

func (o longOption) notExercised(p projection) ScenarioResult {
	return ScenarioResult{
		Scenario:    ScenarioNotExercised,
		NewLegPnL:   some(p.premium.Neg()),
		CostBasis:   some(p.premium),
		FinalStock:  p.carriedStock(),
		Description: fmt.Sprintf("New %s expires worthless; premium paid %s lost", o.kind(), money(p.premium)),
	}
}

func (o longOption) valueAt(p projection, price decimal.Decimal) decimal.Decimal {
	inTheMoney := price.GreaterThanOrEqual(p.next.Strike)
	if !o.call {
		inTheMoney = price.LessThanOrEqual(p.next.Strike)
	}
	if !inTheMoney {
		return p.premium.Neg()
	}
	return o.intrinsic(price, p.next.Strike).Mul(p.shares).Sub(p.premium)
}
