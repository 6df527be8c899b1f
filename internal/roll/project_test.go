package roll

import (
	"strings"
	"testing"

	"github.com/atmx/roll-engine/internal/model"
)

func qty(n int64) *int64 { return &n }

func TestProject_CoveredCallWithStock(t *testing.T) {
	rec := coveredCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})
	next := NewPositionInput{Strike: d(185), Premium: d(4), ExpectedSettlementPrice: nd(182)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	// (185-175)*500 + 2000
	if !ex.IsCalculated || !ex.NewLegPnL.Decimal.Equal(d(7000)) {
		t.Errorf("expected exercised new leg 7000, got %+v", ex.NewLegPnL)
	}
	if !ex.TotalPnL.Decimal.Equal(d(9750)) {
		t.Errorf("expected exercised total 9750, got %s", ex.TotalPnL.Decimal)
	}
	if !ex.CostBasis.Valid || !ex.CostBasis.Decimal.Equal(d(87500)) {
		t.Errorf("expected cost basis 87500, got %+v", ex.CostBasis)
	}
	if !ex.ReturnPercent.Valid || !ex.ReturnPercent.Decimal.Equal(d(11.14)) {
		t.Errorf("expected return 11.14%%, got %+v", ex.ReturnPercent)
	}
	if ex.FinalStock == nil || ex.FinalStock.Quantity != 0 {
		t.Errorf("expected shares called away, got %+v", ex.FinalStock)
	}

	// (182-175)*500 + 2000
	if !notEx.IsCalculated || !notEx.NewLegPnL.Decimal.Equal(d(5500)) {
		t.Errorf("expected not-exercised new leg 5500, got %+v", notEx.NewLegPnL)
	}
	if !notEx.TotalPnL.Decimal.Equal(d(8250)) {
		t.Errorf("expected not-exercised total 8250, got %s", notEx.TotalPnL.Decimal)
	}
	if notEx.FinalStock == nil || notEx.FinalStock.Quantity != 500 {
		t.Errorf("expected 500 shares retained, got %+v", notEx.FinalStock)
	}
}

func TestProject_CoveredCallNeedsExpectedPrice(t *testing.T) {
	rec := coveredCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})

	_, notEx := ProjectScenarios(rec, resolved, NewPositionInput{Strike: d(185), Premium: d(4)})

	if notEx.IsCalculated {
		t.Fatal("not-exercised covered call should need an expected price")
	}
	if notEx.NewLegPnL.Valid || notEx.TotalPnL.Valid || notEx.ReturnPercent.Valid {
		t.Error("uncalculated scenario must not carry P&L values")
	}
	if !strings.Contains(notEx.MissingDataWarning, "expected settlement price") {
		t.Errorf("unexpected warning %q", notEx.MissingDataWarning)
	}
}

func TestProject_CoveredCallAfterSharesCalledAway(t *testing.T) {
	rec := coveredCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Exercised})
	next := NewPositionInput{Strike: d(185), Premium: d(4), ExpectedSettlementPrice: nd(190)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	// Nothing to sell: premium only, still calculated.
	if !ex.IsCalculated || !ex.NewLegPnL.Decimal.Equal(d(2000)) {
		t.Errorf("expected exercised new leg 2000, got %+v", ex.NewLegPnL)
	}
	if !ex.TotalPnL.Decimal.Equal(d(7250)) {
		t.Errorf("expected total 7250, got %s", ex.TotalPnL.Decimal)
	}
	if ex.CostBasis.Valid || ex.ReturnPercent.Valid {
		t.Error("no stock means no cost basis and no return")
	}
	if !strings.Contains(ex.Description, "nothing to sell") {
		t.Errorf("unexpected description %q", ex.Description)
	}

	if notEx.IsCalculated {
		t.Fatal("no stock position should leave not-exercised uncalculated")
	}
	if !strings.Contains(notEx.MissingDataWarning, "no stock position") {
		t.Errorf("unexpected warning %q", notEx.MissingDataWarning)
	}
}

func TestProject_CoveredCallPartialCoverage(t *testing.T) {
	rec := coveredCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})
	// 3 contracts against 500 shares: 300 sold, 200 kept.
	next := NewPositionInput{Strike: d(185), Premium: d(4), Quantity: qty(3), ExpectedSettlementPrice: nd(190)}

	ex, _ := ProjectScenarios(rec, resolved, next)

	// (185-175)*300 + 1200 + (190-175)*200
	if !ex.NewLegPnL.Decimal.Equal(d(7200)) {
		t.Errorf("expected new leg 7200, got %s", ex.NewLegPnL.Decimal)
	}
	if ex.FinalStock == nil || ex.FinalStock.Quantity != 200 {
		t.Errorf("expected 200 shares left, got %+v", ex.FinalStock)
	}
}

func TestProject_NakedCall(t *testing.T) {
	rec := nakedCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})
	next := NewPositionInput{Strike: d(190), Premium: d(5), ExpectedSettlementPrice: nd(195)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	// 2000 - (195-190)*400 = 0: a computed zero, not a placeholder.
	if !ex.IsCalculated || !ex.NewLegPnL.Valid || !ex.NewLegPnL.Decimal.IsZero() {
		t.Errorf("expected calculated zero new leg, got %+v", ex.NewLegPnL)
	}
	if !ex.TotalPnL.Decimal.Equal(d(2400)) {
		t.Errorf("expected total 2400, got %s", ex.TotalPnL.Decimal)
	}
	if !ex.CostBasis.Decimal.Equal(d(14800)) {
		t.Errorf("expected margin cost basis 14800, got %s", ex.CostBasis.Decimal)
	}
	if !ex.ReturnPercent.Decimal.Equal(d(16.22)) {
		t.Errorf("expected return 16.22%%, got %s", ex.ReturnPercent.Decimal)
	}

	if !notEx.NewLegPnL.Decimal.Equal(d(2000)) || !notEx.TotalPnL.Decimal.Equal(d(4400)) {
		t.Errorf("expected not-exercised 2000/4400, got %s/%s", notEx.NewLegPnL.Decimal, notEx.TotalPnL.Decimal)
	}
	if !notEx.ReturnPercent.Decimal.Equal(d(29.73)) {
		t.Errorf("expected return 29.73%%, got %s", notEx.ReturnPercent.Decimal)
	}
}

func TestProject_NakedCallMissingExpectedPrice(t *testing.T) {
	rec := nakedCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})

	ex, notEx := ProjectScenarios(rec, resolved, NewPositionInput{Strike: d(190), Premium: d(5)})

	if ex.IsCalculated {
		t.Fatal("exercised naked call must not be calculated without an expected price")
	}
	if ex.NewLegPnL.Valid || ex.TotalPnL.Valid {
		t.Error("missing data must be absent, not a zero placeholder")
	}
	if ex.MissingDataWarning == "" {
		t.Error("expected a missing data warning")
	}
	if !notEx.IsCalculated || notEx.MissingDataWarning != "" {
		t.Errorf("not-exercised naked call is deterministic, got %+v", notEx)
	}
}

func TestProject_CashSecuredPut(t *testing.T) {
	rec := putRecord(model.CashSecuredPut)
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})
	next := NewPositionInput{Strike: d(95), Premium: d(1.5)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	if !ex.NewLegPnL.Decimal.Equal(d(150)) || !ex.TotalPnL.Decimal.Equal(d(350)) {
		t.Errorf("expected 150/350, got %s/%s", ex.NewLegPnL.Decimal, ex.TotalPnL.Decimal)
	}
	if ex.FinalStock == nil || ex.FinalStock.Quantity != 100 || !ex.FinalStock.CostBasisPerShare.Decimal.Equal(d(93.5)) {
		t.Errorf("expected 100 shares at 93.5, got %+v", ex.FinalStock)
	}
	// 95*100 - 150
	if !ex.CostBasis.Decimal.Equal(d(9350)) {
		t.Errorf("expected cost basis 9350, got %s", ex.CostBasis.Decimal)
	}
	if !ex.ReturnPercent.Decimal.Equal(d(3.74)) {
		t.Errorf("expected return 3.74%%, got %s", ex.ReturnPercent.Decimal)
	}

	if !notEx.CostBasis.Decimal.Equal(d(9500)) {
		t.Errorf("expected cost basis 9500, got %s", notEx.CostBasis.Decimal)
	}
	if notEx.FinalStock != nil {
		t.Errorf("expected no stock, got %+v", notEx.FinalStock)
	}
}

func TestProject_PutAfterAssignmentMergesStock(t *testing.T) {
	rec := putRecord(model.CashSecuredPut)
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Exercised})
	next := NewPositionInput{Strike: d(95), Premium: d(1.5)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	// 100 @ 98 + 100 @ 93.5
	if ex.FinalStock == nil || ex.FinalStock.Quantity != 200 {
		t.Fatalf("expected 200 shares, got %+v", ex.FinalStock)
	}
	if !ex.FinalStock.CostBasisPerShare.Decimal.Equal(d(95.75)) {
		t.Errorf("expected average cost 95.75, got %s", ex.FinalStock.CostBasisPerShare.Decimal)
	}
	if notEx.FinalStock == nil || notEx.FinalStock.Quantity != 100 {
		t.Errorf("expected assigned shares retained, got %+v", notEx.FinalStock)
	}
}

func TestProject_NakedPutUsesMargin(t *testing.T) {
	rec := putRecord(model.NakedPut)
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})

	ex, notEx := ProjectScenarios(rec, resolved, NewPositionInput{Strike: d(95), Premium: d(1.5)})

	for _, s := range []ScenarioResult{ex, notEx} {
		if !s.CostBasis.Decimal.Equal(d(1500)) {
			t.Errorf("%s: expected margin 1500, got %s", s.Scenario, s.CostBasis.Decimal)
		}
	}
}

func TestProject_ZeroCostBasisHasNoReturn(t *testing.T) {
	rec := putRecord(model.NakedPut)
	rec.MarginOverride = nd(0)
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})

	ex, _ := ProjectScenarios(rec, resolved, NewPositionInput{Strike: d(95), Premium: d(1.5)})

	if !ex.IsCalculated {
		t.Fatal("expected calculated scenario")
	}
	if ex.ReturnPercent.Valid {
		t.Errorf("return must be absent for a zero cost basis, got %s", ex.ReturnPercent.Decimal)
	}
}

func TestProject_BuyCall(t *testing.T) {
	rec := model.StrategyRecord{Variant: model.BuyCall, Strike: d(100), Premium: d(3), Contracts: 1}
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Expired})
	next := NewPositionInput{Strike: d(105), Premium: d(2), ExpectedSettlementPrice: nd(110)}

	ex, notEx := ProjectScenarios(rec, resolved, next)

	// (110-105)*100 - 200
	if !ex.NewLegPnL.Decimal.Equal(d(300)) || !ex.TotalPnL.Decimal.Equal(d(0)) {
		t.Errorf("expected 300/0, got %s/%s", ex.NewLegPnL.Decimal, ex.TotalPnL.Decimal)
	}
	if !notEx.NewLegPnL.Decimal.Equal(d(-200)) || !notEx.TotalPnL.Decimal.Equal(d(-500)) {
		t.Errorf("expected -200/-500, got %s/%s", notEx.NewLegPnL.Decimal, notEx.TotalPnL.Decimal)
	}
	if !notEx.ReturnPercent.Decimal.Equal(d(-250)) {
		t.Errorf("expected return -250%%, got %s", notEx.ReturnPercent.Decimal)
	}
}

func TestProject_VariantOverride(t *testing.T) {
	rec := coveredCallRecord()
	resolved := ResolveOldLeg(rec, OldLegAssumption{EndMode: Exercised})
	next := NewPositionInput{Variant: model.CashSecuredPut, Strike: d(170), Premium: d(3)}

	ex, _ := ProjectScenarios(rec, resolved, next)

	if ex.FinalStock == nil || ex.FinalStock.Quantity != 500 {
		t.Errorf("rolling into a put should use put logic, got %+v", ex.FinalStock)
	}
}

func TestReturnPercent_IsScaled(t *testing.T) {
	tests := []struct {
		total, basis float64
		want         float64
	}{
		{50, 1000, 5},
		{-250, 1000, -25},
		{1, 3, 33.33},
	}
	for _, tt := range tests {
		got := returnPercent(d(tt.total), nd(tt.basis))
		if !got.Valid || !got.Decimal.Equal(d(tt.want)) {
			t.Errorf("returnPercent(%v, %v) = %+v, want %v", tt.total, tt.basis, got, tt.want)
		}
	}
	if returnPercent(d(50), nd(0)).Valid {
		t.Error("zero cost basis should leave the return absent")
	}
}
