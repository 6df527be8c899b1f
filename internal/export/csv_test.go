package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
	"github.com/atmx/roll-engine/internal/roll"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestWriteCurveCSV(t *testing.T) {
	curve := []roll.PayoffPoint{
		{SettlementPrice: d(144), TotalPnL: d(-1000)},
		{SettlementPrice: d(144.77), TotalPnL: d(-614.5)},
	}
	var buf bytes.Buffer
	if err := WriteCurveCSV(&buf, curve); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"settlement_price,total_pnl",
		"144.0000,-1000.00",
		"144.7700,-614.50",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestWriteScenariosCSV(t *testing.T) {
	rec := model.StrategyRecord{Variant: model.NakedCall, Strike: d(185), Premium: d(6), Contracts: 4}
	a, err := roll.Analyze(roll.Request{
		Strategy:   rec,
		Assumption: roll.OldLegAssumption{EndMode: roll.Expired},
		Next:       roll.NewPositionInput{Strike: d(190), Premium: d(5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteScenariosCSV(&buf, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "scenario,calculated,old_leg_pnl,new_leg_pnl,total_pnl,cost_basis,return_percent,warning") {
		t.Errorf("unexpected header in %q", out)
	}
	// Exercised needs an expected price: total left empty.
	if !strings.Contains(out, "exercised,false,2400.00,,,14800.00,,") {
		t.Errorf("expected uncalculated exercised row, got %q", out)
	}
	if !strings.Contains(out, "not_exercised,true,2400.00,2000.00,4400.00,14800.00,29.73,") {
		t.Errorf("expected calculated not_exercised row, got %q", out)
	}
}
