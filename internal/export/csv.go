// Package export renders roll analysis output in tabular formats.
package export

import (
	"io"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/roll"
)

// CurveRow is one CSV line of a payoff curve. Decimals are written as
// fixed strings so the file round-trips without float rounding.
type CurveRow struct {
	SettlementPrice string `csv:"settlement_price"`
	TotalPnL        string `csv:"total_pnl"`
}

// ScenarioRow is one CSV line of a scenario comparison. Uncalculated values
// are empty cells.
type ScenarioRow struct {
	Scenario      string `csv:"scenario"`
	Calculated    bool   `csv:"calculated"`
	OldLegPnL     string `csv:"old_leg_pnl"`
	NewLegPnL     string `csv:"new_leg_pnl"`
	TotalPnL      string `csv:"total_pnl"`
	CostBasis     string `csv:"cost_basis"`
	ReturnPercent string `csv:"return_percent"`
	Warning       string `csv:"warning"`
}

// CurveRows converts a payoff curve to CSV rows.
func CurveRows(curve []roll.PayoffPoint) []*CurveRow {
	rows := make([]*CurveRow, len(curve))
	for i, pt := range curve {
		rows[i] = &CurveRow{
			SettlementPrice: pt.SettlementPrice.StringFixed(roll.PriceScale),
			TotalPnL:        pt.TotalPnL.StringFixed(2),
		}
	}
	return rows
}

// WriteCurveCSV writes the curve with a header line.
func WriteCurveCSV(w io.Writer, curve []roll.PayoffPoint) error {
	return gocsv.Marshal(CurveRows(curve), w)
}

// WriteScenariosCSV writes both scenarios of an analysis with a header line.
func WriteScenariosCSV(w io.Writer, a *roll.Analysis) error {
	rows := []*ScenarioRow{scenarioRow(a.Exercised), scenarioRow(a.NotExercised)}
	return gocsv.Marshal(rows, w)
}

func scenarioRow(s roll.ScenarioResult) *ScenarioRow {
	return &ScenarioRow{
		Scenario:      string(s.Scenario),
		Calculated:    s.IsCalculated,
		OldLegPnL:     s.OldLegPnL.StringFixed(2),
		NewLegPnL:     cell(s.NewLegPnL),
		TotalPnL:      cell(s.TotalPnL),
		CostBasis:     cell(s.CostBasis),
		ReturnPercent: cell(s.ReturnPercent),
		Warning:       s.MissingDataWarning,
	}
}

func cell(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
