package contract

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
	"github.com/atmx/roll-engine/internal/roll"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func nd(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(f))
}

func TestParseOptionSymbol_Valid(t *testing.T) {
	c, err := ParseOptionSymbol("AAPL250815C00180000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Underlying != "AAPL" {
		t.Errorf("expected underlying=AAPL, got %s", c.Underlying)
	}
	if !c.Call {
		t.Error("expected a call")
	}
	if !c.Strike.Equal(d(180)) {
		t.Errorf("expected strike=180, got %s", c.Strike)
	}
	expected := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	if !c.Expiry.Equal(expected) {
		t.Errorf("expected expiry=%v, got %v", expected, c.Expiry)
	}
}

func TestParseOptionSymbol_FractionalStrikeAndPut(t *testing.T) {
	c, err := ParseOptionSymbol("spy251219p00452500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Call {
		t.Error("expected a put")
	}
	if !c.Strike.Equal(d(452.5)) {
		t.Errorf("expected strike=452.5, got %s", c.Strike)
	}
	if c.Symbol != "SPY251219P00452500" {
		t.Errorf("expected normalized symbol, got %s", c.Symbol)
	}
}

func TestParseOptionSymbol_Invalid(t *testing.T) {
	tests := []string{
		"",
		"AAPL",
		"AAPL250815",
		"AAPL250815X00180000", // bad option type
		"AAPL250815C0018",     // short strike
		"AAPL251315C00180000", // month 13
		"AAPL250815C00000000", // zero strike
		"1AAPL250815C00180000",
	}
	for _, sym := range tests {
		if _, err := ParseOptionSymbol(sym); err == nil {
			t.Errorf("expected error for option symbol %q", sym)
		}
	}
}

func TestOptionContract_Matches(t *testing.T) {
	call := &OptionContract{Call: true}
	if !call.Matches(model.CoveredCall) || !call.Matches(model.BuyCall) {
		t.Error("call contract should match call variants")
	}
	if call.Matches(model.NakedPut) {
		t.Error("call contract should not match a put variant")
	}
	if call.Matches(model.Variant("straddle")) {
		t.Error("unknown variants never match")
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"AAPL", "AAPL", false},
		{" brk.b ", "BRK.B", false},
		{"", "", true},
		{"1ABC", "", true},
		{"TOOLONGSYMBOL", "", true},
		{"AA PL", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSymbol(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidSymbol) {
				t.Errorf("%q: expected ErrInvalidSymbol, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: expected %q, got %q (%v)", tt.in, tt.want, got, err)
		}
	}
}

func validCoveredCall() model.StrategyRecord {
	return model.StrategyRecord{
		Symbol:         "aapl",
		Variant:        model.CoveredCall,
		Strike:         d(180),
		Premium:        d(5.5),
		Contracts:      5,
		StockCostBasis: nd(175),
	}
}

func TestValidateStrategy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.StrategyRecord)
		want   error
	}{
		{"valid", func(*model.StrategyRecord) {}, nil},
		{"bad symbol", func(r *model.StrategyRecord) { r.Symbol = "$$" }, ErrInvalidSymbol},
		{"bad variant", func(r *model.StrategyRecord) { r.Variant = "iron_condor" }, ErrInvalidVariant},
		{"zero strike", func(r *model.StrategyRecord) { r.Strike = decimal.Zero }, ErrInvalidStrike},
		{"negative premium", func(r *model.StrategyRecord) { r.Premium = d(-1) }, ErrInvalidPremium},
		{"zero contracts", func(r *model.StrategyRecord) { r.Contracts = 0 }, ErrInvalidQuantity},
		{"no cost basis", func(r *model.StrategyRecord) { r.StockCostBasis = decimal.NullDecimal{} }, ErrMissingCostBasis},
		{"margin on covered call", func(r *model.StrategyRecord) { r.MarginOverride = nd(1000) }, ErrInvalidMargin},
		{"naked call needs no cost basis", func(r *model.StrategyRecord) {
			r.Variant = model.NakedCall
			r.StockCostBasis = decimal.NullDecimal{}
			r.MarginOverride = nd(5000)
		}, nil},
		{"negative margin", func(r *model.StrategyRecord) {
			r.Variant = model.NakedPut
			r.MarginOverride = nd(-1)
		}, ErrInvalidMargin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validCoveredCall()
			tt.mutate(&rec)
			err := ValidateStrategy(&rec)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Symbol != "AAPL" {
					t.Errorf("expected normalized symbol AAPL, got %s", rec.Symbol)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateRoll(t *testing.T) {
	base := func() roll.Request {
		return roll.Request{
			Strategy:   validCoveredCall(),
			Assumption: roll.OldLegAssumption{EndMode: roll.Expired},
			Next:       roll.NewPositionInput{Strike: d(185), Premium: d(4)},
		}
	}
	zero := int64(0)

	tests := []struct {
		name   string
		mutate func(*roll.Request)
		want   error
	}{
		{"valid", func(*roll.Request) {}, nil},
		{"bad end mode", func(r *roll.Request) { r.Assumption.EndMode = "assigned" }, ErrInvalidEndMode},
		{"negative close", func(r *roll.Request) { r.Assumption.ClosePrice = nd(-1) }, ErrInvalidPrice},
		{"bad new variant", func(r *roll.Request) { r.Next.Variant = "collar" }, ErrInvalidVariant},
		{"zero new strike", func(r *roll.Request) { r.Next.Strike = decimal.Zero }, ErrInvalidStrike},
		{"negative new premium", func(r *roll.Request) { r.Next.Premium = d(-0.5) }, ErrInvalidPremium},
		{"zero quantity", func(r *roll.Request) { r.Next.Quantity = &zero }, ErrInvalidQuantity},
		{"negative expected", func(r *roll.Request) { r.Next.ExpectedSettlementPrice = nd(-3) }, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(&req)
			err := ValidateRoll(req)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
