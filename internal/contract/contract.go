// Package contract handles option contract symbol parsing and validation of
// strategy records and roll requests before they reach the roll engine.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/roll-engine/internal/model"
	"github.com/atmx/roll-engine/internal/roll"
)

// symbolRegex matches an underlying ticker: AAPL, BRK.B, SPY.
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// optionRegex matches an OCC option symbol: {root}{YYMMDD}{C|P}{strike*1000, 8 digits}
// Example: AAPL250815C00180000
var optionRegex = regexp.MustCompile(`^([A-Z][A-Z0-9.]{0,5})(\d{6})([CP])(\d{8})$`)

var (
	ErrInvalidSymbol    = errors.New("contract: invalid symbol")
	ErrInvalidOption    = errors.New("contract: invalid option symbol")
	ErrInvalidVariant   = errors.New("contract: unsupported strategy variant")
	ErrInvalidStrike    = errors.New("contract: strike must be positive")
	ErrInvalidPremium   = errors.New("contract: premium must not be negative")
	ErrInvalidQuantity  = errors.New("contract: contract count must be positive")
	ErrMissingCostBasis = errors.New("contract: covered call requires a positive stock cost basis")
	ErrInvalidMargin    = errors.New("contract: margin override only applies to naked variants and must not be negative")
	ErrInvalidEndMode   = errors.New("contract: unsupported end mode")
	ErrInvalidPrice     = errors.New("contract: price must not be negative")
)

var strikeScale = decimal.NewFromInt(1000)

// OptionContract is a parsed OCC option symbol.
type OptionContract struct {
	Symbol     string          `json:"symbol"`
	Underlying string          `json:"underlying"`
	Expiry     time.Time       `json:"expiry"`
	Call       bool            `json:"call"`
	Strike     decimal.Decimal `json:"strike"`
}

// ParseSymbol normalizes and validates an underlying ticker.
func ParseSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRegex.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return s, nil
}

// ParseOptionSymbol parses and validates an OCC option symbol.
// Format: {root}{YYMMDD}{C|P}{strike×1000 as 8 digits}
func ParseOptionSymbol(symbol string) (*OptionContract, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	matches := optionRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {root}{YYMMDD}{C|P}{strike×1000})",
			ErrInvalidOption, symbol)
	}

	expiry, err := time.Parse("060102", matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidOption, matches[2])
	}

	strike, err := decimal.NewFromString(matches[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidOption, matches[4])
	}
	strike = strike.Div(strikeScale)
	if !strike.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStrike, matches[4])
	}

	return &OptionContract{
		Symbol:     s,
		Underlying: matches[1],
		Expiry:     expiry,
		Call:       matches[3] == "C",
		Strike:     strike,
	}, nil
}

// Matches reports whether the contract's option type fits the variant.
func (c *OptionContract) Matches(v model.Variant) bool {
	return v.Valid() && c.Call == v.IsCall()
}

// ValidateStrategy checks a strategy record and normalizes its symbol in
// place.
func ValidateStrategy(rec *model.StrategyRecord) error {
	sym, err := ParseSymbol(rec.Symbol)
	if err != nil {
		return err
	}
	rec.Symbol = sym

	if !rec.Variant.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVariant, rec.Variant)
	}
	if !rec.Strike.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidStrike, rec.Strike)
	}
	if rec.Premium.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidPremium, rec.Premium)
	}
	if rec.Contracts <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, rec.Contracts)
	}

	if rec.Variant == model.CoveredCall {
		if !rec.StockCostBasis.Valid || !rec.StockCostBasis.Decimal.IsPositive() {
			return ErrMissingCostBasis
		}
	}

	if rec.MarginOverride.Valid {
		naked := rec.Variant == model.NakedCall || rec.Variant == model.NakedPut
		if !naked || rec.MarginOverride.Decimal.IsNegative() {
			return fmt.Errorf("%w: %s on %s", ErrInvalidMargin, rec.MarginOverride.Decimal, rec.Variant)
		}
	}
	return nil
}

// ValidateRoll checks the caller-supplied parts of a roll request. The
// strategy itself is assumed to have passed ValidateStrategy when stored.
func ValidateRoll(req roll.Request) error {
	a := req.Assumption
	if !a.EndMode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEndMode, a.EndMode)
	}
	if err := nonNegative("close_price", a.ClosePrice); err != nil {
		return err
	}
	if err := nonNegative("market_price_at_exercise", a.MarketPriceAtExercise); err != nil {
		return err
	}

	next := req.Next
	if next.Variant != "" && !next.Variant.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVariant, next.Variant)
	}
	if !next.Strike.IsPositive() {
		return fmt.Errorf("%w: new strike %s", ErrInvalidStrike, next.Strike)
	}
	if next.Premium.IsNegative() {
		return fmt.Errorf("%w: new premium %s", ErrInvalidPremium, next.Premium)
	}
	if next.Quantity != nil && *next.Quantity <= 0 {
		return fmt.Errorf("%w: new quantity %d", ErrInvalidQuantity, *next.Quantity)
	}
	return nonNegative("expected_settlement_price", next.ExpectedSettlementPrice)
}

func nonNegative(field string, v decimal.NullDecimal) error {
	if v.Valid && v.Decimal.IsNegative() {
		return fmt.Errorf("%w: %s=%s", ErrInvalidPrice, field, v.Decimal)
	}
	return nil
}
