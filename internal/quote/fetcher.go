// Package quote supplies last-known underlying prices. A Provider polls a
// Fetcher on an interval for every symbol it tracks and keeps the most
// recent successful price per symbol.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"gopkg.in/resty.v1"
)

var (
	// ErrNoPrice is returned when no price is known for a symbol.
	ErrNoPrice = errors.New("quote: no price available")

	// ErrUpstream is returned when the quote endpoint answers with a
	// non-success status.
	ErrUpstream = errors.New("quote: upstream error")
)

// Fetcher retrieves the current price of one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// HTTPFetcher reads prices from a JSON HTTP endpoint. The URL carries a
// {symbol} path parameter; the price is located in the response with a
// gjson path, which may itself contain {symbol}.
//
// Example: URL https://quotes.example.com/v1/quote/{symbol}, path "last.price".
type HTTPFetcher struct {
	client    *resty.Client
	url       string
	pricePath string
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(url, pricePath string, timeout time.Duration) *HTTPFetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPFetcher{client: client, url: url, pricePath: pricePath}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"symbol": symbol}).
		Get(f.url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return decimal.Zero, fmt.Errorf("%w: %s returned %d", ErrUpstream, symbol, resp.StatusCode())
	}
	return parsePrice(resp.Body(), strings.ReplaceAll(f.pricePath, "{symbol}", symbol), symbol)
}

// parsePrice extracts a positive price at path. Numbers keep their raw JSON
// text so no float rounding happens on the way in.
func parsePrice(body []byte, path, symbol string) (decimal.Decimal, error) {
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return decimal.Zero, fmt.Errorf("%w: %s missing at %q", ErrNoPrice, symbol, path)
	}

	raw := res.String()
	if res.Type == gjson.Number {
		raw = res.Raw
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s has non-numeric price %q", ErrNoPrice, symbol, raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has non-positive price %s", ErrNoPrice, symbol, price)
	}
	return price, nil
}
