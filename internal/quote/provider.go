package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/roll-engine/internal/metrics"
)

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 30 * time.Second

const defaultConcurrency = 4

// Update is a price observation.
type Update struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// SymbolSource lists the symbols to poll, typically every symbol with a
// stored strategy.
type SymbolSource func(ctx context.Context) ([]string, error)

// Options configures a Provider. Zero values select defaults.
type Options struct {
	Interval    time.Duration
	Concurrency int

	// Extra symbols are polled in addition to those from the source.
	Extra []string

	// OnUpdate is called after every successful fetch, outside any lock.
	OnUpdate func(Update)
}

// Provider polls prices in the background and serves the last known value
// per symbol. A failed fetch keeps the previous value; consecutive cycles
// in which every fetch fails back off exponentially.
type Provider struct {
	fetcher     Fetcher
	source      SymbolSource
	extra       []string
	interval    time.Duration
	concurrency int
	onUpdate    func(Update)

	mu     sync.RWMutex
	prices map[string]Update

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewProvider creates a provider. It does not poll until Start is called.
func NewProvider(f Fetcher, source SymbolSource, opts Options) *Provider {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if source == nil {
		source = func(context.Context) ([]string, error) { return nil, nil }
	}
	return &Provider{
		fetcher:     f,
		source:      source,
		extra:       opts.Extra,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		onUpdate:    opts.OnUpdate,
		prices:      make(map[string]Update),
	}
}

// Start begins background polling. The first refresh runs immediately.
// Calling Start on a running provider is a no-op.
func (p *Provider) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	slog.Info("price provider started", "interval", p.interval, "concurrency", p.concurrency)
}

// Stop halts polling and waits for the loop to exit. Known prices remain
// readable.
func (p *Provider) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	slog.Info("price provider stopped")
}

func (p *Provider) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    10 * p.interval,
		Factor: 2,
		Jitter: true,
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := p.interval
		if _, err := p.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = b.Duration()
			slog.Warn("price refresh failed", "err", err, "retry_in", wait)
		} else {
			b.Reset()
		}
		timer.Reset(wait)
	}
}

// Refresh fetches every tracked symbol once and returns how many prices
// were updated. Individual failures are logged and keep the previous
// value; an error is returned only when the symbol list cannot be built
// or every fetch failed.
func (p *Provider) Refresh(ctx context.Context) (int, error) {
	symbols, err := p.symbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("list symbols: %w", err)
	}
	metrics.TrackedSymbols.Set(float64(len(symbols)))
	if len(symbols) == 0 {
		return 0, nil
	}

	var (
		mu      sync.Mutex
		updates []Update
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			price, err := p.fetcher.Fetch(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.PriceFetches.WithLabelValues("error").Inc()
				slog.Debug("price fetch failed", "symbol", sym, "err", err)
				lastErr = err
				return nil
			}
			metrics.PriceFetches.WithLabelValues("ok").Inc()
			updates = append(updates, Update{Symbol: sym, Price: price, At: time.Now().UTC()})
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	for _, u := range updates {
		p.prices[u.Symbol] = u
	}
	p.mu.Unlock()

	if p.onUpdate != nil {
		for _, u := range updates {
			p.onUpdate(u)
		}
	}

	if len(updates) == 0 {
		return 0, fmt.Errorf("all %d fetches failed: %w", len(symbols), lastErr)
	}
	return len(updates), nil
}

// LastKnownPrice returns the most recent successfully fetched price.
func (p *Provider) LastKnownPrice(symbol string) (decimal.Decimal, bool) {
	u, err := p.Quote(symbol)
	if err != nil {
		return decimal.Zero, false
	}
	return u.Price, true
}

// Quote returns the most recent observation for symbol, or ErrNoPrice.
func (p *Provider) Quote(symbol string) (Update, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	u, ok := p.prices[strings.ToUpper(symbol)]
	if !ok {
		return Update{}, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return u, nil
}

// Set records a price directly, as if it had been fetched.
func (p *Provider) Set(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[strings.ToUpper(symbol)] = Update{Symbol: strings.ToUpper(symbol), Price: price, At: time.Now().UTC()}
	p.mu.Unlock()
}

// symbols merges source and extra symbols, upper-cased and deduplicated.
func (p *Provider) symbols(ctx context.Context) ([]string, error) {
	fromSource, err := p.source(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	all := append(append([]string{}, fromSource...), p.extra...)
	for _, s := range all {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
