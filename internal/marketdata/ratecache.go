// Package marketdata turns instrument identifiers into tickers, tickers
// into prices, and currencies into display values. It owns the refresh
// orchestration and every fallback the valuation path depends on.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/currency"
	"github.com/aristath/folio/internal/domain"
)

// rateTTL bounds how long an in-memory rate is served without asking the
// provider again. Valuations within one refresh burst share rates.
const rateTTL = 5 * time.Minute

// usdPerUnit is the static fallback table: the approximate USD value of
// one unit of each currency. Only consulted when the provider is down and
// nothing is cached; a rough rate beats an unpriced portfolio.
var usdPerUnit = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"CHF": 1.12,
	"JPY": 0.0067,
	"CAD": 0.73,
	"AUD": 0.66,
	"SEK": 0.095,
	"NOK": 0.094,
	"DKK": 0.145,
	"HKD": 0.128,
	"ZAR": 0.055,
	"ILS": 0.27,
}

type cachedRate struct {
	rate     float64
	source   string
	cachedAt time.Time
}

// RateCache provides exchange rates with a 4-tier fallback:
// 1. Ask the provider for the pair directly
// 2. Ask for the inverse pair and invert
// 3. Cross through USD
// 4. Static table, then identity as the last resort
// Results are cached in memory for rateTTL under the requested pair.
type RateCache struct {
	provider domain.RateProvider
	log      zerolog.Logger

	mu    sync.Mutex
	rates map[string]cachedRate
	now   func() time.Time
}

// NewRateCache creates a rate cache on top of a provider.
// provider is optional - if nil, only the static tiers are available.
func NewRateCache(provider domain.RateProvider, log zerolog.Logger) *RateCache {
	return &RateCache{
		provider: provider,
		log:      log.With().Str("service", "rate_cache").Logger(),
		rates:    make(map[string]cachedRate),
		now:      time.Now,
	}
}

// Rate returns the conversion factor from one currency to another. Codes
// are normalized first, so penny variants resolve to their major unit.
// Never fails: the final tier is the identity rate.
func (c *RateCache) Rate(ctx context.Context, from, to string) float64 {
	from = currency.Normalize(from)
	to = currency.Normalize(to)
	if from == to {
		return 1.0
	}

	key := from + ":" + to

	c.mu.Lock()
	if cached, ok := c.rates[key]; ok && c.now().Sub(cached.cachedAt) < rateTTL {
		c.mu.Unlock()
		return cached.rate
	}
	c.mu.Unlock()

	rate, source := c.resolve(ctx, from, to)

	c.mu.Lock()
	c.rates[key] = cachedRate{rate: rate, source: source, cachedAt: c.now()}
	c.mu.Unlock()

	if source != "provider" {
		c.log.Warn().
			Str("from", from).
			Str("to", to).
			Float64("rate", rate).
			Str("source", source).
			Msg("Using fallback exchange rate")
	}
	return rate
}

func (c *RateCache) resolve(ctx context.Context, from, to string) (float64, string) {
	if c.provider != nil {
		// Tier 1: direct pair
		if rate, err := c.provider.LatestRate(ctx, from, to); err == nil && rate > 0 {
			return rate, "provider"
		}

		// Tier 2: inverse pair
		if rate, err := c.provider.LatestRate(ctx, to, from); err == nil && rate > 0 {
			return 1.0 / rate, "inverse"
		}

		// Tier 3: cross through USD
		if from != "USD" && to != "USD" {
			fromUSD, err1 := c.provider.LatestRate(ctx, from, "USD")
			usdTo, err2 := c.provider.LatestRate(ctx, "USD", to)
			if err1 == nil && err2 == nil && fromUSD > 0 && usdTo > 0 {
				return fromUSD * usdTo, "cross-usd"
			}
		}
	}

	// Tier 4: static table
	fromUSD, okFrom := usdPerUnit[from]
	toUSD, okTo := usdPerUnit[to]
	if okFrom && okTo && toUSD > 0 {
		return fromUSD / toUSD, "static"
	}

	// Last resort: identity. A wrong-by-rate value still tracks quantity
	// changes, which is better than dropping the position entirely.
	return 1.0, "identity"
}

// Export copies the cached rates for snapshotting, keyed by "FROM:TO".
func (c *RateCache) Export() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]float64, len(c.rates))
	for pair, cached := range c.rates {
		out[pair] = cached.rate
	}
	return out
}

// Import seeds the cache from a snapshot. Seeded rates age from now, so
// a restored session replaces them after the normal TTL.
func (c *RateCache) Import(rates map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pair, rate := range rates {
		if rate > 0 {
			c.rates[pair] = cachedRate{rate: rate, source: "snapshot", cachedAt: c.now()}
		}
	}
}

// Invalidate drops every cached rate. The scheduled refresh calls this so
// a new run starts from live rates.
func (c *RateCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = make(map[string]cachedRate)
}
