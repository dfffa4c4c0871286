package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/clientdata"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/markethours"
)

// cachedPrice is the structure stored in the current_prices table.
type cachedPrice struct {
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
	Ticker   string    `json:"ticker"`
	AsOf     time.Time `json:"as_of"`
}

// RefresherConfig tunes the refresh policy.
type RefresherConfig struct {
	// Staleness bounds how old known prices may be for a closed-market
	// cycle to be skipped.
	Staleness time.Duration
	// Exchange is the venue whose calendar gates quote fetches.
	Exchange string
}

// RefreshResult carries per-instrument outcomes of one refresh run.
// Failures are isolated: an instrument either gets a fresh price, a
// fallback price with an error note, or an error note alone.
type RefreshResult struct {
	Prices map[string]domain.PriceOutcome
	Errors map[string]string
}

// Refresher fans out quote fetches for the current positions. A guard map
// prevents the same instrument from being fetched twice concurrently when
// refresh runs overlap.
type Refresher struct {
	provider  domain.MarketDataProvider
	resolver  *TickerResolver
	hours     *markethours.Service
	cacheRepo *clientdata.Repository
	cfg       RefresherConfig
	log       zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	now      func() time.Time
}

// NewRefresher creates a price refresh orchestrator.
func NewRefresher(
	provider domain.MarketDataProvider,
	resolver *TickerResolver,
	hours *markethours.Service,
	cacheRepo *clientdata.Repository,
	cfg RefresherConfig,
	log zerolog.Logger,
) *Refresher {
	if cfg.Staleness <= 0 {
		cfg.Staleness = time.Hour
	}
	return &Refresher{
		provider:  provider,
		resolver:  resolver,
		hours:     hours,
		cacheRepo: cacheRepo,
		cfg:       cfg,
		log:       log.With().Str("service", "price_refresh").Logger(),
		inFlight:  make(map[string]bool),
		now:       time.Now,
	}
}

// Refresh fetches prices for every position and returns the per-instrument
// outcomes. known carries the last good prices from the previous run; they
// let a closed-market cycle be skipped outright and serve as fallback when
// a fetch fails.
func (r *Refresher) Refresh(ctx context.Context, positions []domain.Position, known map[string]domain.PriceOutcome) RefreshResult {
	result := RefreshResult{
		Prices: make(map[string]domain.PriceOutcome, len(positions)),
		Errors: make(map[string]string),
	}
	if len(positions) == 0 {
		return result
	}

	// Run id correlates the fan-out log lines of overlapping runs.
	log := r.log.With().Str("run_id", uuid.NewString()).Logger()

	// One reachability check instead of N failing fetches.
	if !r.provider.Reachable(ctx) {
		log.Warn().Msg("Provider unreachable, serving fallback prices")
		for _, pos := range positions {
			outcome, note := r.fallback(pos, known, "provider unreachable")
			result.Prices[pos.InstrumentID] = outcome
			result.Errors[pos.InstrumentID] = note
		}
		return result
	}

	// The whole cycle is skipped only when nothing can have moved: the
	// venue is closed, every position has a price inside the freshness
	// window, and no ticker memo needs populating. An open market forces
	// a refetch even of fresh prices.
	marketOpen := r.hours == nil || r.hours.IsOpen(r.cfg.Exchange, r.now())
	if !marketOpen && r.allCached(positions, known) {
		for _, pos := range positions {
			outcome := known[pos.InstrumentID]
			outcome.Source = domain.SourceCached
			result.Prices[pos.InstrumentID] = outcome
		}
		log.Debug().Int("positions", len(positions)).Msg("Refresh skipped, cached prices are current")
		return result
	}

	var wg sync.WaitGroup
	var resultMu sync.Mutex

	for _, pos := range positions {
		if !r.claim(pos.InstrumentID) {
			// Another run is already fetching this instrument.
			if outcome, ok := known[pos.InstrumentID]; ok {
				result.Prices[pos.InstrumentID] = outcome
			}
			continue
		}

		wg.Add(1)
		go func(pos domain.Position) {
			defer wg.Done()
			defer r.release(pos.InstrumentID)

			outcome, err := r.fetch(ctx, pos)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				fallbackOutcome, note := r.fallback(pos, known, err.Error())
				result.Prices[pos.InstrumentID] = fallbackOutcome
				result.Errors[pos.InstrumentID] = note
				return
			}
			result.Prices[pos.InstrumentID] = outcome
		}(pos)
	}

	wg.Wait()

	log.Info().
		Int("positions", len(positions)).
		Int("errors", len(result.Errors)).
		Msg("Price refresh completed")

	return result
}

// allCached reports whether every position has a known price inside the
// freshness window and a populated ticker memo. One stale or unpriced or
// unresolved position makes the whole cycle run.
func (r *Refresher) allCached(positions []domain.Position, known map[string]domain.PriceOutcome) bool {
	for _, pos := range positions {
		outcome, ok := known[pos.InstrumentID]
		if !ok || r.now().Sub(outcome.AsOf) >= r.cfg.Staleness {
			return false
		}
		if !r.resolver.Known(pos.InstrumentID) {
			return false
		}
	}
	return true
}

func (r *Refresher) claim(instrumentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[instrumentID] {
		return false
	}
	r.inFlight[instrumentID] = true
	return true
}

func (r *Refresher) release(instrumentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, instrumentID)
}

// fetch resolves the ticker and pulls one quote.
func (r *Refresher) fetch(ctx context.Context, pos domain.Position) (domain.PriceOutcome, error) {
	ticker := r.resolver.Resolve(ctx, pos.InstrumentID, pos.Name)

	quote, err := r.provider.Quote(ctx, ticker)
	if err != nil {
		return domain.PriceOutcome{}, err
	}

	outcome := domain.PriceOutcome{
		InstrumentID: pos.InstrumentID,
		Ticker:       ticker,
		Price:        quote.Price,
		Currency:     quote.Currency,
		AsOf:         r.now(),
		Source:       domain.SourceFetched,
	}

	if r.cacheRepo != nil {
		cached := cachedPrice{Price: quote.Price, Currency: quote.Currency, Ticker: ticker, AsOf: outcome.AsOf}
		if err := r.cacheRepo.Store("current_prices", pos.InstrumentID, cached, clientdata.TTLCurrentPrice); err != nil {
			r.log.Warn().Err(err).Str("instrument", pos.InstrumentID).Msg("Failed to cache price")
		}
	}

	return outcome, nil
}

// fallback degrades in two steps: the last good price whatever its age,
// then the position's average cost. The error note names the real cause
// so the API surface can report it next to the substituted value.
func (r *Refresher) fallback(pos domain.Position, known map[string]domain.PriceOutcome, cause string) (domain.PriceOutcome, string) {
	if outcome, ok := known[pos.InstrumentID]; ok {
		outcome.Source = domain.SourceCached
		return outcome, cause + " (using last known price)"
	}

	if r.cacheRepo != nil {
		if data, err := r.cacheRepo.Get("current_prices", pos.InstrumentID); err == nil && data != nil {
			var cached cachedPrice
			if err := json.Unmarshal(data, &cached); err == nil && cached.Price > 0 {
				return domain.PriceOutcome{
					InstrumentID: pos.InstrumentID,
					Ticker:       cached.Ticker,
					Price:        cached.Price,
					Currency:     cached.Currency,
					AsOf:         cached.AsOf,
					Source:       domain.SourceCached,
				}, cause + " (using persisted price)"
			}
		}
	}

	cost, _ := pos.AverageCost.Float64()
	return domain.PriceOutcome{
		InstrumentID: pos.InstrumentID,
		Price:        cost,
		Currency:     pos.Currency,
		AsOf:         r.now(),
		Source:       domain.SourceCostBasis,
	}, cause + " (using cost basis)"
}
