package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/clientdata"
	"github.com/aristath/folio/internal/domain"
)

// Fetch window padding around a requested date. Markets close for
// weekends and holidays, so the wanted day may have no print at all.
const (
	lookbackDays  = 5
	lookaheadDays = 1
)

// cachedClose is the structure stored in the historical_prices table.
type cachedClose struct {
	Close    float64 `json:"close"`
	Currency string  `json:"currency"`
}

// HistoricalService fetches daily closes for valuation history. Closes
// never change once printed, so they cache aggressively.
type HistoricalService struct {
	provider  domain.MarketDataProvider
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewHistoricalService creates a historical close service.
// cacheRepo is optional - if nil, caching is disabled.
func NewHistoricalService(provider domain.MarketDataProvider, cacheRepo *clientdata.Repository, log zerolog.Logger) *HistoricalService {
	return &HistoricalService{
		provider:  provider,
		cacheRepo: cacheRepo,
		log:       log.With().Str("service", "historical").Logger(),
	}
}

// CloseOn returns the daily close for a symbol on a calendar day, in the
// instrument's trading currency. If the day itself has no session, the
// close nearest by absolute day-distance inside a small window around it
// is used.
func (s *HistoricalService) CloseOn(ctx context.Context, symbol string, date time.Time) (float64, string, error) {
	date = domain.Day(date)
	cacheKey := symbol + "|" + date.Format("2006-01-02")

	if s.cacheRepo != nil {
		data, err := s.cacheRepo.GetIfFresh("historical_prices", cacheKey)
		if err == nil && data != nil {
			var cached cachedClose
			if err := json.Unmarshal(data, &cached); err == nil && cached.Close > 0 {
				return cached.Close, cached.Currency, nil
			}
		}
	}

	start := date.AddDate(0, 0, -lookbackDays)
	end := date.AddDate(0, 0, lookaheadDays)

	series, err := s.provider.HistoricalSeries(ctx, symbol, start, end)
	if err != nil {
		return 0, "", fmt.Errorf("failed to fetch closes for %s: %w", symbol, err)
	}

	candle, ok := pickClose(series.Candles, date)
	if !ok {
		return 0, "", fmt.Errorf("no close for %s around %s", symbol, date.Format("2006-01-02"))
	}

	if s.cacheRepo != nil {
		cached := cachedClose{Close: candle.Close, Currency: series.Currency}
		if err := s.cacheRepo.Store("historical_prices", cacheKey, cached, clientdata.TTLHistoricalPrice); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache close")
		}
	}

	return candle.Close, series.Currency, nil
}

// MonthEndCloses returns the last close of each requested month for a
// symbol, keyed by "YYYY-MM". The whole span is fetched in one provider
// call. Months with no session inside them are absent from the result.
func (s *HistoricalService) MonthEndCloses(ctx context.Context, symbol string, months []string) (map[string]float64, string, error) {
	if len(months) == 0 {
		return map[string]float64{}, "", nil
	}

	first, err := time.Parse("2006-01", months[0])
	if err != nil {
		return nil, "", fmt.Errorf("bad month %q: %w", months[0], err)
	}
	last, err := time.Parse("2006-01", months[len(months)-1])
	if err != nil {
		return nil, "", fmt.Errorf("bad month %q: %w", months[len(months)-1], err)
	}

	start := first.AddDate(0, 0, -lookbackDays)
	end := last.AddDate(0, 1, lookaheadDays)

	series, err := s.provider.HistoricalSeries(ctx, symbol, start, end)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch closes for %s: %w", symbol, err)
	}

	closes := make(map[string]float64, len(months))
	for _, month := range months {
		monthStart, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, "", fmt.Errorf("bad month %q: %w", month, err)
		}
		monthEnd := monthStart.AddDate(0, 1, -1)

		if candle, ok := latestUpTo(series.Candles, domain.Day(monthEnd)); ok && !candle.Date.Before(monthStart.AddDate(0, 0, -lookbackDays)) {
			closes[month] = candle.Close
		}
	}

	return closes, series.Currency, nil
}

// pickClose finds the candle for a day: an exact date match wins, else
// the candle closest by absolute day-distance. Equidistant candidates
// resolve to the earlier session. Zero closes count as no data.
func pickClose(candles []domain.Candle, date time.Time) (domain.Candle, bool) {
	var best domain.Candle
	var bestDist time.Duration
	found := false
	for _, c := range candles {
		if c.Close <= 0 {
			continue
		}
		dist := c.Date.Sub(date)
		if dist < 0 {
			dist = -dist
		}
		if dist == 0 {
			return c, true
		}
		if !found || dist < bestDist || (dist == bestDist && c.Date.Before(best.Date)) {
			best = c
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// latestUpTo returns the last candle dated on or before the given day.
// Zero closes count as no data.
func latestUpTo(candles []domain.Candle, date time.Time) (domain.Candle, bool) {
	var best domain.Candle
	found := false
	for _, c := range candles {
		if c.Close <= 0 || c.Date.After(date) {
			continue
		}
		if !found || c.Date.After(best.Date) {
			best = c
			found = true
		}
	}
	return best, found
}
