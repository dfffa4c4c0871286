package domain

import (
	"context"
	"time"
)

// SearchResult is one candidate returned by a ticker search.
type SearchResult struct {
	ISIN           string
	Symbol         string
	Name           string
	PrimaryListing bool
}

// Quote is a current price in the instrument's trading currency.
type Quote struct {
	Price    float64
	Currency string
}

// Candle is one daily close in a historical series.
type Candle struct {
	Date  time.Time
	Close float64
}

// HistoricalSeries is a daily close series with its trading currency.
type HistoricalSeries struct {
	Currency string
	Candles  []Candle
}

// MarketDataProvider is the boundary contract for the upstream quote API.
// Responses are validated and normalized by the client before they enter
// the core; Search returns an empty slice, never an error, on no match.
type MarketDataProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	HistoricalSeries(ctx context.Context, symbol string, start, end time.Time) (HistoricalSeries, error)
	// Reachable reports whether the provider can currently be reached.
	Reachable(ctx context.Context) bool
}

// RateProvider is the boundary contract for the upstream FX API.
type RateProvider interface {
	LatestRate(ctx context.Context, from, to string) (float64, error)
}
