// Package portfolio combines positions, prices and FX rates into
// portfolio-level totals and the month-by-month growth series.
package portfolio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/currency"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/marketdata"
)

// PositionValue is one valued position in the display currency.
type PositionValue struct {
	InstrumentID  string             `json:"instrument_id"`
	Name          string             `json:"name"`
	Ticker        string             `json:"ticker,omitempty"`
	Shares        decimal.Decimal    `json:"shares"`
	AverageCost   decimal.Decimal    `json:"average_cost"`
	Price         float64            `json:"price"`
	PriceCurrency string             `json:"price_currency"`
	Value         float64            `json:"value"`
	Source        domain.PriceSource `json:"source"`
	Note          string             `json:"note,omitempty"`
	Priced        bool               `json:"priced"`
}

// Valuation is the portfolio total in the display currency. Total is only
// meaningful when AllCalculated is true: a partial total would silently
// understate the portfolio, so it is withheld instead.
type Valuation struct {
	Currency      string          `json:"currency"`
	Total         float64         `json:"total"`
	AllCalculated bool            `json:"all_calculated"`
	Positions     []PositionValue `json:"positions"`
	AsOf          time.Time       `json:"as_of"`
}

// Aggregator values positions through a USD intermediate: every price is
// brought to USD first, then USD to the display currency. Two hops keep
// the rate cache small regardless of how many price currencies appear.
type Aggregator struct {
	rates *marketdata.RateCache
	log   zerolog.Logger
	now   func() time.Time
}

// NewAggregator creates a valuation aggregator.
func NewAggregator(rates *marketdata.RateCache, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		rates: rates,
		log:   log.With().Str("service", "valuation").Logger(),
		now:   time.Now,
	}
}

// Valuate totals the positions in the display currency. Positions without
// a recorded price outcome stay unpriced and withhold the total.
func (a *Aggregator) Valuate(
	ctx context.Context,
	positions []domain.Position,
	prices map[string]domain.PriceOutcome,
	notes map[string]string,
	displayCurrency string,
) Valuation {
	displayCurrency = currency.Normalize(displayCurrency)
	usdToDisplay := a.rates.Rate(ctx, "USD", displayCurrency)

	valuation := Valuation{
		Currency:      displayCurrency,
		AllCalculated: true,
		Positions:     make([]PositionValue, 0, len(positions)),
		AsOf:          a.now(),
	}

	total := 0.0
	for _, pos := range positions {
		pv := PositionValue{
			InstrumentID: pos.InstrumentID,
			Name:         pos.Name,
			Shares:       pos.TotalShares,
			AverageCost:  pos.AverageCost,
			Note:         notes[pos.InstrumentID],
		}

		outcome, ok := prices[pos.InstrumentID]
		if !ok {
			valuation.AllCalculated = false
			valuation.Positions = append(valuation.Positions, pv)
			continue
		}

		shares, _ := pos.TotalShares.Float64()
		priceUSD := a.toUSD(ctx, outcome.Price, outcome.Currency)

		pv.Ticker = outcome.Ticker
		pv.Price = outcome.Price
		pv.PriceCurrency = outcome.Currency
		pv.Source = outcome.Source
		pv.Value = priceUSD * shares * usdToDisplay
		pv.Priced = true

		total += pv.Value
		valuation.Positions = append(valuation.Positions, pv)
	}

	if valuation.AllCalculated {
		valuation.Total = total
	} else {
		a.log.Warn().
			Int("positions", len(positions)).
			Msg("Valuation incomplete, withholding total")
	}

	return valuation
}

// toUSD converts a quoted price to USD, dividing penny quotes by 100 first.
func (a *Aggregator) toUSD(ctx context.Context, price float64, quoteCurrency string) float64 {
	price /= currency.Scale(quoteCurrency)
	return price * a.rates.Rate(ctx, quoteCurrency, "USD")
}
