package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/folio/internal/currency"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/marketdata"
)

// GrowthPoint is one month-end portfolio value in the display currency.
type GrowthPoint struct {
	Month string  `json:"month"`
	Value float64 `json:"value"`
}

// GrowthSeries is the historical valuation curve with summary statistics
// over the month-to-month returns.
type GrowthSeries struct {
	Currency          string        `json:"currency"`
	Points            []GrowthPoint `json:"points"`
	MeanMonthlyReturn float64       `json:"mean_monthly_return"`
	ReturnStdDev      float64       `json:"return_std_dev"`
	TotalGrowthPct    float64       `json:"total_growth_pct"`
}

// GrowthService builds the growth series from monthly holdings and batch
// historical closes. One series fetch per instrument covers every month.
type GrowthService struct {
	historical *marketdata.HistoricalService
	resolver   *marketdata.TickerResolver
	rates      *marketdata.RateCache
	log        zerolog.Logger
}

// NewGrowthService creates a growth series builder.
func NewGrowthService(
	historical *marketdata.HistoricalService,
	resolver *marketdata.TickerResolver,
	rates *marketdata.RateCache,
	log zerolog.Logger,
) *GrowthService {
	return &GrowthService{
		historical: historical,
		resolver:   resolver,
		rates:      rates,
		log:        log.With().Str("service", "growth").Logger(),
	}
}

// Build values every month of the holdings series in the display currency.
// Instruments whose ticker or closes cannot be resolved contribute nothing
// to the affected months; the series itself always completes.
func (g *GrowthService) Build(
	ctx context.Context,
	holdings []domain.MonthlyHolding,
	positions []domain.Position,
	displayCurrency string,
) (GrowthSeries, error) {
	displayCurrency = currency.Normalize(displayCurrency)
	series := GrowthSeries{Currency: displayCurrency}
	if len(holdings) == 0 {
		return series, nil
	}

	months := make([]string, 0, len(holdings))
	instruments := make(map[string]bool)
	for _, h := range holdings {
		months = append(months, h.Month)
		for id := range h.Shares {
			instruments[id] = true
		}
	}

	names := make(map[string]string, len(positions))
	for _, pos := range positions {
		names[pos.InstrumentID] = pos.Name
	}

	// Month-end price of each instrument, already in USD.
	pricesUSD := make(map[string]map[string]float64, len(instruments))
	ids := make([]string, 0, len(instruments))
	for id := range instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		// Candidate tickers are tried in resolution priority order until
		// one yields a usable series.
		var closes map[string]float64
		var quoteCurrency string
		for _, ticker := range g.resolver.Candidates(ctx, id, names[id]) {
			c, cur, err := g.historical.MonthEndCloses(ctx, ticker, months)
			if err != nil || len(c) == 0 {
				continue
			}
			closes, quoteCurrency = c, cur
			break
		}
		if len(closes) == 0 {
			g.log.Warn().Str("instrument", id).Msg("No historical closes for growth series")
			continue
		}

		scale := currency.Scale(quoteCurrency)
		toUSD := g.rates.Rate(ctx, quoteCurrency, "USD")

		monthly := make(map[string]float64, len(closes))
		for month, close := range closes {
			monthly[month] = close / scale * toUSD
		}
		pricesUSD[id] = monthly
	}

	usdToDisplay := g.rates.Rate(ctx, "USD", displayCurrency)

	for _, h := range holdings {
		value := 0.0
		for id, shares := range h.Shares {
			price, ok := pricesUSD[id][h.Month]
			if !ok {
				continue
			}
			s, _ := shares.Float64()
			value += price * s * usdToDisplay
		}
		series.Points = append(series.Points, GrowthPoint{Month: h.Month, Value: value})
	}

	applyStatistics(&series)
	return series, nil
}

// applyStatistics fills the summary numbers from the month-end values.
func applyStatistics(series *GrowthSeries) {
	values := make([]float64, 0, len(series.Points))
	for _, p := range series.Points {
		if p.Value > 0 {
			values = append(values, p.Value)
		}
	}
	if len(values) < 2 {
		return
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns = append(returns, values[i]/values[i-1]-1)
	}

	series.MeanMonthlyReturn = stat.Mean(returns, nil)
	if len(returns) > 1 {
		series.ReturnStdDev = stat.StdDev(returns, nil)
	}
	series.TotalGrowthPct = (values[len(values)-1]/values[0] - 1) * 100
}

// String implements fmt.Stringer for log-friendly output.
func (p GrowthPoint) String() string {
	return fmt.Sprintf("%s: %.2f", p.Month, p.Value)
}
