package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/marketdata"
)

// stubRates serves fixed pairs and errors on everything else, pushing the
// rate cache into its fallback tiers.
type stubRates struct {
	mu    sync.Mutex
	rates map[string]float64
}

func (s *stubRates) LatestRate(ctx context.Context, from, to string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate, ok := s.rates[from+":"+to]; ok {
		return rate, nil
	}
	return 0, fmt.Errorf("no rate for %s:%s", from, to)
}

func newRateCache(rates map[string]float64) *marketdata.RateCache {
	return marketdata.NewRateCache(&stubRates{rates: rates}, zerolog.Nop())
}

func pos(id string, shares int64, avgCost string, cur string) domain.Position {
	return domain.Position{
		InstrumentID: id,
		Name:         id,
		TotalShares:  decimal.NewFromInt(shares),
		AverageCost:  decimal.RequireFromString(avgCost),
		Currency:     cur,
	}
}

func outcome(id, ticker string, price float64, cur string) domain.PriceOutcome {
	return domain.PriceOutcome{
		InstrumentID: id,
		Ticker:       ticker,
		Price:        price,
		Currency:     cur,
		AsOf:         time.Now(),
		Source:       domain.SourceFetched,
	}
}

func TestValuateSingleCurrency(t *testing.T) {
	a := NewAggregator(newRateCache(map[string]float64{
		"USD:EUR": 0.92,
	}), zerolog.Nop())

	positions := []domain.Position{pos("US0378331005", 10, "150.00", "USD")}
	prices := map[string]domain.PriceOutcome{
		"US0378331005": outcome("US0378331005", "AAPL", 187.44, "USD"),
	}

	v := a.Valuate(context.Background(), positions, prices, nil, "EUR")

	assert.True(t, v.AllCalculated)
	assert.Equal(t, "EUR", v.Currency)
	assert.InDelta(t, 187.44*10*0.92, v.Total, 1e-9)
	require.Len(t, v.Positions, 1)
	assert.True(t, v.Positions[0].Priced)
}

func TestValuatePennyQuotedCurrency(t *testing.T) {
	a := NewAggregator(newRateCache(map[string]float64{
		"GBP:USD": 1.27,
		"USD:EUR": 0.92,
	}), zerolog.Nop())

	// 4,520 pence quoted in London is 45.20 pounds.
	positions := []domain.Position{pos("GB0000000001", 100, "40.00", "GBP")}
	prices := map[string]domain.PriceOutcome{
		"GB0000000001": outcome("GB0000000001", "TEST.L", 4520.0, "GBp"),
	}

	v := a.Valuate(context.Background(), positions, prices, nil, "EUR")

	require.True(t, v.AllCalculated)
	assert.InDelta(t, 45.20*1.27*100*0.92, v.Total, 1e-6)
}

func TestValuateWithholdsPartialTotal(t *testing.T) {
	a := NewAggregator(newRateCache(map[string]float64{"USD:EUR": 0.92}), zerolog.Nop())

	positions := []domain.Position{
		pos("US0378331005", 10, "150.00", "USD"),
		pos("DE0007236101", 5, "120.00", "EUR"),
	}
	prices := map[string]domain.PriceOutcome{
		"US0378331005": outcome("US0378331005", "AAPL", 187.44, "USD"),
	}

	v := a.Valuate(context.Background(), positions, prices, nil, "EUR")

	assert.False(t, v.AllCalculated)
	assert.Zero(t, v.Total)
	require.Len(t, v.Positions, 2)
	assert.True(t, v.Positions[0].Priced)
	assert.False(t, v.Positions[1].Priced)
}

func TestValuateCarriesNotes(t *testing.T) {
	a := NewAggregator(newRateCache(map[string]float64{"USD:EUR": 0.92}), zerolog.Nop())

	positions := []domain.Position{pos("US0378331005", 10, "150.00", "USD")}
	prices := map[string]domain.PriceOutcome{
		"US0378331005": {
			InstrumentID: "US0378331005",
			Price:        150.0,
			Currency:     "USD",
			Source:       domain.SourceCostBasis,
		},
	}
	notes := map[string]string{"US0378331005": "provider unreachable (using cost basis)"}

	v := a.Valuate(context.Background(), positions, prices, notes, "EUR")

	assert.True(t, v.AllCalculated)
	assert.Equal(t, domain.SourceCostBasis, v.Positions[0].Source)
	assert.Contains(t, v.Positions[0].Note, "cost basis")
}

func TestValuateEmptyPortfolio(t *testing.T) {
	a := NewAggregator(newRateCache(nil), zerolog.Nop())

	v := a.Valuate(context.Background(), nil, nil, nil, "EUR")
	assert.True(t, v.AllCalculated)
	assert.Zero(t, v.Total)
	assert.Empty(t, v.Positions)
}
