package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
)

func candlesFor(dates map[string]float64) []domain.Candle {
	candles := make([]domain.Candle, 0, len(dates))
	for d, close := range dates {
		day, _ := time.Parse("2006-01-02", d)
		candles = append(candles, domain.Candle{Date: day.UTC(), Close: close})
	}
	return candles
}

func TestCloseOnExactDay(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{
		Currency: "EUR",
		Candles: candlesFor(map[string]float64{
			"2024-05-30": 171.2,
			"2024-05-31": 172.8,
		}),
	}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	close, cur, err := s.CloseOn(context.Background(), "SIE.DE", time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 172.8, close)
	assert.Equal(t, "EUR", cur)
}

func TestCloseOnWeekendUsesPriorSession(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{
		Currency: "EUR",
		Candles: candlesFor(map[string]float64{
			"2024-05-31": 172.8, // Friday
			"2024-06-03": 174.1, // Monday
		}),
	}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	// Saturday: the Friday close is the answer.
	close, _, err := s.CloseOn(context.Background(), "SIE.DE", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 172.8, close)
}

func TestCloseOnPicksNearestByAbsoluteDistance(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{
		Currency: "EUR",
		Candles: candlesFor(map[string]float64{
			"2024-05-27": 100.0, // five days before
			"2024-06-02": 200.0, // one day after
		}),
	}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	close, _, err := s.CloseOn(context.Background(), "SIE.DE", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The later candle is closer, so it wins over the earlier one.
	assert.Equal(t, 200.0, close)
}

func TestCloseOnTreatsZeroCloseAsNoData(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{
		Currency: "EUR",
		Candles: candlesFor(map[string]float64{
			"2024-06-01": 0.0, // exact day, but no usable print
			"2024-05-31": 172.8,
		}),
	}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	close, _, err := s.CloseOn(context.Background(), "SIE.DE", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 172.8, close)
}

func TestCloseOnNothingInWindow(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{Currency: "EUR"}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	_, _, err := s.CloseOn(context.Background(), "SIE.DE", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestCloseOnCaches(t *testing.T) {
	provider := newFakeProvider()
	provider.series["SIE.DE"] = domain.HistoricalSeries{
		Currency: "EUR",
		Candles:  candlesFor(map[string]float64{"2024-05-31": 172.8}),
	}

	repo := newTestRepo(t)
	s := NewHistoricalService(provider, repo, zerolog.Nop())

	date := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	_, _, err := s.CloseOn(context.Background(), "SIE.DE", date)
	require.NoError(t, err)

	// Second lookup is served from the cache even without the provider.
	delete(provider.series, "SIE.DE")
	close, cur, err := s.CloseOn(context.Background(), "SIE.DE", date)
	require.NoError(t, err)
	assert.Equal(t, 172.8, close)
	assert.Equal(t, "EUR", cur)
}

func TestMonthEndCloses(t *testing.T) {
	provider := newFakeProvider()
	provider.series["AAPL"] = domain.HistoricalSeries{
		Currency: "USD",
		Candles: candlesFor(map[string]float64{
			"2024-01-31": 184.4,
			"2024-02-29": 180.8,
			"2024-03-28": 171.5, // Good Friday shortened month
		}),
	}

	s := NewHistoricalService(provider, nil, zerolog.Nop())
	closes, cur, err := s.MonthEndCloses(context.Background(), "AAPL", []string{"2024-01", "2024-02", "2024-03"})
	require.NoError(t, err)

	assert.Equal(t, "USD", cur)
	assert.Equal(t, 184.4, closes["2024-01"])
	assert.Equal(t, 180.8, closes["2024-02"])
	assert.Equal(t, 171.5, closes["2024-03"])
}

func TestMonthEndClosesEmptyMonths(t *testing.T) {
	s := NewHistoricalService(newFakeProvider(), nil, zerolog.Nop())
	closes, _, err := s.MonthEndCloses(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	assert.Empty(t, closes)
}
