package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(zerolog.Nop())
	c.baseURL = server.URL
	return c
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "US0378331005", r.URL.Query().Get("q"))
		w.Write([]byte(`{"quotes":[
			{"symbol":"AAPL","longname":"Apple Inc.","exchange":"NMS","primaryExchange":"NMS"},
			{"symbol":"APC.DE","shortname":"Apple Inc.","exchange":"GER","primaryExchange":"NMS"}
		]}`))
	})

	results, err := c.Search(context.Background(), "US0378331005")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, "Apple Inc.", results[0].Name)
	assert.True(t, results[0].PrimaryListing)
	assert.False(t, results[1].PrimaryListing)
}

func TestSearchNoMatches(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":[]}`))
	})

	results, err := c.Search(context.Background(), "XX0000000000")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","regularMarketPrice":187.44}}],"error":null}}`))
	})

	quote, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.44, quote.Price)
	assert.Equal(t, "USD", quote.Currency)
}

func TestQuoteInvalidPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"USD","regularMarketPrice":0}}],"error":null}}`))
	})

	_, err := c.Quote(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestQuoteAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found"}}}`))
	})

	_, err := c.Quote(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestQuoteHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Quote(context.Background(), "AAPL")
	assert.Error(t, err)
}

func TestHistoricalSeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SIE.DE", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		// Middle close is null: a holiday session.
		w.Write([]byte(`{"chart":{"result":[{
			"meta":{"currency":"EUR","symbol":"SIE.DE"},
			"timestamp":[1617235200,1617321600,1617408000],
			"indicators":{"quote":[{"close":[138.52,null,139.10]}]}
		}],"error":null}}`))
	})

	start := time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 4, 3, 0, 0, 0, 0, time.UTC)
	series, err := c.HistoricalSeries(context.Background(), "SIE.DE", start, end)
	require.NoError(t, err)

	assert.Equal(t, "EUR", series.Currency)
	require.Len(t, series.Candles, 2)
	assert.Equal(t, 138.52, series.Candles[0].Close)
	assert.Equal(t, time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC), series.Candles[0].Date)
	assert.Equal(t, 139.10, series.Candles[1].Close)
}

func TestReachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"USD","regularMarketPrice":500.0}}],"error":null}}`))
	})
	assert.True(t, c.Reachable(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.False(t, down.Reachable(context.Background()))
}
