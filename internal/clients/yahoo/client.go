// Package yahoo is the market data client: ticker search, current quotes
// and daily historical closes.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a Yahoo Finance API client.
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: defaultBaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

// Search looks up instruments by free text (ISIN, symbol or name). A query
// with no matches returns an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Add("q", query)
	params.Add("quotesCount", "10")
	params.Add("newsCount", "0")

	body, err := c.get(ctx, "/v1/finance/search", params)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	matches := make([]domain.SearchResult, 0, len(result.Quotes))
	for _, q := range result.Quotes {
		if q.Symbol == "" {
			continue
		}
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		matches = append(matches, domain.SearchResult{
			Symbol:         q.Symbol,
			Name:           name,
			PrimaryListing: q.Exchange != "" && q.Exchange == q.PrimaryExchange,
		})
	}

	c.log.Debug().Str("query", query).Int("matches", len(matches)).Msg("Search completed")
	return matches, nil
}

// Quote fetches the current price for a symbol in its trading currency.
// The chart endpoint's meta block carries both, and unlike the quote API
// it does not require a crumb.
func (c *Client) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", "1d")

	body, err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("failed to fetch quote: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.Quote{}, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if result.Chart.Error != nil {
		return domain.Quote{}, fmt.Errorf("yahoo API error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 {
		return domain.Quote{}, fmt.Errorf("no quote data returned for symbol %s", symbol)
	}

	meta := result.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return domain.Quote{}, fmt.Errorf("invalid price %f for symbol %s", meta.RegularMarketPrice, symbol)
	}

	return domain.Quote{
		Price:    meta.RegularMarketPrice,
		Currency: meta.Currency,
	}, nil
}

// HistoricalSeries fetches daily closes for [start, end] inclusive.
func (c *Client) HistoricalSeries(ctx context.Context, symbol string, start, end time.Time) (domain.HistoricalSeries, error) {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("period1", strconv.FormatInt(start.Unix(), 10))
	params.Add("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))

	body, err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params)
	if err != nil {
		return domain.HistoricalSeries{}, fmt.Errorf("failed to fetch historical data: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return domain.HistoricalSeries{}, fmt.Errorf("failed to parse historical response: %w", err)
	}
	if result.Chart.Error != nil {
		return domain.HistoricalSeries{}, fmt.Errorf("yahoo API error: %v", result.Chart.Error)
	}
	if len(result.Chart.Result) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No historical data returned")
		return domain.HistoricalSeries{}, nil
	}

	chartData := result.Chart.Result[0]
	series := domain.HistoricalSeries{Currency: chartData.Meta.Currency}
	if len(chartData.Indicators.Quote) == 0 {
		return series, nil
	}

	closes := chartData.Indicators.Quote[0].Close
	for i, ts := range chartData.Timestamp {
		// Yahoo returns null closes for holidays and suspended sessions.
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		series.Candles = append(series.Candles, domain.Candle{
			Date:  domain.Day(time.Unix(ts, 0).UTC()),
			Close: *closes[i],
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("candles", len(series.Candles)).
		Msg("Fetched historical closes")

	return series, nil
}

// Reachable reports whether the API answers at all. Used to distinguish a
// dead network from a bad symbol before a refresh run.
func (c *Client) Reachable(ctx context.Context) bool {
	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", "1d")

	_, err := c.get(ctx, "/v8/finance/chart/SPY", params)
	return err == nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("yahoo API returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
