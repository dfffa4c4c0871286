package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/clientdata"
	"github.com/aristath/folio/internal/domain"
)

// fakeProvider is a scriptable MarketDataProvider for tests.
type fakeProvider struct {
	mu sync.Mutex

	searchResults map[string][]domain.SearchResult
	quotes        map[string]domain.Quote
	series        map[string]domain.HistoricalSeries
	reachable     bool

	quoteCalls  map[string]int
	searchCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		searchResults: make(map[string][]domain.SearchResult),
		quotes:        make(map[string]domain.Quote),
		series:        make(map[string]domain.HistoricalSeries),
		reachable:     true,
		quoteCalls:    make(map[string]int),
	}
}

func (f *fakeProvider) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.searchResults[query], nil
}

func (f *fakeProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls[symbol]++
	q, ok := f.quotes[symbol]
	if !ok {
		return domain.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (f *fakeProvider) HistoricalSeries(ctx context.Context, symbol string, start, end time.Time) (domain.HistoricalSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.series[symbol]
	if !ok {
		return domain.HistoricalSeries{}, fmt.Errorf("no series for %s", symbol)
	}
	return s, nil
}

func (f *fakeProvider) Reachable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reachable
}

// fakeRates is a scriptable RateProvider. Pairs not in the map error.
type fakeRates struct {
	mu    sync.Mutex
	rates map[string]float64
	calls int
}

func newFakeRates(rates map[string]float64) *fakeRates {
	return &fakeRates{rates: rates}
}

func (f *fakeRates) LatestRate(ctx context.Context, from, to string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rate, ok := f.rates[from+":"+to]
	if !ok {
		return 0, fmt.Errorf("no rate for %s:%s", from, to)
	}
	return rate, nil
}

func newTestRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := clientdata.NewRepository(db)
	require.NoError(t, repo.EnsureSchema())
	return repo
}
