package exchangerate

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/clientdata"
)

func newTestRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := clientdata.NewRepository(db)
	require.NoError(t, repo.EnsureSchema())
	return repo
}

func TestLatestRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/EUR", r.URL.Path)
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.09,"GBP":0.86}}`))
	}))
	defer server.Close()

	c := NewClient(nil, zerolog.Nop())
	c.baseURL = server.URL

	rate, err := c.LatestRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.09, rate)
}

func TestLatestRateIdentity(t *testing.T) {
	c := NewClient(nil, zerolog.Nop())

	rate, err := c.LatestRate(context.Background(), "EUR", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestLatestRateMissingCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.09}}`))
	}))
	defer server.Close()

	c := NewClient(nil, zerolog.Nop())
	c.baseURL = server.URL

	_, err := c.LatestRate(context.Background(), "EUR", "XXX")
	assert.Error(t, err)
}

func TestLatestRateUsesFreshCache(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.09}}`))
	}))
	defer server.Close()

	c := NewClient(newTestRepo(t), zerolog.Nop())
	c.baseURL = server.URL

	for i := 0; i < 3; i++ {
		rate, err := c.LatestRate(context.Background(), "EUR", "USD")
		require.NoError(t, err)
		assert.Equal(t, 1.09, rate)
	}
	assert.Equal(t, 1, calls)
}

func TestLatestRateStaleFallback(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedExchangeRate{Rate: 1.07}, -1))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(repo, zerolog.Nop())
	c.baseURL = server.URL

	rate, err := c.LatestRate(context.Background(), "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.07, rate)
}

func TestLatestRateFailsWithoutFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(newTestRepo(t), zerolog.Nop())
	c.baseURL = server.URL

	_, err := c.LatestRate(context.Background(), "EUR", "USD")
	assert.Error(t, err)
}
