package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.EnsureSchema())
	return repo
}

type cachedRate struct {
	Rate float64 `json:"rate"`
}

func TestStoreAndGetIfFresh(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedRate{Rate: 1.09}, time.Hour))

	data, err := repo.GetIfFresh("exchangerate", "EUR:USD")
	require.NoError(t, err)
	require.NotNil(t, data)

	var cached cachedRate
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, 1.09, cached.Rate)
}

func TestGetIfFreshExpired(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedRate{Rate: 1.09}, -time.Minute))

	data, err := repo.GetIfFresh("exchangerate", "EUR:USD")
	require.NoError(t, err)
	assert.Nil(t, data)

	// Stale data remains reachable through Get.
	stale, err := repo.Get("exchangerate", "EUR:USD")
	require.NoError(t, err)
	assert.NotNil(t, stale)
}

func TestGetMissingKey(t *testing.T) {
	repo := newTestRepository(t)

	data, err := repo.Get("tickers", "XX0000000000")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStoreUpserts(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedRate{Rate: 1.08}, time.Hour))
	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedRate{Rate: 1.10}, time.Hour))

	data, err := repo.GetIfFresh("exchangerate", "EUR:USD")
	require.NoError(t, err)

	var cached cachedRate
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, 1.10, cached.Rate)
}

func TestInvalidTableRejected(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Store("users; DROP TABLE tickers", "key", cachedRate{}, time.Hour)
	assert.Error(t, err)

	_, err = repo.Get("nope", "key")
	assert.Error(t, err)
}

func TestDeleteAllExpired(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Store("exchangerate", "EUR:USD", cachedRate{Rate: 1.09}, -time.Minute))
	require.NoError(t, repo.Store("current_prices", "US0378331005", cachedRate{Rate: 187.44}, time.Hour))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["exchangerate"])
	assert.Equal(t, int64(0), results["current_prices"])
}
