package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRateDirect(t *testing.T) {
	rates := newFakeRates(map[string]float64{"EUR:USD": 1.09})
	c := NewRateCache(rates, zerolog.Nop())

	assert.Equal(t, 1.09, c.Rate(context.Background(), "EUR", "USD"))
}

func TestRateIdentityPair(t *testing.T) {
	c := NewRateCache(newFakeRates(nil), zerolog.Nop())
	assert.Equal(t, 1.0, c.Rate(context.Background(), "EUR", "EUR"))
}

func TestRateNormalizesPennyVariants(t *testing.T) {
	rates := newFakeRates(map[string]float64{"GBP:EUR": 1.17})
	c := NewRateCache(rates, zerolog.Nop())

	// GBX is pence; the rate lookup happens in major units.
	assert.Equal(t, 1.17, c.Rate(context.Background(), "GBX", "EUR"))
}

func TestRateInverseFallback(t *testing.T) {
	rates := newFakeRates(map[string]float64{"USD:EUR": 0.92})
	c := NewRateCache(rates, zerolog.Nop())

	got := c.Rate(context.Background(), "EUR", "USD")
	assert.InDelta(t, 1.0/0.92, got, 1e-9)
}

func TestRateCrossViaUSD(t *testing.T) {
	rates := newFakeRates(map[string]float64{
		"GBP:USD": 1.27,
		"USD:EUR": 0.92,
	})
	c := NewRateCache(rates, zerolog.Nop())

	got := c.Rate(context.Background(), "GBP", "EUR")
	assert.InDelta(t, 1.27*0.92, got, 1e-9)
}

func TestRateStaticFallback(t *testing.T) {
	c := NewRateCache(newFakeRates(nil), zerolog.Nop())

	got := c.Rate(context.Background(), "CHF", "EUR")
	assert.InDelta(t, 1.12/1.08, got, 1e-9)
}

func TestRateIdentityLastResort(t *testing.T) {
	c := NewRateCache(newFakeRates(nil), zerolog.Nop())
	assert.Equal(t, 1.0, c.Rate(context.Background(), "XYZ", "EUR"))
}

func TestRateCachedWithinTTL(t *testing.T) {
	rates := newFakeRates(map[string]float64{"EUR:USD": 1.09})
	c := NewRateCache(rates, zerolog.Nop())

	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Rate(context.Background(), "EUR", "USD")
	c.Rate(context.Background(), "EUR", "USD")
	assert.Equal(t, 1, rates.calls)

	// Past the TTL the provider is asked again.
	now = now.Add(rateTTL + time.Second)
	c.Rate(context.Background(), "EUR", "USD")
	assert.Equal(t, 2, rates.calls)
}

func TestRateInvalidate(t *testing.T) {
	rates := newFakeRates(map[string]float64{"EUR:USD": 1.09})
	c := NewRateCache(rates, zerolog.Nop())

	c.Rate(context.Background(), "EUR", "USD")
	c.Invalidate()
	c.Rate(context.Background(), "EUR", "USD")
	assert.Equal(t, 2, rates.calls)
}

func TestRateExportImport(t *testing.T) {
	rates := newFakeRates(map[string]float64{"EUR:USD": 1.09})
	c := NewRateCache(rates, zerolog.Nop())
	c.Rate(context.Background(), "EUR", "USD")

	// A cache seeded from the export serves the pair without a provider.
	seeded := NewRateCache(nil, zerolog.Nop())
	seeded.Import(c.Export())

	assert.Equal(t, 1.09, seeded.Rate(context.Background(), "EUR", "USD"))
	assert.Equal(t, 1, rates.calls)
}

func TestRateNilProviderUsesStaticTiers(t *testing.T) {
	c := NewRateCache(nil, zerolog.Nop())

	got := c.Rate(context.Background(), "EUR", "USD")
	assert.InDelta(t, 1.08, got, 1e-9)
}
