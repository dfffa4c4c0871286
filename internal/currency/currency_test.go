package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"GBp":   "GBP",
		"GBX":   "GBP",
		"gbp":   "GBP",
		"GBP":   "GBP",
		"ZAc":   "ZAR",
		"ILA":   "ILS",
		" eur ": "EUR",
		"XYZ":   "XYZ",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestIsPennyQuoted(t *testing.T) {
	assert.True(t, IsPennyQuoted("GBp"))
	assert.True(t, IsPennyQuoted("GBX"))
	assert.True(t, IsPennyQuoted("ZAc"))

	// The major-unit code never counts as penny-quoted, whatever its case.
	assert.False(t, IsPennyQuoted("GBP"))
	assert.False(t, IsPennyQuoted("gbp"))
	assert.False(t, IsPennyQuoted("USD"))
}

func TestScale(t *testing.T) {
	assert.Equal(t, 100.0, Scale("GBp"))
	assert.Equal(t, 1.0, Scale("GBP"))
	assert.Equal(t, 1.0, Scale("USD"))
}
