// Package currency canonicalizes currency codes before they reach the
// rate cache or the valuation aggregator.
package currency

import "strings"

// pennyVariants maps minor-unit quote codes to their major-unit currency.
// London quotes equities in pence (GBp/GBX), Johannesburg in cents (ZAc),
// Tel Aviv in agorot (ILA/ILX).
var pennyVariants = map[string]string{
	"GBX": "GBP",
	"ZAC": "ZAR",
	"ZAX": "ZAR",
	"ILA": "ILS",
	"ILX": "ILS",
}

// Normalize collapses penny-quote variants to the major-unit code and
// uppercases everything else. Unknown codes pass through unchanged.
func Normalize(code string) string {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if major, ok := pennyVariants[upper]; ok {
		return major
	}
	return upper
}

// IsPennyQuoted reports whether the original code denotes a minor-unit
// quotation (1/100 of the major unit).
func IsPennyQuoted(code string) bool {
	// GBp arrives with a lowercase p; after uppercasing it collides with
	// the major-unit GBP, so check the raw form first.
	if strings.TrimSpace(code) == "GBp" {
		return true
	}
	_, ok := pennyVariants[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Scale returns the divisor that converts a quoted price to major units:
// 100 for penny-quoted codes, 1 otherwise.
func Scale(code string) float64 {
	if IsPennyQuoted(code) {
		return 100
	}
	return 1
}
