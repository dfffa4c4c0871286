package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow(t *testing.T) {
	tx, err := ParseRow("15.03.2021;Siemens AG;DE0007236101;25,000;Kauf;138,52;EUR")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, "Siemens AG", tx.Name)
	assert.Equal(t, "DE0007236101", tx.InstrumentID)
	assert.Equal(t, "25", tx.Quantity.String())
	assert.Equal(t, "Kauf", tx.Memo)
	assert.Equal(t, "138.52", tx.Price.String())
	assert.Equal(t, "EUR", tx.Currency)
}

func TestParseRowTabDelimited(t *testing.T) {
	tx, err := ParseRow("01.02.2020\tApple Inc.\tUS0378331005\t10,000\tBuy\t77,38\tUSD")
	require.NoError(t, err)
	assert.Equal(t, "US0378331005", tx.InstrumentID)
	assert.Equal(t, "10", tx.Quantity.String())
}

func TestParseRowLocaleNumbers(t *testing.T) {
	tx, err := ParseRow("02.01.2019;Fonds;LU0000000001;1.234,000;Kauf;1.052,75;EUR")
	require.NoError(t, err)
	assert.Equal(t, "1234", tx.Quantity.String())
	assert.Equal(t, "1052.75", tx.Price.String())
}

func TestParseRowNegativeQuantity(t *testing.T) {
	tx, err := ParseRow("10.06.2022;Altaktie;DE0001111111;-120.000,000;Ausbuchung Split;9,405;EUR")
	require.NoError(t, err)
	assert.Equal(t, "-120000", tx.Quantity.String())
}

func TestParseRowErrors(t *testing.T) {
	cases := map[string]string{
		"too few columns": "15.03.2021;Siemens;DE0007236101;25,000",
		"bad date":        "2021-03-15;Siemens;DE0007236101;25,000;Kauf;138,52;EUR",
		"bad quantity":    "15.03.2021;Siemens;DE0007236101;abc;Kauf;138,52;EUR",
		"bad price":       "15.03.2021;Siemens;DE0007236101;25,000;Kauf;-;EUR",
		"missing id":      "15.03.2021;Siemens;;25,000;Kauf;138,52;EUR",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRow(line)
			assert.Error(t, err)
		})
	}
}

func TestParseRowsSkipsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"Datum;Name;ISIN;Stück;Buchungstext;Kurs;Währung",
		"15.03.2021;Siemens AG;DE0007236101;25,000;Kauf;138,52;EUR",
		"",
		"not a row at all",
		"16.03.2021;Apple Inc.;US0378331005;10,000;Kauf;105,10;USD",
	}, "\n")

	txs, stats := ParseRows(strings.NewReader(input))
	require.Len(t, txs, 2)
	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, "DE0007236101", txs[0].InstrumentID)
	assert.Equal(t, "US0378331005", txs[1].InstrumentID)
}
