// Package ledger turns raw transaction rows into split-adjusted positions
// and historical holdings. Everything in here is pure CPU work: parsing,
// classification, split rewriting, FIFO cost basis and monthly replay.
package ledger

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// Row column positions in the delimited export format.
const (
	colDate = iota
	colName
	colInstrumentID
	colQuantity
	colMemo
	colPrice
	colCurrency
	numColumns
)

// ParseStats reports what happened during a parse run. Malformed rows are
// skipped, never fatal: a single bad row must not abort the batch.
type ParseStats struct {
	Parsed  int
	Skipped int
}

// ParseRows reads delimited ledger rows and returns the transactions it
// could parse. Blank lines are ignored; header rows and malformed rows are
// counted as skipped.
func ParseRows(r io.Reader) ([]domain.RawTransaction, ParseStats) {
	var txs []domain.RawTransaction
	var stats ParseStats

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		tx, err := ParseRow(line)
		if err != nil {
			stats.Skipped++
			continue
		}

		txs = append(txs, tx)
		stats.Parsed++
	}

	return txs, stats
}

// ParseRow parses a single delimited row into a RawTransaction.
func ParseRow(line string) (domain.RawTransaction, error) {
	fields := splitRow(line)
	if len(fields) < numColumns {
		return domain.RawTransaction{}, fmt.Errorf("expected %d columns, got %d", numColumns, len(fields))
	}

	date, err := parseDay(fields[colDate])
	if err != nil {
		return domain.RawTransaction{}, err
	}

	quantity, err := parseSignedInteger(fields[colQuantity])
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("bad quantity %q: %w", fields[colQuantity], err)
	}

	price, err := parseLocaleDecimal(fields[colPrice])
	if err != nil {
		return domain.RawTransaction{}, fmt.Errorf("bad price %q: %w", fields[colPrice], err)
	}

	id := strings.TrimSpace(fields[colInstrumentID])
	if id == "" {
		return domain.RawTransaction{}, fmt.Errorf("missing instrument identifier")
	}

	return domain.RawTransaction{
		Date:         date,
		Name:         strings.TrimSpace(fields[colName]),
		InstrumentID: id,
		Quantity:     quantity,
		Memo:         strings.TrimSpace(fields[colMemo]),
		Price:        price,
		Currency:     strings.ToUpper(strings.TrimSpace(fields[colCurrency])),
	}, nil
}

// splitRow splits on semicolons, falling back to tabs for TSV exports.
func splitRow(line string) []string {
	if strings.Contains(line, ";") {
		return strings.Split(line, ";")
	}
	return strings.Split(line, "\t")
}

// parseDay parses a DD.MM.YYYY calendar day. Time of day is never present
// in the export; everything is midnight UTC.
func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation("02.01.2006", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

// parseSignedInteger extracts the signed integer part of a locale-formatted
// quantity: everything up to the first decimal separator. Share counts in
// the export are whole numbers; "1.234,000" means 1234 shares.
func parseSignedInteger(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	// Integer part ends at the first decimal separator; thousands dots
	// inside it are stripped.
	if i := strings.IndexAny(s, ","); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("no digits")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// parseLocaleDecimal parses a comma-decimal number ("1.234,56" -> 1234.56).
func parseLocaleDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty")
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, ",", ".", 1)
	return decimal.NewFromString(s)
}
