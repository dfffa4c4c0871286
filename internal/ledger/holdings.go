package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// ReconstructMonthlyHoldings replays the split-adjusted ledger forward and
// returns end-of-month share balances for every month from the first
// transaction through the given horizon (usually now). Months without
// activity carry the previous month's balances forward. Instruments at or
// below zero shares are omitted from a month's map.
//
// The function is pure: replaying the same ledger always yields the same
// series, so a refresh can rebuild history from scratch instead of patching
// it incrementally.
func ReconstructMonthlyHoldings(txs []domain.Transaction, horizon time.Time) []domain.MonthlyHolding {
	if len(txs) == 0 {
		return nil
	}

	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	first := ordered[0].Date
	last := ordered[len(ordered)-1].Date
	if horizon.After(last) {
		last = horizon
	}

	balances := make(map[string]decimal.Decimal)
	var series []domain.MonthlyHolding
	idx := 0

	for cursor := startOfMonth(first); !cursor.After(last); cursor = cursor.AddDate(0, 1, 0) {
		monthEnd := cursor.AddDate(0, 1, 0)
		for idx < len(ordered) && ordered[idx].Date.Before(monthEnd) {
			applyFlow(balances, ordered[idx])
			idx++
		}

		series = append(series, domain.MonthlyHolding{
			Month:  domain.Month(cursor),
			Shares: snapshotPositive(balances),
		})
	}

	return series
}

// applyFlow adds a transaction's signed share flow to the running balances.
// Sell magnitudes become negative flows, matching the FIFO book.
func applyFlow(balances map[string]decimal.Decimal, tx domain.Transaction) {
	flow := tx.Quantity
	if tx.Kind == domain.KindSell && flow.IsPositive() {
		flow = flow.Neg()
	}
	balances[tx.InstrumentID] = balances[tx.InstrumentID].Add(flow)
}

// snapshotPositive copies the balances that are above zero. Closed and
// oversold positions do not appear in the month at all.
func snapshotPositive(balances map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(balances))
	for id, shares := range balances {
		if shares.IsPositive() {
			out[id] = shares
		}
	}
	return out
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
