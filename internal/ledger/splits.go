package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// Split ratios outside this open band are treated as coincidence, not
// corporate actions. A 4:1 reverse split has ratio 0.25.
var (
	ratioLowerBound = decimal.RequireFromString("0.1")
	ratioUpperBound = decimal.NewFromInt(10)
)

// detection pairs a split event with the ledger indices of its marker rows.
type detection struct {
	event   domain.SplitEvent
	markers []int
}

// DetectAndRewrite finds split events in the classified ledger and rewrites
// it so the split had always applied: transactions dated strictly before
// each event get quantity multiplied by the ratio (rounded to whole shares)
// and price divided by it (rounded to 2 decimals). Marker rows are removed,
// except cancellation entries which must survive normal netting.
//
// Events are applied in date order against the already-rewritten ledger, so
// multiple splits on one instrument compose naturally.
//
// No split is ever inferred without a split-indicating memo token. Same-day
// buy/sell pairs that merely look like a split are left untouched.
func DetectAndRewrite(txs []domain.Transaction, cfg KeywordConfig) ([]domain.Transaction, []domain.SplitEvent) {
	working := make([]domain.Transaction, len(txs))
	copy(working, txs)

	claimed := make(map[int]bool)
	detections := detectSameInstrument(working, cfg, claimed)
	detections = append(detections, detectIdentifierChanging(working, cfg, claimed)...)

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].event.Date.Before(detections[j].event.Date)
	})

	removed := make(map[int]bool)
	events := make([]domain.SplitEvent, 0, len(detections))
	for _, det := range detections {
		applyEvent(working, det, removed, cfg)
		events = append(events, det.event)
	}

	if len(removed) == 0 {
		return working, events
	}

	result := make([]domain.Transaction, 0, len(working)-len(removed))
	for i, tx := range working {
		if !removed[i] {
			result = append(result, tx)
		}
	}
	return result, events
}

// detectSameInstrument finds ordinary splits: an opposite-signed pair for
// one instrument on one day, netting near zero, with a split memo.
func detectSameInstrument(txs []domain.Transaction, cfg KeywordConfig, claimed map[int]bool) []detection {
	type key struct {
		id   string
		date time.Time
	}

	groups := make(map[key][]int)
	for i, tx := range txs {
		k := key{id: tx.InstrumentID, date: tx.Date}
		groups[k] = append(groups[k], i)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].date.Equal(keys[j].date) {
			return keys[i].date.Before(keys[j].date)
		}
		return keys[i].id < keys[j].id
	})

	var found []detection
	for _, k := range keys {
		indices := groups[k]
		if len(indices) < 2 {
			continue
		}

		ratio, ok := groupRatio(txs, indices)
		if !ok {
			continue
		}

		// The memo signal is mandatory: a same-day buy+sell pair with a
		// plausible ratio but no split wording is a trade, not a split.
		if !anySplitMemo(txs, indices, cfg) {
			continue
		}

		found = append(found, detection{
			event: domain.SplitEvent{
				InstrumentID: k.id,
				Date:         k.date,
				Ratio:        ratio,
				ResultID:     k.id,
			},
			markers: indices,
		})
		for _, i := range indices {
			claimed[i] = true
		}
	}
	return found
}

// detectIdentifierChanging finds reverse splits that retire one ISIN and
// continue the position under another: a negative exit in the old
// identifier and a positive entry in the new one on the same date, both
// carrying split memos.
func detectIdentifierChanging(txs []domain.Transaction, cfg KeywordConfig, claimed map[int]bool) []detection {
	groups := make(map[time.Time][]int)
	for i, tx := range txs {
		if claimed[i] || !HasSplitToken(tx.Memo, cfg) {
			continue
		}
		groups[tx.Date] = append(groups[tx.Date], i)
	}

	dates := make([]time.Time, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	var found []detection
	for _, date := range dates {
		indices := groups[date]
		if len(indices) < 2 {
			continue
		}

		ratio, ok := groupRatio(txs, indices)
		if !ok {
			continue
		}

		// Resulting identifier is the one the positive leg enters.
		resultID := ""
		ids := make(map[string]bool)
		for _, i := range indices {
			ids[txs[i].InstrumentID] = true
			if txs[i].Quantity.IsPositive() {
				resultID = txs[i].InstrumentID
			}
		}
		if len(ids) < 2 || resultID == "" {
			continue
		}

		affected := make([]string, 0, len(ids))
		for id := range ids {
			affected = append(affected, id)
		}
		sort.Strings(affected)

		found = append(found, detection{
			event: domain.SplitEvent{
				Date:         date,
				Ratio:        ratio,
				AffectedIDs:  affected,
				ResultID:     resultID,
				ISINChanging: true,
			},
			markers: indices,
		})
		for _, i := range indices {
			claimed[i] = true
		}
	}
	return found
}

// groupRatio computes positiveShares/negativeShares over a group and checks
// the plausibility band. Returns false if the group has no opposite-signed
// pair or the ratio falls outside (0.1, 10).
func groupRatio(txs []domain.Transaction, indices []int) (decimal.Decimal, bool) {
	totalPos := decimal.Zero
	totalNeg := decimal.Zero
	for _, i := range indices {
		q := txs[i].Quantity
		if q.IsPositive() {
			totalPos = totalPos.Add(q)
		} else if q.IsNegative() {
			totalNeg = totalNeg.Add(q.Neg())
		}
	}
	if totalPos.IsZero() || totalNeg.IsZero() {
		return decimal.Decimal{}, false
	}

	ratio := totalPos.Div(totalNeg)
	if ratio.LessThanOrEqual(ratioLowerBound) || ratio.GreaterThanOrEqual(ratioUpperBound) {
		return decimal.Decimal{}, false
	}
	return ratio, true
}

func anySplitMemo(txs []domain.Transaction, indices []int, cfg KeywordConfig) bool {
	for _, i := range indices {
		if HasSplitToken(txs[i].Memo, cfg) {
			return true
		}
	}
	return false
}

// applyEvent rescales every affected transaction dated strictly before the
// event and marks the marker rows for removal.
func applyEvent(working []domain.Transaction, det detection, removed map[int]bool, cfg KeywordConfig) {
	affected := make(map[string]bool)
	if det.event.ISINChanging {
		for _, id := range det.event.AffectedIDs {
			affected[id] = true
		}
	} else {
		affected[det.event.InstrumentID] = true
	}

	for i, tx := range working {
		if removed[i] || !affected[tx.InstrumentID] {
			continue
		}
		if !tx.Date.Before(det.event.Date) {
			continue
		}

		tx.Quantity = tx.Quantity.Mul(det.event.Ratio).Round(0)
		tx.Price = tx.Price.Div(det.event.Ratio).Round(2)
		if det.event.ISINChanging {
			// Pre-split history continues under the resulting identifier.
			tx.InstrumentID = det.event.ResultID
		}
		working[i] = tx
	}

	for _, i := range det.markers {
		if IsCancellation(working[i].Memo, cfg) {
			continue
		}
		removed[i] = true
	}
}
