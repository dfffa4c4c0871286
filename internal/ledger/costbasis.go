package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// BuildPositions folds the split-adjusted ledger into current positions
// using FIFO lot accounting. Buys and transfers-in open lots, sells and
// transfers-out consume the oldest lots first. Positions that net to zero
// or below are dropped.
//
// Sells are treated as magnitudes: the export records the reduction amount
// as a positive number on sell rows, and a negative quantity on any row
// always means a decrease regardless of kind.
func BuildPositions(txs []domain.Transaction) []domain.Position {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	books := make(map[string]*lotBook)
	order := make([]string, 0)
	for _, tx := range ordered {
		book, ok := books[tx.InstrumentID]
		if !ok {
			book = &lotBook{}
			books[tx.InstrumentID] = book
			order = append(order, tx.InstrumentID)
		}
		book.apply(tx)
	}

	positions := make([]domain.Position, 0, len(books))
	for _, id := range order {
		book := books[id]
		total := book.totalShares()
		if !total.IsPositive() {
			continue
		}
		positions = append(positions, domain.Position{
			InstrumentID: id,
			Name:         book.name,
			TotalShares:  total,
			AverageCost:  book.averageCost(total),
			Currency:     book.currency,
			Lots:         book.lots,
		})
	}
	return positions
}

// lotBook is the running FIFO state for one instrument.
type lotBook struct {
	lots     []domain.Lot
	name     string
	currency string
}

func (b *lotBook) apply(tx domain.Transaction) {
	// Latest row wins for display metadata; identifier-changing splits
	// re-key old history, and the newest name is the current one.
	if tx.Name != "" {
		b.name = tx.Name
	}
	if tx.Currency != "" {
		b.currency = tx.Currency
	}

	flow := tx.Quantity
	if tx.Kind == domain.KindSell && flow.IsPositive() {
		flow = flow.Neg()
	}

	switch {
	case flow.IsPositive():
		b.lots = append(b.lots, domain.Lot{Shares: flow, UnitCost: tx.Price})
	case flow.IsNegative():
		b.consume(flow.Neg())
	}
}

// consume removes shares from the oldest lots first. Overselling beyond
// the held amount is clamped: the book empties and the excess is ignored.
func (b *lotBook) consume(shares decimal.Decimal) {
	for len(b.lots) > 0 && shares.IsPositive() {
		lot := &b.lots[0]
		if lot.Shares.GreaterThan(shares) {
			lot.Shares = lot.Shares.Sub(shares)
			return
		}
		shares = shares.Sub(lot.Shares)
		b.lots = b.lots[1:]
	}
}

func (b *lotBook) totalShares() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range b.lots {
		total = total.Add(lot.Shares)
	}
	return total
}

// averageCost is the share-weighted unit cost of the remaining lots.
func (b *lotBook) averageCost(total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, lot := range b.lots {
		sum = sum.Add(lot.Shares.Mul(lot.UnitCost))
	}
	return sum.Div(total).Round(4)
}
