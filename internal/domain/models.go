// Package domain contains the core models shared by the ledger and
// valuation modules. The domain layer is pure: no infrastructure
// dependencies, fixed-shape types only.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger transaction by its memo text.
type TransactionKind int

const (
	// KindOther is anything the classifier could not identify.
	KindOther TransactionKind = iota
	// KindBuy increases a position (a negative buy decreases it).
	KindBuy
	// KindSell decreases a position; the stored quantity is the reduction magnitude.
	KindSell
	// KindTransfer moves shares in or out, signed like a buy.
	KindTransfer
)

func (k TransactionKind) String() string {
	switch k {
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	case KindTransfer:
		return "transfer"
	default:
		return "other"
	}
}

// RawTransaction is one parsed ledger row. Immutable once parsed; the raw
// ledger is the source of truth for everything derived here.
type RawTransaction struct {
	Date         time.Time       `json:"date"` // calendar day, midnight UTC
	InstrumentID string          `json:"instrument_id"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"` // signed
	Price        decimal.Decimal `json:"price"`    // per unit, ledger currency
	Currency     string          `json:"currency"`
	Memo         string          `json:"memo"`
}

// Transaction is a RawTransaction with its classified kind.
type Transaction struct {
	RawTransaction
	Kind TransactionKind `json:"kind"`
}

// SplitEvent describes a detected corporate action. Split events are
// ephemeral: computed, applied to the ledger, then discarded.
type SplitEvent struct {
	InstrumentID string          // empty for ISIN-changing splits
	Date         time.Time       // effective date
	Ratio        decimal.Decimal // positive shares / negative shares, > 0
	AffectedIDs  []string        // instruments rescaled (ISIN-changing case)
	ResultID     string          // identifier the position continues under
	ISINChanging bool
}

// Lot is a discrete cost-tagged slice of shares, consumed FIFO on sells.
// A lot is owned by exactly one Position.
type Lot struct {
	Shares   decimal.Decimal `json:"shares"` // remaining, > 0
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Position is the FIFO-derived holding for one instrument.
//
// Invariants: TotalShares == sum of lot shares, AverageCost is the weighted
// mean of the remaining lots, and TotalShares never goes negative (oversells
// are clamped at zero lots).
type Position struct {
	InstrumentID string          `json:"instrument_id"`
	Name         string          `json:"name"`
	TotalShares  decimal.Decimal `json:"total_shares"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	Currency     string          `json:"currency"`
	Lots         []Lot           `json:"lots"` // ordered oldest to newest
}

// MonthlyHolding is the share count per instrument at the end of one
// calendar month. Derived data, replayable from the ledger at any time.
type MonthlyHolding struct {
	Month  string                     `json:"month"` // YYYY-MM
	Shares map[string]decimal.Decimal `json:"shares"`
}

// PriceOutcome records how the latest price for an instrument was obtained.
// Every position gets exactly one outcome per refresh cycle, success or not.
type PriceOutcome struct {
	InstrumentID string      `json:"instrument_id"`
	Ticker       string      `json:"ticker"`
	Price        float64     `json:"price"`
	Currency     string      `json:"currency"`
	AsOf         time.Time   `json:"as_of"`
	Source       PriceSource `json:"source"`
}

// PriceSource identifies where a price outcome came from.
type PriceSource string

const (
	// SourceFetched is a fresh provider quote.
	SourceFetched PriceSource = "fetched"
	// SourceCached is a preserved last-known-good value after a fetch failure.
	SourceCached PriceSource = "cached"
	// SourceCostBasis is the purchase-cost fallback when no price was ever fetched.
	SourceCostBasis PriceSource = "cost_basis"
)

// Day truncates a time to midnight UTC. All ledger dates are day-precision.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Month formats a time as a YYYY-MM month key.
func Month(t time.Time) string {
	return t.Format("2006-01")
}
