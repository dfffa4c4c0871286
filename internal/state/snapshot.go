package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/ledger"
	"github.com/aristath/folio/internal/portfolio"
)

// Snapshot wire types. Decimals travel as strings: their internal
// representation is not reflectable and a string survives any version of
// the decimal library. In-flight request state is never part of a
// snapshot; a reloaded session always starts with an empty fetch set.

type snapshotTransaction struct {
	Date         time.Time `msgpack:"date"`
	Name         string    `msgpack:"name"`
	InstrumentID string    `msgpack:"instrument_id"`
	Quantity     string    `msgpack:"quantity"`
	Memo         string    `msgpack:"memo"`
	Price        string    `msgpack:"price"`
	Currency     string    `msgpack:"currency"`
	Kind         int       `msgpack:"kind"`
}

type snapshotEvent struct {
	InstrumentID string    `msgpack:"instrument_id"`
	Date         time.Time `msgpack:"date"`
	Ratio        string    `msgpack:"ratio"`
	AffectedIDs  []string  `msgpack:"affected_ids"`
	ResultID     string    `msgpack:"result_id"`
	ISINChanging bool      `msgpack:"isin_changing"`
}

type snapshotLot struct {
	Shares   string `msgpack:"shares"`
	UnitCost string `msgpack:"unit_cost"`
}

type snapshotPosition struct {
	InstrumentID string        `msgpack:"instrument_id"`
	Name         string        `msgpack:"name"`
	TotalShares  string        `msgpack:"total_shares"`
	AverageCost  string        `msgpack:"average_cost"`
	Currency     string        `msgpack:"currency"`
	Lots         []snapshotLot `msgpack:"lots"`
}

type snapshotHolding struct {
	Month  string            `msgpack:"month"`
	Shares map[string]string `msgpack:"shares"`
}

type snapshot struct {
	Version    int                            `msgpack:"version"`
	Ledger     []snapshotTransaction          `msgpack:"ledger"`
	Events     []snapshotEvent                `msgpack:"events"`
	Positions  []snapshotPosition             `msgpack:"positions"`
	Holdings   []snapshotHolding              `msgpack:"holdings"`
	Prices     map[string]domain.PriceOutcome `msgpack:"prices"`
	PriceNotes map[string]string              `msgpack:"price_notes"`
	Growth     portfolio.GrowthSeries         `msgpack:"growth"`
	Parsed     int                            `msgpack:"parsed"`
	Skipped    int                            `msgpack:"skipped"`
	Rates      map[string]float64             `msgpack:"rates"`
	Tickers    map[string]string              `msgpack:"tickers"`

	LedgerLoadedAt  time.Time `msgpack:"ledger_loaded_at"`
	PricesRefreshed time.Time `msgpack:"prices_refreshed"`
	GrowthRefreshed time.Time `msgpack:"growth_refreshed"`
}

const snapshotVersion = 2

// Extras carries the collaborator caches that travel with the session
// snapshot: the FX rates keyed by "FROM:TO" pair and the instrument to
// ticker memo. A restore on a fresh host rehydrates both instead of
// starting from cold lookups.
type Extras struct {
	Rates   map[string]float64
	Tickers map[string]string
}

// Save writes the current state to a msgpack snapshot file. The write
// goes through a temp file and rename so a crash never leaves a torn
// snapshot behind.
func (m *Manager) Save(path string, extras Extras) error {
	current := m.Current()

	snap := toSnapshot(current)
	snap.Rates = extras.Rates
	snap.Tickers = extras.Tickers

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	m.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Snapshot saved")
	return nil
}

// Load replaces the state from a snapshot file and returns the extras
// stored alongside it.
func (m *Manager) Load(path string) (Extras, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extras{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return Extras{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return Extras{}, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	restored, err := fromSnapshot(snap)
	if err != nil {
		return Extras{}, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	m.mu.Lock()
	m.state = restored
	m.mu.Unlock()

	m.log.Info().
		Str("path", path).
		Int("transactions", len(restored.Ledger)).
		Int("positions", len(restored.Positions)).
		Msg("Snapshot loaded")

	return Extras{Rates: snap.Rates, Tickers: snap.Tickers}, nil
}

func toSnapshot(s State) snapshot {
	snap := snapshot{
		Version:         snapshotVersion,
		Prices:          s.Prices,
		PriceNotes:      s.PriceNotes,
		Growth:          s.Growth,
		Parsed:          s.ParseStats.Parsed,
		Skipped:         s.ParseStats.Skipped,
		LedgerLoadedAt:  s.LedgerLoadedAt,
		PricesRefreshed: s.PricesRefreshed,
		GrowthRefreshed: s.GrowthRefreshed,
	}

	for _, tx := range s.Ledger {
		snap.Ledger = append(snap.Ledger, snapshotTransaction{
			Date:         tx.Date,
			Name:         tx.Name,
			InstrumentID: tx.InstrumentID,
			Quantity:     tx.Quantity.String(),
			Memo:         tx.Memo,
			Price:        tx.Price.String(),
			Currency:     tx.Currency,
			Kind:         int(tx.Kind),
		})
	}

	for _, ev := range s.Events {
		snap.Events = append(snap.Events, snapshotEvent{
			InstrumentID: ev.InstrumentID,
			Date:         ev.Date,
			Ratio:        ev.Ratio.String(),
			AffectedIDs:  ev.AffectedIDs,
			ResultID:     ev.ResultID,
			ISINChanging: ev.ISINChanging,
		})
	}

	for _, pos := range s.Positions {
		sp := snapshotPosition{
			InstrumentID: pos.InstrumentID,
			Name:         pos.Name,
			TotalShares:  pos.TotalShares.String(),
			AverageCost:  pos.AverageCost.String(),
			Currency:     pos.Currency,
		}
		for _, lot := range pos.Lots {
			sp.Lots = append(sp.Lots, snapshotLot{
				Shares:   lot.Shares.String(),
				UnitCost: lot.UnitCost.String(),
			})
		}
		snap.Positions = append(snap.Positions, sp)
	}

	for _, h := range s.Holdings {
		sh := snapshotHolding{Month: h.Month, Shares: make(map[string]string, len(h.Shares))}
		for id, shares := range h.Shares {
			sh.Shares[id] = shares.String()
		}
		snap.Holdings = append(snap.Holdings, sh)
	}

	return snap
}

func fromSnapshot(snap snapshot) (State, error) {
	s := State{
		Prices:          snap.Prices,
		PriceNotes:      snap.PriceNotes,
		Growth:          snap.Growth,
		ParseStats:      ledger.ParseStats{Parsed: snap.Parsed, Skipped: snap.Skipped},
		LedgerLoadedAt:  snap.LedgerLoadedAt,
		PricesRefreshed: snap.PricesRefreshed,
		GrowthRefreshed: snap.GrowthRefreshed,
	}

	for _, tx := range snap.Ledger {
		quantity, err := decimal.NewFromString(tx.Quantity)
		if err != nil {
			return State{}, fmt.Errorf("bad quantity %q: %w", tx.Quantity, err)
		}
		price, err := decimal.NewFromString(tx.Price)
		if err != nil {
			return State{}, fmt.Errorf("bad price %q: %w", tx.Price, err)
		}
		s.Ledger = append(s.Ledger, domain.Transaction{
			RawTransaction: domain.RawTransaction{
				Date:         tx.Date,
				Name:         tx.Name,
				InstrumentID: tx.InstrumentID,
				Quantity:     quantity,
				Memo:         tx.Memo,
				Price:        price,
				Currency:     tx.Currency,
			},
			Kind: domain.TransactionKind(tx.Kind),
		})
	}

	for _, ev := range snap.Events {
		ratio, err := decimal.NewFromString(ev.Ratio)
		if err != nil {
			return State{}, fmt.Errorf("bad ratio %q: %w", ev.Ratio, err)
		}
		s.Events = append(s.Events, domain.SplitEvent{
			InstrumentID: ev.InstrumentID,
			Date:         ev.Date,
			Ratio:        ratio,
			AffectedIDs:  ev.AffectedIDs,
			ResultID:     ev.ResultID,
			ISINChanging: ev.ISINChanging,
		})
	}

	for _, sp := range snap.Positions {
		shares, err := decimal.NewFromString(sp.TotalShares)
		if err != nil {
			return State{}, fmt.Errorf("bad shares %q: %w", sp.TotalShares, err)
		}
		cost, err := decimal.NewFromString(sp.AverageCost)
		if err != nil {
			return State{}, fmt.Errorf("bad cost %q: %w", sp.AverageCost, err)
		}
		pos := domain.Position{
			InstrumentID: sp.InstrumentID,
			Name:         sp.Name,
			TotalShares:  shares,
			AverageCost:  cost,
			Currency:     sp.Currency,
		}
		for _, lot := range sp.Lots {
			lotShares, err := decimal.NewFromString(lot.Shares)
			if err != nil {
				return State{}, fmt.Errorf("bad lot shares %q: %w", lot.Shares, err)
			}
			lotCost, err := decimal.NewFromString(lot.UnitCost)
			if err != nil {
				return State{}, fmt.Errorf("bad lot cost %q: %w", lot.UnitCost, err)
			}
			pos.Lots = append(pos.Lots, domain.Lot{Shares: lotShares, UnitCost: lotCost})
		}
		s.Positions = append(s.Positions, pos)
	}

	for _, sh := range snap.Holdings {
		h := domain.MonthlyHolding{Month: sh.Month, Shares: make(map[string]decimal.Decimal, len(sh.Shares))}
		for id, raw := range sh.Shares {
			shares, err := decimal.NewFromString(raw)
			if err != nil {
				return State{}, fmt.Errorf("bad holding shares %q: %w", raw, err)
			}
			h.Shares[id] = shares
		}
		s.Holdings = append(s.Holdings, h)
	}

	return s, nil
}
