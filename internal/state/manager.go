// Package state is the single owner of session state: the classified
// ledger, derived positions and holdings, price outcomes and the growth
// series. All mutation goes through a narrow set of operations; reads get
// copies, never live references.
package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/ledger"
	"github.com/aristath/folio/internal/portfolio"
)

// State is one consistent view of the session.
type State struct {
	Ledger     []domain.Transaction
	Events     []domain.SplitEvent
	Positions  []domain.Position
	Holdings   []domain.MonthlyHolding
	Prices     map[string]domain.PriceOutcome
	PriceNotes map[string]string
	Growth     portfolio.GrowthSeries
	ParseStats ledger.ParseStats

	LedgerLoadedAt  time.Time
	PricesRefreshed time.Time
	GrowthRefreshed time.Time
}

// Manager guards the session state behind a mutex. Every mutation returns
// the resulting state so callers never need a second read under race.
type Manager struct {
	mu    sync.Mutex
	state State
	log   zerolog.Logger
	now   func() time.Time
}

// NewManager creates an empty state manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "state").Logger(),
		now: time.Now,
	}
}

// SetLedger replaces the ledger and everything derived from it. Prices
// for instruments that survived the reload are kept; the rest are
// dropped so stale identifiers cannot linger.
func (m *Manager) SetLedger(
	txs []domain.Transaction,
	events []domain.SplitEvent,
	positions []domain.Position,
	holdings []domain.MonthlyHolding,
	stats ledger.ParseStats,
) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make(map[string]domain.PriceOutcome)
	for _, pos := range positions {
		if outcome, ok := m.state.Prices[pos.InstrumentID]; ok {
			kept[pos.InstrumentID] = outcome
		}
	}

	m.state.Ledger = txs
	m.state.Events = events
	m.state.Positions = positions
	m.state.Holdings = holdings
	m.state.ParseStats = stats
	m.state.Prices = kept
	m.state.PriceNotes = make(map[string]string)
	m.state.Growth = portfolio.GrowthSeries{}
	m.state.LedgerLoadedAt = m.now()

	m.log.Info().
		Int("transactions", len(txs)).
		Int("splits", len(events)).
		Int("positions", len(positions)).
		Msg("Ledger replaced")

	return m.copyState()
}

// RefreshPrices merges a refresh run's outcomes into the session.
func (m *Manager) RefreshPrices(prices map[string]domain.PriceOutcome, notes map[string]string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Prices == nil {
		m.state.Prices = make(map[string]domain.PriceOutcome)
	}
	for id, outcome := range prices {
		m.state.Prices[id] = outcome
	}
	m.state.PriceNotes = notes
	m.state.PricesRefreshed = m.now()

	return m.copyState()
}

// RefreshGrowth replaces the growth series.
func (m *Manager) RefreshGrowth(series portfolio.GrowthSeries) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Growth = series
	m.state.GrowthRefreshed = m.now()

	return m.copyState()
}

// Clear resets the session to empty.
func (m *Manager) Clear() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = State{}
	m.log.Info().Msg("State cleared")

	return m.copyState()
}

// Current returns a copy of the state.
func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyState()
}

// Positions returns the current positions.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, len(m.state.Positions))
	copy(out, m.state.Positions)
	return out
}

// Prices returns the last known price outcomes.
func (m *Manager) Prices() map[string]domain.PriceOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.PriceOutcome, len(m.state.Prices))
	for id, outcome := range m.state.Prices {
		out[id] = outcome
	}
	return out
}

// Holdings returns the monthly holdings series.
func (m *Manager) Holdings() []domain.MonthlyHolding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MonthlyHolding, len(m.state.Holdings))
	copy(out, m.state.Holdings)
	return out
}

func (m *Manager) copyState() State {
	s := m.state

	s.Ledger = append([]domain.Transaction(nil), m.state.Ledger...)
	s.Events = append([]domain.SplitEvent(nil), m.state.Events...)
	s.Positions = append([]domain.Position(nil), m.state.Positions...)
	s.Holdings = append([]domain.MonthlyHolding(nil), m.state.Holdings...)

	s.Prices = make(map[string]domain.PriceOutcome, len(m.state.Prices))
	for id, outcome := range m.state.Prices {
		s.Prices[id] = outcome
	}
	s.PriceNotes = make(map[string]string, len(m.state.PriceNotes))
	for id, note := range m.state.PriceNotes {
		s.PriceNotes[id] = note
	}

	return s
}
