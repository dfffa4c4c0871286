// Package services contains the orchestration layer: operations that span
// the ledger pipeline, the market data services and the state manager.
package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/ledger"
	"github.com/aristath/folio/internal/marketdata"
	"github.com/aristath/folio/internal/portfolio"
	"github.com/aristath/folio/internal/reliability"
	"github.com/aristath/folio/internal/state"
)

// SessionService owns the full session lifecycle: ledger ingestion, price
// refresh cycles, growth rebuilds and snapshot persistence.
type SessionService struct {
	state      *state.Manager
	refresher  *marketdata.Refresher
	aggregator *portfolio.Aggregator
	growth     *portfolio.GrowthService
	resolver   *marketdata.TickerResolver
	rates      *marketdata.RateCache
	backup     *reliability.BackupService // optional
	keywords   ledger.KeywordConfig

	snapshotPath    string
	displayCurrency string
	log             zerolog.Logger
}

// NewSessionService wires the session orchestrator. resolver and rates
// are the same instances the market data services run on; their caches
// travel with the snapshot.
// backup is optional - if nil, snapshots stay local only.
func NewSessionService(
	stateManager *state.Manager,
	refresher *marketdata.Refresher,
	aggregator *portfolio.Aggregator,
	growth *portfolio.GrowthService,
	resolver *marketdata.TickerResolver,
	rates *marketdata.RateCache,
	backup *reliability.BackupService,
	keywords ledger.KeywordConfig,
	snapshotPath string,
	displayCurrency string,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		state:           stateManager,
		refresher:       refresher,
		aggregator:      aggregator,
		growth:          growth,
		resolver:        resolver,
		rates:           rates,
		backup:          backup,
		keywords:        keywords,
		snapshotPath:    snapshotPath,
		displayCurrency: displayCurrency,
		log:             log.With().Str("service", "session").Logger(),
	}
}

// LoadLedger runs the full ledger pipeline on raw rows: parse, classify,
// detect and rewrite splits, derive positions and monthly holdings, then
// replace the session ledger.
func (s *SessionService) LoadLedger(raw io.Reader) (state.State, error) {
	rows, stats := ledger.ParseRows(raw)
	if stats.Parsed == 0 {
		return state.State{}, fmt.Errorf("no parseable rows in ledger (%d skipped)", stats.Skipped)
	}

	classified := ledger.ClassifyAll(rows, s.keywords)
	rewritten, events := ledger.DetectAndRewrite(classified, s.keywords)
	positions := ledger.BuildPositions(rewritten)
	holdings := ledger.ReconstructMonthlyHoldings(rewritten, time.Now().UTC())

	st := s.state.SetLedger(rewritten, events, positions, holdings, stats)

	s.log.Info().
		Int("parsed", stats.Parsed).
		Int("skipped", stats.Skipped).
		Int("splits", len(events)).
		Int("positions", len(positions)).
		Msg("Ledger loaded")

	s.persist()
	return st, nil
}

// RefreshPrices runs one price refresh cycle over the current positions.
func (s *SessionService) RefreshPrices(ctx context.Context) (state.State, error) {
	positions := s.state.Positions()
	if len(positions) == 0 {
		return s.state.Current(), nil
	}

	result := s.refresher.Refresh(ctx, positions, s.state.Prices())
	st := s.state.RefreshPrices(result.Prices, result.Errors)

	s.persist()
	return st, nil
}

// RefreshGrowth rebuilds the month-by-month valuation series.
func (s *SessionService) RefreshGrowth(ctx context.Context) (state.State, error) {
	st := s.state.Current()
	if len(st.Holdings) == 0 {
		return st, nil
	}

	series, err := s.growth.Build(ctx, st.Holdings, st.Positions, s.displayCurrency)
	if err != nil {
		return st, fmt.Errorf("failed to build growth series: %w", err)
	}

	st = s.state.RefreshGrowth(series)
	s.persist()
	return st, nil
}

// RefreshCycle is the scheduled unit of work: prices first, growth after,
// one snapshot save at the end.
func (s *SessionService) RefreshCycle(ctx context.Context) error {
	if _, err := s.RefreshPrices(ctx); err != nil {
		return err
	}
	if _, err := s.RefreshGrowth(ctx); err != nil {
		return err
	}
	return nil
}

// Valuation totals the portfolio with the current prices.
func (s *SessionService) Valuation(ctx context.Context) portfolio.Valuation {
	st := s.state.Current()
	return s.aggregator.Valuate(ctx, st.Positions, st.Prices, st.PriceNotes, s.displayCurrency)
}

// Current exposes the session state for read-only handlers.
func (s *SessionService) Current() state.State {
	return s.state.Current()
}

// Clear resets the session and removes nothing from disk: the last
// snapshot stays restorable until the next ledger load overwrites it.
func (s *SessionService) Clear() state.State {
	return s.state.Clear()
}

// Restore loads the local snapshot, falling back to the newest cloud
// backup when the local file is missing or unreadable. The ticker memo
// and rate cache stored with the snapshot are rehydrated so a restored
// session does not start from cold lookups.
func (s *SessionService) Restore(ctx context.Context) error {
	if extras, err := s.state.Load(s.snapshotPath); err == nil {
		s.seedCaches(extras)
		return nil
	} else if s.backup == nil {
		return err
	}

	if err := s.backup.RestoreLatest(ctx, s.snapshotPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	extras, err := s.state.Load(s.snapshotPath)
	if err != nil {
		return err
	}
	s.seedCaches(extras)
	return nil
}

func (s *SessionService) seedCaches(extras state.Extras) {
	if len(extras.Tickers) > 0 {
		s.resolver.Import(extras.Tickers)
	}
	if len(extras.Rates) > 0 {
		s.rates.Import(extras.Rates)
	}
}

// Snapshot writes the session snapshot to disk and mirrors it to the
// backup target. A failed backup upload is logged, not propagated: the
// local snapshot is the durable copy.
func (s *SessionService) Snapshot() error {
	if s.snapshotPath == "" {
		return fmt.Errorf("no snapshot path configured")
	}
	extras := state.Extras{
		Rates:   s.rates.Export(),
		Tickers: s.resolver.Export(),
	}
	if err := s.state.Save(s.snapshotPath, extras); err != nil {
		return err
	}
	if s.backup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.backup.UploadSnapshot(ctx, s.snapshotPath); err != nil {
			s.log.Warn().Err(err).Msg("Failed to upload snapshot backup")
		}
	}
	return nil
}

// persist saves the snapshot after a state mutation. Failures are logged,
// never propagated: losing a snapshot must not fail the operation that
// produced the state.
func (s *SessionService) persist() {
	if s.snapshotPath == "" {
		return
	}
	if err := s.Snapshot(); err != nil {
		s.log.Error().Err(err).Msg("Failed to save snapshot")
	}
}

// RefreshJob adapts the refresh cycle to the scheduler's Job interface.
type RefreshJob struct {
	Session *SessionService
}

// Name implements scheduler.Job.
func (j *RefreshJob) Name() string { return "refresh_cycle" }

// Run implements scheduler.Job.
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return j.Session.RefreshCycle(ctx)
}
