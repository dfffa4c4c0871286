package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shopspring/decimal"

	"github.com/aristath/folio/internal/domain"
)

// writeJSON writes a JSON response with the standard envelope.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// HealthResponse reports process and session health.
type HealthResponse struct {
	Status       string  `json:"status"`
	UptimeHours  float64 `json:"uptime_hours"`
	CPUPercent   float64 `json:"cpu_percent"`
	RAMPercent   float64 `json:"ram_percent"`
	Transactions int     `json:"transactions"`
	Positions    int     `json:"positions"`
	LedgerLoaded bool    `json:"ledger_loaded"`
}

// LedgerResponse summarizes a completed ledger load.
type LedgerResponse struct {
	Parsed       int             `json:"parsed"`
	Skipped      int             `json:"skipped"`
	Transactions int             `json:"transactions"`
	Splits       []SplitResponse `json:"splits"`
	Positions    int             `json:"positions"`
	Months       int             `json:"months"`
	LoadedAt     time.Time       `json:"loaded_at"`
}

// SplitResponse is one detected split event.
type SplitResponse struct {
	InstrumentID string   `json:"instrument_id,omitempty"`
	Date         string   `json:"date"`
	Ratio        string   `json:"ratio"`
	AffectedIDs  []string `json:"affected_ids,omitempty"`
	ResultID     string   `json:"result_id,omitempty"`
	ISINChanging bool     `json:"isin_changing"`
}

// PositionResponse is one open position with its latest price outcome.
type PositionResponse struct {
	InstrumentID string          `json:"instrument_id"`
	Name         string          `json:"name"`
	TotalShares  decimal.Decimal `json:"total_shares"`
	AverageCost  decimal.Decimal `json:"average_cost"`
	Currency     string          `json:"currency"`
	Lots         int             `json:"lots"`
	Price        float64         `json:"price,omitempty"`
	PriceSource  string          `json:"price_source,omitempty"`
	PriceAsOf    *time.Time      `json:"price_as_of,omitempty"`
	Note         string          `json:"note,omitempty"`
}

// HistoryResponse is the monthly holdings series.
type HistoryResponse struct {
	Months []MonthHoldings `json:"months"`
}

// MonthHoldings is the share count per instrument at one month end.
type MonthHoldings struct {
	Month  string                     `json:"month"`
	Shares map[string]decimal.Decimal `json:"shares"`
}

// RefreshResponse summarizes a refresh cycle.
type RefreshResponse struct {
	Priced      int               `json:"priced"`
	Errors      map[string]string `json:"errors,omitempty"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}

// handleHealth returns process health and a session summary.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	ramPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err == nil {
		ramPercent = memStat.UsedPercent
	} else {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	st := s.session.Current()

	s.writeJSON(w, HealthResponse{
		Status:       "healthy",
		UptimeHours:  time.Since(s.startupTime).Hours(),
		CPUPercent:   cpuAvg,
		RAMPercent:   ramPercent,
		Transactions: len(st.Ledger),
		Positions:    len(st.Positions),
		LedgerLoaded: !st.LedgerLoadedAt.IsZero(),
	})
}

// handleLoadLedger ingests a raw ledger body and replaces the session.
func (s *Server) handleLoadLedger(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.LoadLedger(r.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load ledger")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.writeJSON(w, LedgerResponse{
		Parsed:       st.ParseStats.Parsed,
		Skipped:      st.ParseStats.Skipped,
		Transactions: len(st.Ledger),
		Splits:       splitResponses(st.Events),
		Positions:    len(st.Positions),
		Months:       len(st.Holdings),
		LoadedAt:     st.LedgerLoadedAt,
	})
}

// handleClearLedger resets the session.
func (s *Server) handleClearLedger(w http.ResponseWriter, r *http.Request) {
	s.session.Clear()
	s.writeJSON(w, map[string]string{"status": "cleared"})
}

// handleGetSplits returns the split events detected in the last load.
func (s *Server) handleGetSplits(w http.ResponseWriter, r *http.Request) {
	st := s.session.Current()
	s.writeJSON(w, splitResponses(st.Events))
}

// handleGetPositions returns the open positions with latest price outcomes.
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	st := s.session.Current()

	positions := make([]PositionResponse, 0, len(st.Positions))
	for _, pos := range st.Positions {
		resp := PositionResponse{
			InstrumentID: pos.InstrumentID,
			Name:         pos.Name,
			TotalShares:  pos.TotalShares,
			AverageCost:  pos.AverageCost,
			Currency:     pos.Currency,
			Lots:         len(pos.Lots),
			Note:         st.PriceNotes[pos.InstrumentID],
		}
		if outcome, ok := st.Prices[pos.InstrumentID]; ok {
			asOf := outcome.AsOf
			resp.Price = outcome.Price
			resp.PriceSource = string(outcome.Source)
			resp.PriceAsOf = &asOf
		}
		positions = append(positions, resp)
	}

	s.writeJSON(w, positions)
}

// handleGetValuation returns the portfolio total in the display currency.
func (s *Server) handleGetValuation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.session.Valuation(r.Context()))
}

// handleGetHistory returns the month-end holdings series.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	st := s.session.Current()

	months := make([]MonthHoldings, 0, len(st.Holdings))
	for _, h := range st.Holdings {
		months = append(months, MonthHoldings{Month: h.Month, Shares: h.Shares})
	}

	s.writeJSON(w, HistoryResponse{Months: months})
}

// handleGetGrowth returns the historical valuation curve.
func (s *Server) handleGetGrowth(w http.ResponseWriter, r *http.Request) {
	st := s.session.Current()
	s.writeJSON(w, st.Growth)
}

// handleRefresh runs a refresh cycle: prices, then the growth series.
// With ?scope=prices only the price refresh runs.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var err error
	var st = s.session.Current()

	if r.URL.Query().Get("scope") == "prices" {
		st, err = s.session.RefreshPrices(r.Context())
	} else {
		err = s.session.RefreshCycle(r.Context())
		if err == nil {
			st = s.session.Current()
		}
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Refresh failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, RefreshResponse{
		Priced:      len(st.Prices),
		Errors:      st.PriceNotes,
		RefreshedAt: st.PricesRefreshed,
	})
}

// handleSaveSnapshot persists the session snapshot immediately.
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Snapshot(); err != nil {
		s.log.Error().Err(err).Msg("Failed to save snapshot")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]string{"status": "saved"})
}

// handleRestoreSnapshot replaces the session with the persisted snapshot.
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Restore(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Snapshot restore failed")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	st := s.session.Current()
	s.writeJSON(w, map[string]interface{}{
		"status":       "restored",
		"transactions": len(st.Ledger),
		"positions":    len(st.Positions),
	})
}

func splitResponses(events []domain.SplitEvent) []SplitResponse {
	out := make([]SplitResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, SplitResponse{
			InstrumentID: ev.InstrumentID,
			Date:         ev.Date.Format("2006-01-02"),
			Ratio:        ev.Ratio.String(),
			AffectedIDs:  ev.AffectedIDs,
			ResultID:     ev.ResultID,
			ISINChanging: ev.ISINChanging,
		})
	}
	return out
}
