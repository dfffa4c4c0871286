package marketdata

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/clientdata"
	"github.com/aristath/folio/internal/domain"
)

// cachedTicker is the structure stored in the tickers cache table.
type cachedTicker struct {
	Symbol string `json:"symbol"`
}

// TickerResolver maps ledger instrument identifiers (ISINs) to provider
// ticker symbols. Resolutions are memoized in memory for the session and
// written through to the persistent cache: ISIN-to-ticker mappings
// essentially never change.
type TickerResolver struct {
	provider  domain.MarketDataProvider
	cacheRepo *clientdata.Repository
	log       zerolog.Logger

	mu   sync.Mutex
	memo map[string]string
}

// NewTickerResolver creates a ticker resolver.
// cacheRepo is optional - if nil, the memo lives in memory only.
func NewTickerResolver(provider domain.MarketDataProvider, cacheRepo *clientdata.Repository, log zerolog.Logger) *TickerResolver {
	return &TickerResolver{
		provider:  provider,
		cacheRepo: cacheRepo,
		log:       log.With().Str("service", "ticker_resolver").Logger(),
		memo:      make(map[string]string),
	}
}

// Resolve finds the ticker symbol for an instrument. The search runs in
// three passes: by full identifier, by its national-code fragment, then by
// cleaned display name. Among multiple matches the primary listing wins,
// otherwise the first match. Resolve never fails: when every search comes
// up empty it synthesizes a display ticker from the name or identifier,
// which keeps the position visible even though it will not quote.
func (r *TickerResolver) Resolve(ctx context.Context, instrumentID, name string) string {
	if symbol := r.memoized(instrumentID); symbol != "" {
		return symbol
	}

	symbol := r.search(ctx, instrumentID)
	if symbol == "" {
		if frag := identifierFragment(instrumentID); frag != "" {
			symbol = r.search(ctx, frag)
		}
	}
	if symbol == "" && strings.TrimSpace(name) != "" {
		symbol = r.search(ctx, cleanName(name))
	}

	if symbol == "" {
		// Synthesized fallbacks are never memoized so a later run can
		// still resolve the real symbol.
		symbol = displayFallback(instrumentID, name)
		r.log.Warn().
			Str("instrument", instrumentID).
			Str("symbol", symbol).
			Msg("No ticker found, using display fallback")
		return symbol
	}

	r.remember(instrumentID, symbol, true)

	r.log.Debug().
		Str("instrument", instrumentID).
		Str("symbol", symbol).
		Msg("Resolved ticker")

	return symbol
}

// Candidates returns the tickers to try for an instrument in resolution
// priority order: the memoized symbol first, then each search pass, the
// display fallback last. Callers that can validate a result, such as a
// historical series fetch, walk the list until one yields usable data.
func (r *TickerResolver) Candidates(ctx context.Context, instrumentID, name string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(symbol string) {
		if symbol != "" && !seen[symbol] {
			seen[symbol] = true
			out = append(out, symbol)
		}
	}

	add(r.memoized(instrumentID))
	add(r.search(ctx, instrumentID))
	if frag := identifierFragment(instrumentID); frag != "" {
		add(r.search(ctx, frag))
	}
	if strings.TrimSpace(name) != "" {
		add(r.search(ctx, cleanName(name)))
	}
	add(displayFallback(instrumentID, name))

	return out
}

// Known reports whether the instrument's ticker memo is populated.
func (r *TickerResolver) Known(instrumentID string) bool {
	return r.memoized(instrumentID) != ""
}

// Export copies the ticker memo for snapshotting.
func (r *TickerResolver) Export() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.memo))
	for id, symbol := range r.memo {
		out[id] = symbol
	}
	return out
}

// Import seeds the memo from a snapshot, so a restore on a fresh host
// resolves without re-searching every instrument.
func (r *TickerResolver) Import(memo map[string]string) {
	for id, symbol := range memo {
		if symbol != "" {
			r.remember(id, symbol, true)
		}
	}
}

// memoized returns the remembered symbol for an instrument, consulting
// the in-memory memo first and the persistent cache second.
func (r *TickerResolver) memoized(instrumentID string) string {
	r.mu.Lock()
	if symbol, ok := r.memo[instrumentID]; ok {
		r.mu.Unlock()
		return symbol
	}
	r.mu.Unlock()

	if r.cacheRepo == nil {
		return ""
	}
	data, err := r.cacheRepo.GetIfFresh("tickers", instrumentID)
	if err != nil || data == nil {
		return ""
	}
	var cached cachedTicker
	if json.Unmarshal(data, &cached) != nil || cached.Symbol == "" {
		return ""
	}

	r.remember(instrumentID, cached.Symbol, false)
	return cached.Symbol
}

// remember stores a resolved symbol, optionally writing through to the
// persistent cache.
func (r *TickerResolver) remember(instrumentID, symbol string, persist bool) {
	r.mu.Lock()
	r.memo[instrumentID] = symbol
	r.mu.Unlock()

	if persist && r.cacheRepo != nil {
		if err := r.cacheRepo.Store("tickers", instrumentID, cachedTicker{Symbol: symbol}, clientdata.TTLTicker); err != nil {
			r.log.Warn().Err(err).Str("instrument", instrumentID).Msg("Failed to cache ticker")
		}
	}
}

// identifierFragment extracts the national security code of an ISIN-shaped
// identifier: the country prefix and check digit often break the search
// while the nine-character body matches.
func identifierFragment(id string) string {
	if len(id) != 12 {
		return ""
	}
	return strings.TrimLeft(id[2:11], "0")
}

// displayFallback derives a placeholder symbol from the display name, or
// the identifier itself when there is no name.
func displayFallback(instrumentID, name string) string {
	if fields := strings.Fields(cleanName(name)); len(fields) > 0 {
		return strings.ToUpper(fields[0])
	}
	return instrumentID
}

func (r *TickerResolver) search(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	results, err := r.provider.Search(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Str("query", query).Msg("Ticker search failed")
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	for _, res := range results {
		if res.PrimaryListing {
			return res.Symbol
		}
	}
	return results[0].Symbol
}

// cleanName strips the legal-form suffixes brokers append to display
// names. "Siemens AG Namens-Aktien o.N." searches better as "Siemens".
func cleanName(name string) string {
	noise := []string{
		"namens-aktien", "inhaber-aktien", "vorzugsaktien", "stammaktien",
		"registered shares", "o.n.", "s.a.", "n.v.", "plc", "inc.", "corp.",
		"ag", "se", "kgaa",
	}

	fields := strings.Fields(name)
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(strings.Trim(f, ".,"))
		skip := false
		for _, n := range noise {
			if lower == strings.Trim(n, ".") || lower == n {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, f)
		}
	}

	if len(kept) == 0 {
		return name
	}
	// The first two tokens carry the company identity.
	if len(kept) > 2 {
		kept = kept[:2]
	}
	return strings.Join(kept, " ")
}
