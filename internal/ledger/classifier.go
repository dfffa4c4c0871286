package ledger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/folio/internal/domain"
)

// KeywordConfig is the per-locale keyword table used to classify memo
// text. It is supplied as configuration rather than hard-coded branching
// so new broker locales only need a YAML file, not a code change.
type KeywordConfig struct {
	Buy          []string `yaml:"buy"`
	Sell         []string `yaml:"sell"`
	Transfer     []string `yaml:"transfer"`
	Split        []string `yaml:"split"`
	Cancellation []string `yaml:"cancellation"`
}

// DefaultKeywords returns the built-in German and English keyword table.
func DefaultKeywords() KeywordConfig {
	return KeywordConfig{
		Buy:          []string{"kauf", "buy", "purchase", "zeichnung"},
		Sell:         []string{"verkauf", "sell", "sale", "veräußerung"},
		Transfer:     []string{"übertrag", "einbuchung", "ausbuchung", "transfer", "depotübertrag"},
		Split:        []string{"split", "verhältnis", "ratio", "kapitalmaßnahme"},
		Cancellation: []string{"storno", "cancellation", "reversal", "korrektur"},
	}
}

// LoadKeywords reads a keyword table from a YAML file. Missing lists fall
// back to the defaults so a partial file is valid.
func LoadKeywords(path string) (KeywordConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordConfig{}, fmt.Errorf("failed to read keyword config: %w", err)
	}

	cfg := DefaultKeywords()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return KeywordConfig{}, fmt.Errorf("failed to parse keyword config: %w", err)
	}
	return cfg, nil
}

// Classify derives a transaction kind from memo text. Pure function of
// {memo, config}; matching is case-insensitive substring.
//
// Sell is checked before buy: German memos like "Verkauf" contain "kauf".
func Classify(memo string, cfg KeywordConfig) domain.TransactionKind {
	lower := strings.ToLower(memo)

	if containsAny(lower, cfg.Sell) {
		return domain.KindSell
	}
	if containsAny(lower, cfg.Buy) {
		return domain.KindBuy
	}
	if containsAny(lower, cfg.Transfer) {
		return domain.KindTransfer
	}
	return domain.KindOther
}

// HasSplitToken reports whether a memo carries a split-indicating term.
// Split detection requires this signal; quantity patterns alone are never
// enough (see splits.go).
func HasSplitToken(memo string, cfg KeywordConfig) bool {
	return containsAny(strings.ToLower(memo), cfg.Split)
}

// IsCancellation reports whether a memo marks a reversal entry. Such rows
// survive split-marker removal because they participate in normal netting.
func IsCancellation(memo string, cfg KeywordConfig) bool {
	return containsAny(strings.ToLower(memo), cfg.Cancellation)
}

// ClassifyAll classifies a batch of raw transactions.
func ClassifyAll(raw []domain.RawTransaction, cfg KeywordConfig) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(raw))
	for _, r := range raw {
		txs = append(txs, domain.Transaction{
			RawTransaction: r,
			Kind:           Classify(r.Memo, cfg),
		})
	}
	return txs
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
