// Package bank recognizes which institution sent a message.
package bank

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/jask/smsledger/internal/batch"
	"github.com/jask/smsledger/internal/catalog"
	"github.com/jask/smsledger/internal/models"
	"github.com/jask/smsledger/internal/numerals"
)

// DefaultThreshold is the minimum fuzzy score accepted as a match.
const DefaultThreshold = 80

// ExactConfidence is reported for a direct pattern hit.
const ExactConfidence = 100

// Match is the identification outcome for one message.
type Match struct {
	BankID     string `json:"bank_id"`
	Confidence int    `json:"confidence"`
}

type pattern struct {
	raw     string
	lowered string
	re      *regexp.Regexp // nil when raw is not a valid expression
}

func (p pattern) matches(text, lowered string) bool {
	if p.re != nil {
		return p.re.MatchString(text)
	}
	return strings.Contains(lowered, p.lowered)
}

type bankPatterns struct {
	id       string
	patterns []pattern
}

type table struct {
	path  string
	banks []bankPatterns
}

// Identifier resolves bank ids from message text. It is safe for concurrent
// use; Reload swaps the pattern table atomically.
type Identifier struct {
	log       *slog.Logger
	fuzzy     bool
	threshold int
	workers   int

	table atomic.Pointer[table]
}

// Option configures an Identifier.
type Option func(*Identifier)

func WithFuzzy(enabled bool) Option { return func(i *Identifier) { i.fuzzy = enabled } }

func WithThreshold(score int) Option { return func(i *Identifier) { i.threshold = score } }

func WithLogger(l *slog.Logger) Option { return func(i *Identifier) { i.log = l } }

func WithWorkers(n int) Option { return func(i *Identifier) { i.workers = n } }

// New loads the pattern document at path.
func New(path string, opts ...Option) (*Identifier, error) {
	id := &Identifier{
		log:       slog.Default(),
		fuzzy:     true,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(id)
	}
	t, err := id.compile(path)
	if err != nil {
		return nil, err
	}
	id.table.Store(t)
	return id, nil
}

func (i *Identifier) compile(path string) (*table, error) {
	doc, err := catalog.LoadBankPatterns(path)
	if err != nil {
		return nil, fmt.Errorf("load bank patterns: %w", err)
	}
	t := &table{path: path, banks: make([]bankPatterns, 0, len(doc.Banks))}
	for _, b := range doc.Banks {
		if len(b.Patterns) == 0 {
			i.log.Warn("bank has no patterns", "bank", b.ID, "path", path)
		}
		bp := bankPatterns{id: b.ID}
		for _, raw := range b.Patterns {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			p := pattern{raw: raw, lowered: strings.ToLower(raw)}
			if re, err := regexp.Compile("(?i)" + raw); err == nil {
				p.re = re
			} else {
				i.log.Debug("pattern is not a valid expression, matching as text", "bank", b.ID, "pattern", raw)
			}
			bp.patterns = append(bp.patterns, p)
		}
		t.banks = append(t.banks, bp)
	}
	return t, nil
}

// Identify returns the bank that sent text, or unknown_bank with confidence 0.
func (i *Identifier) Identify(text string) Match {
	text = numerals.CollapseSpace(text)
	if text == "" {
		return Match{BankID: models.UnknownBank}
	}
	t := i.table.Load()
	lowered := strings.ToLower(text)

	for _, b := range t.banks {
		for _, p := range b.patterns {
			if p.matches(text, lowered) {
				return Match{BankID: b.id, Confidence: ExactConfidence}
			}
		}
	}

	if i.fuzzy {
		if best := bestFuzzy(t, lowered); best.bank != "" && best.score >= i.threshold {
			return Match{BankID: best.bank, Confidence: best.score}
		}
	}

	i.log.Warn("unmatched message", "sms", preview(text, 100))
	return Match{BankID: models.UnknownBank}
}

// IdentifyBatch identifies each message; the result is index-aligned with texts.
func (i *Identifier) IdentifyBatch(texts []string) []Match {
	return batch.Map(texts, i.workers, i.Identify, func(idx int, _ string, p any) Match {
		i.log.Error("identify failed", "index", idx, "panic", p)
		return Match{BankID: models.UnknownBank}
	})
}

// Statistics counts messages per identified bank.
func (i *Identifier) Statistics(texts []string) map[string]int {
	counts := map[string]int{}
	for _, m := range i.IdentifyBatch(texts) {
		counts[m.BankID]++
	}
	return counts
}

// Banks lists the configured bank ids in precedence order.
func (i *Identifier) Banks() []string {
	t := i.table.Load()
	out := make([]string, 0, len(t.banks))
	for _, b := range t.banks {
		out = append(out, b.id)
	}
	return out
}

// Reload replaces the pattern table. An empty path reloads the current file.
// On error the previous table stays active.
func (i *Identifier) Reload(path string) error {
	if path == "" {
		path = i.table.Load().path
	}
	t, err := i.compile(path)
	if err != nil {
		return err
	}
	i.table.Store(t)
	i.log.Info("bank patterns reloaded", "path", path, "banks", len(t.banks))
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
