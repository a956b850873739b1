// Package normalize converts validated transactions into canonical records.
package normalize

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jask/smsledger/internal/batch"
	"github.com/jask/smsledger/internal/card"
	"github.com/jask/smsledger/internal/dates"
	"github.com/jask/smsledger/internal/models"
	"github.com/jask/smsledger/internal/numerals"
)

// AccountLookup resolves a card suffix to account metadata.
type AccountLookup interface {
	Lookup(suffix string) card.AccountInfo
}

// UrgencyThresholds are the amounts above which a record is flagged.
type UrgencyThresholds struct {
	High         float64
	CreditMedium float64
}

var DefaultUrgency = UrgencyThresholds{High: 10000, CreditMedium: 5000}

// Normalizer builds TransactionRecords. It keeps no mutable state.
type Normalizer struct {
	log      *slog.Logger
	accounts AccountLookup
	urgency  UrgencyThresholds
	newID    func() string
	now      func() time.Time
	workers  int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

func WithUrgency(u UrgencyThresholds) Option { return func(n *Normalizer) { n.urgency = u } }

// WithIDFunc replaces the uuid generator, mostly for tests.
func WithIDFunc(fn func() string) Option { return func(n *Normalizer) { n.newID = fn } }

// WithClock sets the time whose year completes day/month dates.
func WithClock(now func() time.Time) Option { return func(n *Normalizer) { n.now = now } }

func WithLogger(l *slog.Logger) Option { return func(n *Normalizer) { n.log = l } }

func WithWorkers(w int) Option { return func(n *Normalizer) { n.workers = w } }

// New returns a Normalizer. accounts may be nil, in which case records carry
// no account metadata.
func New(accounts AccountLookup, opts ...Option) *Normalizer {
	n := &Normalizer{
		log:      slog.Default(),
		accounts: accounts,
		urgency:  DefaultUrgency,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize maps p onto the canonical schema. Fields that cannot be
// converted are left nil rather than failing the record.
func (n *Normalizer) Normalize(p models.ParsedTransaction) models.TransactionRecord {
	rec := models.TransactionRecord{
		ID:           n.newID(),
		Category:     models.DefaultCategory,
		Subcategory:  models.DefaultSubcategory,
		Urgency:      models.UrgencyNormal,
		Confidence:   p.Confidence,
		Tags:         tags(p),
		State:        p.State,
		TextRepaired: p.TextRepaired,
	}
	if rec.State == "" {
		rec.State = models.StateUnknown
	}

	rec.ExtractedDateRaw = text(p.Date)
	if iso, ok := dates.Resolve(p.Date, n.now()); ok {
		rec.Date = &iso
	}
	if d, err := numerals.ParseAmount(p.Amount); err == nil {
		f, _ := d.Float64()
		rec.Amount = &f
	}
	rec.Currency = text(p.Currency)
	rec.Payee = text(p.Payee)
	rec.NormalizedMerchant = text(p.Payee)

	var accountType card.AccountType
	if p.CardSuffix != "" {
		if info, ok := n.lookup(p.CardSuffix); ok {
			rec.AccountID = text(info.AccountID)
			rec.AccountType = text(string(info.AccountType))
			rec.InterestRate = info.InterestRate
			accountType = info.AccountType
		}
	}

	rec.Urgency = n.grade(rec.Amount, accountType)
	return rec
}

// NormalizeBatch normalizes every item, keeping input order and length.
func (n *Normalizer) NormalizeBatch(items []models.ParsedTransaction) []models.TransactionRecord {
	return batch.Map(items, n.workers, n.Normalize, func(i int, p models.ParsedTransaction, r any) models.TransactionRecord {
		n.log.Error("normalize failed", "index", i, "panic", r)
		return models.TransactionRecord{
			ID:          n.newID(),
			Category:    models.DefaultCategory,
			Subcategory: models.DefaultSubcategory,
			Tags:        []string{models.TagHasWarnings},
			Urgency:     models.UrgencyNormal,
			Confidence:  models.ConfidenceLow,
			State:       models.StateUnknown,
		}
	})
}

func (n *Normalizer) lookup(suffix string) (info card.AccountInfo, ok bool) {
	if n.accounts == nil {
		return info, false
	}
	defer func() {
		if r := recover(); r != nil {
			n.log.Warn("account lookup failed", "suffix", suffix, "panic", r)
			info, ok = card.AccountInfo{}, false
		}
	}()
	info = n.accounts.Lookup(suffix)
	return info, true
}

func (n *Normalizer) grade(amount *float64, t card.AccountType) models.Urgency {
	if amount == nil {
		return models.UrgencyNormal
	}
	switch {
	case *amount > n.urgency.High:
		return models.UrgencyHigh
	case t == card.Credit && *amount > n.urgency.CreditMedium:
		return models.UrgencyMedium
	default:
		return models.UrgencyNormal
	}
}

func tags(p models.ParsedTransaction) []string {
	out := make([]string, 0, 3)
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		for _, t := range out {
			if t == tag {
				return
			}
		}
		out = append(out, tag)
	}
	add(p.TxnType)
	add(p.BankID)
	if len(p.Warnings) > 0 {
		add(models.TagHasWarnings)
	}
	return out
}

// text returns the NFC form of s with whitespace collapsed, or nil when
// nothing is left.
func text(s string) *string {
	s = numerals.CollapseSpace(norm.NFC.String(s))
	if s == "" {
		return nil
	}
	return &s
}
