// Package card extracts card suffixes from messages and maps them to
// configured account metadata.
package card

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/jask/smsledger/internal/catalog"
	"github.com/jask/smsledger/internal/numerals"
)

// AccountType classifies the account behind a card.
type AccountType string

const (
	Credit  AccountType = "Credit"
	Debit   AccountType = "Debit"
	Prepaid AccountType = "Prepaid"
	Unknown AccountType = "Unknown"
)

const (
	labelUnknownCard   = "Unknown card"
	labelInvalidSuffix = "Invalid suffix"
	labelNoSuffix      = "No card suffix in SMS"
	suffixLen          = 4
)

// AccountInfo is the metadata attached to a card suffix.
type AccountInfo struct {
	AccountID    string      `json:"account_id"`
	AccountType  AccountType `json:"account_type"`
	InterestRate *float64    `json:"interest_rate"`
	CreditLimit  *float64    `json:"credit_limit"`
	BillingCycle *int        `json:"billing_cycle"`
	Label        string      `json:"label"`
	CardSuffix   string      `json:"card_suffix"`
	IsKnown      bool        `json:"is_known"`
}

// Phrasings that introduce a card number, English first. Each captures the
// whole digit run so runs longer or shorter than four digits can be rejected.
var suffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:ending|card ending|ends with)\s+(\d+)`),
	regexp.MustCompile(`(?i)card\s+(?:number\s+)?(?:\*+\s*)?(\d+)`),
	regexp.MustCompile(`\*+(\d+)`),
	regexp.MustCompile(`(?:رقم|بطاقة رقم|ينتهي)\s+(\d+)`),
	regexp.MustCompile(`بطاقة\s+(?:\*+\s*)?(\d+)`),
}

// ExtractSuffix returns the four-digit card suffix mentioned in text.
func ExtractSuffix(text string) (string, bool) {
	text = numerals.Normalize(text)
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, re := range suffixPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m[1]) == suffixLen {
				return m[1], true
			}
		}
	}
	return "", false
}

type accounts struct {
	path  string
	table map[string]AccountInfo
}

// Classifier looks up account metadata by card suffix. The table is swapped
// atomically on Reload so lookups never block.
type Classifier struct {
	log *slog.Logger
	tbl atomic.Pointer[accounts]
}

// Option configures a Classifier.
type Option func(*Classifier)

func WithLogger(l *slog.Logger) Option { return func(c *Classifier) { c.log = l } }

// New loads the accounts document at path. A missing file gives an empty
// table; a malformed one is an error.
func New(path string, opts ...Option) (*Classifier, error) {
	c := &Classifier{log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	a, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.tbl.Store(a)
	return c, nil
}

func (c *Classifier) load(path string) (*accounts, error) {
	entries, found, err := catalog.LoadAccounts(path)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if !found {
		c.log.Warn("accounts file not found, continuing with an empty table", "path", path)
	}
	a := &accounts{path: path, table: make(map[string]AccountInfo, len(entries))}
	for suffix, e := range entries {
		label := e.Label
		if label == "" {
			label = e.AccountID
		}
		a.table[suffix] = AccountInfo{
			AccountID:    e.AccountID,
			AccountType:  parseType(e.AccountType),
			InterestRate: e.InterestRate,
			CreditLimit:  e.CreditLimit,
			BillingCycle: e.BillingCycle,
			Label:        label,
			CardSuffix:   suffix,
			IsKnown:      true,
		}
	}
	return a, nil
}

func parseType(s string) AccountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit":
		return Credit
	case "debit":
		return Debit
	case "prepaid":
		return Prepaid
	}
	return Unknown
}

// Lookup returns the account for suffix, or a fallback record with IsKnown false.
func (c *Classifier) Lookup(suffix string) AccountInfo {
	suffix = strings.TrimSpace(numerals.Normalize(suffix))
	if len(suffix) != suffixLen || !numerals.IsDigits(suffix) {
		return fallback(suffix, labelInvalidSuffix)
	}
	if info, ok := c.tbl.Load().table[suffix]; ok {
		return info
	}
	return fallback(suffix, labelUnknownCard)
}

// Classify extracts the card suffix from text and looks it up.
func (c *Classifier) Classify(text string) AccountInfo {
	suffix, ok := ExtractSuffix(text)
	if !ok {
		return fallback("", labelNoSuffix)
	}
	return c.Lookup(suffix)
}

// Len reports how many accounts are configured.
func (c *Classifier) Len() int { return len(c.tbl.Load().table) }

// Reload replaces the accounts table. An empty path reloads the current file.
func (c *Classifier) Reload(path string) error {
	if path == "" {
		path = c.tbl.Load().path
	}
	a, err := c.load(path)
	if err != nil {
		return err
	}
	c.tbl.Store(a)
	c.log.Info("accounts reloaded", "path", path, "accounts", len(a.table))
	return nil
}

func fallback(suffix, label string) AccountInfo {
	id := "unknown"
	if suffix != "" {
		id = "unknown_" + suffix
	}
	return AccountInfo{
		AccountID:   id,
		AccountType: Unknown,
		Label:       label,
		CardSuffix:  suffix,
	}
}
