// Package validate checks extracted fields and grades them by warning count.
package validate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/smsledger/internal/batch"
	"github.com/jask/smsledger/internal/dates"
	"github.com/jask/smsledger/internal/models"
	"github.com/jask/smsledger/internal/numerals"
)

// Thresholds map warning counts to confidence tiers: fewer than Medium
// warnings is high, fewer than Low is medium, the rest is low.
type Thresholds struct {
	Medium int
	Low    int
}

// DefaultThresholds grades 0 warnings high, 1 medium and 2 or more low.
var DefaultThresholds = Thresholds{Medium: 1, Low: 2}

func (t Thresholds) grade(warnings int) models.Confidence {
	switch {
	case warnings >= t.Low:
		return models.ConfidenceLow
	case warnings >= t.Medium:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceHigh
	}
}

var currencies = map[string]bool{
	"EGP": true, "USD": true, "EUR": true, "GBP": true, "SAR": true,
	"AED": true, "KWD": true, "QAR": true, "BHD": true, "OMR": true,
	"JOD": true, "LBP": true, "IQD": true, "SYP": true, "YER": true,
	"TND": true, "MAD": true, "DZD": true, "SDG": true, "LYD": true,
	"جنيه": true, "دولار": true, "يورو": true, "ريال": true, "درهم": true, "دينار": true,
}

// Field aliases accepted in raw input.
var aliases = map[string][]string{
	"txn_type": {"transaction_type"},
	"bank_id":  {"matched_bank"},
}

// Validator turns loosely typed field maps into ParsedTransactions. It never
// fails: every problem becomes a warning.
type Validator struct {
	log        *slog.Logger
	thresholds Thresholds
	workers    int
}

// Option configures a Validator.
type Option func(*Validator)

func WithThresholds(t Thresholds) Option { return func(v *Validator) { v.thresholds = t } }

func WithLogger(l *slog.Logger) Option { return func(v *Validator) { v.log = l } }

func WithWorkers(n int) Option { return func(v *Validator) { v.workers = n } }

func New(opts ...Option) *Validator {
	v := &Validator{log: slog.Default(), thresholds: DefaultThresholds}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateResult validates a parser result.
func (v *Validator) ValidateResult(r models.ExtractionResult) models.ParsedTransaction {
	return v.Validate(r.Fields())
}

// Validate checks raw fields. A nil map yields an empty low-confidence result.
func (v *Validator) Validate(raw map[string]any) models.ParsedTransaction {
	if raw == nil {
		return v.failed("No input fields provided")
	}
	var (
		p        models.ParsedTransaction
		warnings []string
	)
	get := func(key string) string {
		s, warn := field(raw, key)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		return s
	}

	amount := get(models.FieldAmount)
	currency := get(models.FieldCurrency)
	date := get(models.FieldDate)
	p.Payee = get(models.FieldPayee)
	p.TxnType = get("txn_type")
	suffix := get(models.FieldCardSuffix)
	p.BankID = get("bank_id")
	p.State = models.ParseState(get(models.FieldState))
	p.TextRepaired, _ = raw[models.FieldTextRepaired].(bool)

	p.Amount, warnings = checkAmount(amount, warnings)
	p.Currency, warnings = checkCurrency(currency, warnings)
	p.Date, warnings = checkDate(date, warnings)
	p.CardSuffix, warnings = checkSuffix(suffix, warnings)

	p.Warnings = warnings
	if p.Warnings == nil {
		p.Warnings = []string{}
	}
	p.Confidence = v.thresholds.grade(len(p.Warnings))
	return p
}

// ValidateBatch validates every item independently and keeps input order.
func (v *Validator) ValidateBatch(items []map[string]any) []models.ParsedTransaction {
	return batch.Map(items, v.workers, v.Validate, func(i int, _ map[string]any, p any) models.ParsedTransaction {
		v.log.Error("validation failed", "index", i, "panic", p)
		return v.failed(fmt.Sprintf("Batch validation error at index %d: %v", i, p))
	})
}

func (v *Validator) failed(warning string) models.ParsedTransaction {
	return models.ParsedTransaction{Confidence: models.ConfidenceLow, Warnings: []string{warning}}
}

// field reads key or one of its aliases and renders it as a trimmed string.
// Values of unsupported types are reported and treated as absent.
func field(raw map[string]any, key string) (string, string) {
	val, ok := raw[key]
	if !ok || val == nil {
		for _, alt := range aliases[key] {
			if val, ok = raw[alt]; ok && val != nil {
				break
			}
		}
	}
	switch t := val.(type) {
	case nil:
		return "", ""
	case string:
		return strings.TrimSpace(t), ""
	case json.Number:
		return t.String(), ""
	case decimal.Decimal:
		return t.String(), ""
	case int:
		return strconv.Itoa(t), ""
	case int64:
		return strconv.FormatInt(t, 10), ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), ""
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), ""
	default:
		return "", fmt.Sprintf("Invalid type for field %s: %T", key, val)
	}
}

func checkAmount(s string, warnings []string) (string, []string) {
	if s == "" {
		return "", append(warnings, "Missing required field: amount")
	}
	cleaned := numerals.CleanAmount(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return s, append(warnings, "Invalid numeric format for amount: "+s)
	}
	if d.Sign() <= 0 {
		return cleaned, append(warnings, "Amount must be positive")
	}
	return cleaned, warnings
}

func checkCurrency(s string, warnings []string) (string, []string) {
	if s == "" {
		return "", append(warnings, "Missing currency field")
	}
	c := strings.ToUpper(s)
	if !currencies[c] {
		return c, append(warnings, "Invalid currency code: "+s)
	}
	return c, warnings
}

func checkDate(s string, warnings []string) (string, []string) {
	if s == "" {
		return "", warnings
	}
	if !dates.Valid(s) {
		return s, append(warnings, "Malformed date: "+s)
	}
	return s, warnings
}

func checkSuffix(s string, warnings []string) (string, []string) {
	if s == "" {
		return "", warnings
	}
	n := numerals.Normalize(s)
	if len(n) != 4 || !numerals.IsDigits(n) {
		return s, append(warnings, "Invalid card suffix (must be 4 digits): "+s)
	}
	return n, warnings
}
