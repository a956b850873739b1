// Package parser extracts transaction fields from bank messages using
// per-bank ordered templates of named-capture patterns.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/jask/smsledger/internal/bank"
	"github.com/jask/smsledger/internal/batch"
	"github.com/jask/smsledger/internal/card"
	"github.com/jask/smsledger/internal/catalog"
	"github.com/jask/smsledger/internal/models"
	"github.com/jask/smsledger/internal/numerals"
)

var (
	// ErrBatchLength is returned when parallel batch inputs differ in length.
	ErrBatchLength = errors.New("texts and bank ids differ in length")
	// ErrUnknownBank is returned by Templates for a bank with no templates.
	ErrUnknownBank = errors.New("unknown bank")
	// ErrTemplateNotFound is returned when a named template does not exist for the bank.
	ErrTemplateNotFound = errors.New("template not found")
)

// DefaultFallbackBank holds the templates used when no bank is recognized.
const DefaultFallbackBank = "Generic_Bank"

// BankIdentifier resolves the sending bank of a message.
type BankIdentifier interface {
	Identify(text string) bank.Match
}

// Engine applies templates to messages. Templates are held in an immutable
// snapshot that Reload replaces atomically.
type Engine struct {
	log          *slog.Logger
	identifier   BankIdentifier
	cardFallback bool
	fallbackBank string
	workers      int

	set atomic.Pointer[templateSet]
}

// Option configures an Engine.
type Option func(*Engine)

// WithIdentifier sets the identifier consulted when no bank hint is given.
// Without one, every configured bank is tried in order.
func WithIdentifier(id BankIdentifier) Option { return func(e *Engine) { e.identifier = id } }

// WithCardFallback toggles card suffix extraction when a template finds none.
func WithCardFallback(enabled bool) Option { return func(e *Engine) { e.cardFallback = enabled } }

// WithFallbackBank names the templates used for unrecognized banks; empty disables it.
func WithFallbackBank(id string) Option { return func(e *Engine) { e.fallbackBank = id } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// New loads the template document at path.
func New(path string, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:          slog.Default(),
		cardFallback: true,
		fallbackBank: DefaultFallbackBank,
	}
	for _, opt := range opts {
		opt(e)
	}
	set, err := e.compile(path)
	if err != nil {
		return nil, err
	}
	e.set.Store(set)
	return e, nil
}

// Parse extracts fields from text. An empty bankID asks the identifier; a
// non-empty templateName forces that template and fails if the bank lacks it.
func (e *Engine) Parse(text, bankID, templateName string) (models.ExtractionResult, error) {
	set := e.set.Load()
	result := models.ExtractionResult{Confidence: models.ConfidenceLow, SMSText: text}
	clean := numerals.CollapseSpace(numerals.Normalize(text))
	if clean == "" {
		return result, nil
	}

	bankID = strings.TrimSpace(bankID)
	if bankID == "" {
		if e.identifier == nil {
			return e.parseAnyBank(set, clean, text), nil
		}
		bankID = e.identifier.Identify(text).BankID
	}

	templates, ok := set.byBank[bankID]
	if !ok {
		fb, hasFallback := set.byBank[e.fallbackBank]
		if e.fallbackBank == "" || !hasFallback {
			e.log.Debug("no templates for bank", "bank", bankID)
			return result, nil
		}
		bankID, templates = e.fallbackBank, fb
	}

	if templateName != "" {
		for _, tpl := range templates {
			if tpl.name == templateName {
				r, _ := e.apply(tpl, clean)
				r.MatchedBank, r.MatchedTemplate, r.SMSText = bankID, tpl.name, text
				r.Confidence = tpl.confidence(r)
				return r, nil
			}
		}
		return result, fmt.Errorf("%w: %q for bank %q", ErrTemplateNotFound, templateName, bankID)
	}

	sel := e.selectTemplate(bankID, templates, clean)
	sel.result.SMSText = text
	return sel.result, nil
}

type selection struct {
	result    models.ExtractionResult
	fields    int
	satisfied bool
}

// selectTemplate returns the first template whose required fields are all
// present, else the one that extracted the most fields at low confidence.
func (e *Engine) selectTemplate(bankID string, templates []template, clean string) selection {
	best := selection{result: models.ExtractionResult{MatchedBank: bankID, Confidence: models.ConfidenceLow}}
	for _, tpl := range templates {
		r, n := e.apply(tpl, clean)
		r.MatchedBank, r.MatchedTemplate = bankID, tpl.name
		if tpl.satisfied(r) {
			r.Confidence = tpl.confidence(r)
			return selection{result: r, fields: n, satisfied: true}
		}
		if n > best.fields {
			r.Confidence = models.ConfidenceLow
			best = selection{result: r, fields: n}
		}
	}
	return best
}

func (e *Engine) parseAnyBank(set *templateSet, clean, text string) models.ExtractionResult {
	best := selection{result: models.ExtractionResult{Confidence: models.ConfidenceLow}}
	for _, id := range set.banks {
		sel := e.selectTemplate(id, set.byBank[id], clean)
		if sel.satisfied {
			best = sel
			break
		}
		if sel.fields > best.fields {
			best = sel
		}
	}
	best.result.SMSText = text
	return best.result
}

func (e *Engine) apply(tpl template, clean string) (models.ExtractionResult, int) {
	var r models.ExtractionResult
	for _, f := range tpl.fields {
		if v := f.extract(clean); v != "" {
			r.SetField(f.field, v)
		}
	}
	if e.cardFallback && r.CardSuffix == "" {
		if s, ok := card.ExtractSuffix(clean); ok {
			r.CardSuffix = s
		}
	}
	n := 0
	for _, name := range knownFields {
		if r.Field(name) != "" {
			n++
		}
	}
	return r, n
}

// ParseBatch parses texts with matching bank hints. A nil bankIDs means every
// bank is identified; otherwise both slices must have the same length.
func (e *Engine) ParseBatch(texts, bankIDs []string) ([]models.ExtractionResult, error) {
	if bankIDs != nil && len(bankIDs) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts, %d bank ids", ErrBatchLength, len(texts), len(bankIDs))
	}
	type job struct{ text, bank string }
	jobs := make([]job, len(texts))
	for i, t := range texts {
		jobs[i].text = t
		if bankIDs != nil {
			jobs[i].bank = bankIDs[i]
		}
	}
	return batch.Map(jobs, e.workers, func(j job) models.ExtractionResult {
		r, _ := e.Parse(j.text, j.bank, "")
		return r
	}, func(i int, j job, p any) models.ExtractionResult {
		e.log.Error("parse failed", "index", i, "panic", p)
		return models.ExtractionResult{Confidence: models.ConfidenceLow, SMSText: j.text}
	}), nil
}

// Banks lists the banks that have templates, in file order.
func (e *Engine) Banks() []string {
	return append([]string(nil), e.set.Load().banks...)
}

// Templates lists the template names of a bank in precedence order.
func (e *Engine) Templates(bankID string) ([]string, error) {
	templates, ok := e.set.Load().byBank[bankID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBank, bankID)
	}
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, t.name)
	}
	return out, nil
}

// Reload replaces the template set. An empty path reloads the current file.
// On error the previous set stays active.
func (e *Engine) Reload(path string) error {
	if path == "" {
		path = e.set.Load().path
	}
	set, err := e.compile(path)
	if err != nil {
		return err
	}
	e.set.Store(set)
	e.log.Info("templates reloaded", "path", path, "banks", len(set.banks))
	return nil
}

// expandEscapes rewrites \uXXXX escapes into RE2's \x{XXXX}. A u preceded
// by an even run of backslashes is a literal backslash followed by u and is
// left alone.
func expandEscapes(src string) string {
	if !strings.Contains(src, `\u`) {
		return src
	}
	var b strings.Builder
	b.Grow(len(src) + 8)
	for i := 0; i < len(src); {
		if src[i] != '\\' {
			b.WriteByte(src[i])
			i++
			continue
		}
		j := i
		for j < len(src) && src[j] == '\\' {
			j++
		}
		run := j - i
		if run%2 == 1 && j+5 <= len(src) && src[j] == 'u' && isHex4(src[j+1:j+5]) {
			b.WriteString(src[i : j-1])
			b.WriteString(`\x{` + src[j+1:j+5] + `}`)
			i = j + 5
			continue
		}
		b.WriteString(src[i:j])
		i = j
	}
	return b.String()
}

func isHex4(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return len(s) == 4
}

func (e *Engine) compile(path string) (*templateSet, error) {
	doc, err := catalog.LoadTemplates(path)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	set := &templateSet{path: path, banks: doc.Banks, byBank: make(map[string][]template, len(doc.Banks))}
	for _, id := range doc.Banks {
		for _, t := range doc.Templates[id] {
			tpl := template{name: t.Name, required: t.Required, declared: map[string]bool{}}
			for _, fp := range t.Fields {
				if !isKnownField(fp.Field) {
					e.log.Warn("ignoring unknown template field", "bank", id, "template", t.Name, "field", fp.Field)
					continue
				}
				src := expandEscapes(fp.Pattern)
				re, err := regexp.Compile("(?i)" + src)
				if err != nil {
					return nil, fmt.Errorf("load templates: %s: %w: template %q of %q field %q: %v",
						path, catalog.ErrMalformed, t.Name, id, fp.Field, err)
				}
				tpl.fields = append(tpl.fields, fieldRule{field: fp.Field, re: re, group: re.SubexpIndex(fp.Field)})
				tpl.declared[fp.Field] = true
			}
			set.byBank[id] = append(set.byBank[id], tpl)
		}
	}
	return set, nil
}
