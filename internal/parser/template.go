package parser

import (
	"regexp"
	"strings"

	"github.com/jask/smsledger/internal/models"
)

var knownFields = []string{
	models.FieldAmount,
	models.FieldCurrency,
	models.FieldDate,
	models.FieldPayee,
	models.FieldTransactionType,
	models.FieldCardSuffix,
}

func isKnownField(name string) bool {
	for _, f := range knownFields {
		if f == name {
			return true
		}
	}
	return false
}

type templateSet struct {
	path   string
	banks  []string
	byBank map[string][]template
}

type template struct {
	name     string
	fields   []fieldRule
	required []string
	declared map[string]bool
}

type fieldRule struct {
	field string
	re    *regexp.Regexp
	group int // index of the capture group named after field, or -1
}

// extract prefers the group named after the field, then the first non-empty
// group, then the whole match.
func (f fieldRule) extract(text string) string {
	m := f.re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if f.group > 0 && m[f.group] != "" {
		return strings.TrimSpace(m[f.group])
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return strings.TrimSpace(m[0])
}

func (t template) satisfied(r models.ExtractionResult) bool {
	for _, f := range t.required {
		if r.Field(f) == "" {
			return false
		}
	}
	return true
}

// confidence grades a result: all required plus an optional field is high,
// required only is medium, anything less is low. A template that declares no
// optional fields is high once its required fields are present.
func (t template) confidence(r models.ExtractionResult) models.Confidence {
	if !t.satisfied(r) {
		return models.ConfidenceLow
	}
	req := make(map[string]bool, len(t.required))
	for _, f := range t.required {
		req[f] = true
	}
	optional := 0
	for field := range t.declared {
		if req[field] {
			continue
		}
		optional++
		if r.Field(field) != "" {
			return models.ConfidenceHigh
		}
	}
	if optional == 0 {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}
