// Package catalog loads the bank-pattern, template and account documents
// that drive message parsing. Documents may be YAML, JSON or TOML, chosen by
// file extension, and mapping order is preserved everywhere because it
// decides match precedence.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ErrMalformed marks a document with bad syntax or an unexpected shape.
var ErrMalformed = errors.New("malformed configuration document")

// DefaultRequiredFields applies when a template omits required_fields.
var DefaultRequiredFields = []string{"amount"}

// BankEntry is one bank and its identification patterns, in file order.
type BankEntry struct {
	ID       string
	Patterns []string
}

// BankPatterns is the ordered bank pattern table.
type BankPatterns struct {
	Banks []BankEntry
}

// FieldPattern binds a field name to its extraction pattern.
type FieldPattern struct {
	Field   string
	Pattern string
}

// Template is one named extraction template of a bank.
type Template struct {
	Bank     string
	Name     string
	Fields   []FieldPattern
	Required []string
}

// TemplateSet holds templates grouped by bank in file order.
type TemplateSet struct {
	Banks     []string
	Templates map[string][]Template
}

// AccountEntry is one row of the accounts document keyed by card suffix.
type AccountEntry struct {
	Suffix       string
	AccountID    string
	AccountType  string
	InterestRate *float64
	CreditLimit  *float64
	BillingCycle *int
	Label        string
}

func malformed(path, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", path, ErrMalformed, fmt.Sprintf(format, args...))
}

func load(path string) (*node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	n, err := decode(data, formatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	return n, nil
}

// LoadBankPatterns reads a {bank: [pattern, ...]} document.
func LoadBankPatterns(path string) (BankPatterns, error) {
	root, err := load(path)
	if err != nil {
		return BankPatterns{}, err
	}
	if root.kind == kindNull {
		return BankPatterns{}, malformed(path, "document is empty")
	}
	if root.kind != kindMap {
		return BankPatterns{}, malformed(path, "expected mapping of bank to patterns, got %s", root.describe())
	}
	out := BankPatterns{Banks: make([]BankEntry, 0, len(root.keys))}
	seen := map[string]bool{}
	for i, id := range root.keys {
		id = strings.TrimSpace(id)
		if id == "" {
			return BankPatterns{}, malformed(path, "empty bank id")
		}
		if seen[id] {
			return BankPatterns{}, malformed(path, "duplicate bank id %q", id)
		}
		seen[id] = true
		v := root.values[i]
		if v.kind != kindList {
			return BankPatterns{}, malformed(path, "patterns for %q must be a list, got %s", id, v.describe())
		}
		entry := BankEntry{ID: id}
		for j, item := range v.items {
			s, ok := item.str()
			if !ok {
				return BankPatterns{}, malformed(path, "pattern %d of %q must be a string", j, id)
			}
			entry.Patterns = append(entry.Patterns, s)
		}
		out.Banks = append(out.Banks, entry)
	}
	return out, nil
}

// LoadTemplates reads a {bank: [{name, patterns: {field: regex}, required_fields}]} document.
func LoadTemplates(path string) (TemplateSet, error) {
	root, err := load(path)
	if err != nil {
		return TemplateSet{}, err
	}
	if root.kind == kindNull {
		return TemplateSet{}, malformed(path, "document is empty")
	}
	if root.kind != kindMap {
		return TemplateSet{}, malformed(path, "expected mapping of bank to templates, got %s", root.describe())
	}
	out := TemplateSet{Templates: make(map[string][]Template, len(root.keys))}
	for i, bank := range root.keys {
		bank = strings.TrimSpace(bank)
		if bank == "" {
			return TemplateSet{}, malformed(path, "empty bank id")
		}
		if _, dup := out.Templates[bank]; dup {
			return TemplateSet{}, malformed(path, "duplicate bank id %q", bank)
		}
		list := root.values[i]
		if list.kind != kindList {
			return TemplateSet{}, malformed(path, "templates for %q must be a list, got %s", bank, list.describe())
		}
		templates := make([]Template, 0, len(list.items))
		for j, item := range list.items {
			tpl, err := templateFrom(path, bank, j, item)
			if err != nil {
				return TemplateSet{}, err
			}
			templates = append(templates, tpl)
		}
		out.Banks = append(out.Banks, bank)
		out.Templates[bank] = templates
	}
	return out, nil
}

func templateFrom(path, bank string, idx int, n *node) (Template, error) {
	if n.kind != kindMap {
		return Template{}, malformed(path, "template %d of %q must be a mapping", idx, bank)
	}
	tpl := Template{Bank: bank, Name: fmt.Sprintf("template_%d", idx)}
	if v, ok := n.get("name"); ok {
		name, ok := v.str()
		if !ok || strings.TrimSpace(name) == "" {
			return Template{}, malformed(path, "template %d of %q has an invalid name", idx, bank)
		}
		tpl.Name = strings.TrimSpace(name)
	}
	patterns, ok := n.get("patterns")
	if !ok {
		return Template{}, malformed(path, "template %q of %q has no patterns", tpl.Name, bank)
	}
	if patterns.kind != kindMap {
		return Template{}, malformed(path, "patterns of template %q must be a mapping", tpl.Name)
	}
	for i, field := range patterns.keys {
		re, ok := patterns.values[i].str()
		if !ok {
			return Template{}, malformed(path, "pattern for field %q of template %q must be a string", field, tpl.Name)
		}
		tpl.Fields = append(tpl.Fields, FieldPattern{Field: field, Pattern: re})
	}
	req, ok := n.get("required_fields")
	if !ok || req.kind == kindNull {
		tpl.Required = append([]string(nil), DefaultRequiredFields...)
		return tpl, nil
	}
	if req.kind != kindList {
		return Template{}, malformed(path, "required_fields of template %q must be a list", tpl.Name)
	}
	tpl.Required = []string{}
	for _, item := range req.items {
		s, ok := item.str()
		if !ok {
			return Template{}, malformed(path, "required_fields of template %q must hold strings", tpl.Name)
		}
		tpl.Required = append(tpl.Required, s)
	}
	return tpl, nil
}

// LoadAccounts reads a {suffix: {account_id, account_type, ...}} document.
// A missing file yields an empty table; callers can tell with the second return.
func LoadAccounts(path string) (map[string]AccountEntry, bool, error) {
	root, err := load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]AccountEntry{}, false, nil
		}
		return nil, false, err
	}
	out := map[string]AccountEntry{}
	if root.kind == kindNull {
		return out, true, nil
	}
	if root.kind != kindMap {
		return nil, false, malformed(path, "expected mapping of card suffix to account, got %s", root.describe())
	}
	for i, suffix := range root.keys {
		suffix = strings.TrimSpace(suffix)
		v := root.values[i]
		if v.kind != kindMap {
			return nil, false, malformed(path, "account %q must be a mapping", suffix)
		}
		entry := AccountEntry{Suffix: suffix}
		id, ok := optString(v, "account_id")
		if !ok || id == "" {
			return nil, false, malformed(path, "account %q is missing account_id", suffix)
		}
		typ, ok := optString(v, "account_type")
		if !ok || typ == "" {
			return nil, false, malformed(path, "account %q is missing account_type", suffix)
		}
		entry.AccountID, entry.AccountType = id, typ
		entry.Label, _ = optString(v, "label")
		if entry.InterestRate, err = optFloat(path, suffix, v, "interest_rate"); err != nil {
			return nil, false, err
		}
		if entry.CreditLimit, err = optFloat(path, suffix, v, "credit_limit"); err != nil {
			return nil, false, err
		}
		cycle, err := optFloat(path, suffix, v, "billing_cycle")
		if err != nil {
			return nil, false, err
		}
		if cycle != nil {
			c := int(*cycle)
			entry.BillingCycle = &c
		}
		out[suffix] = entry
	}
	return out, true, nil
}

func optString(n *node, key string) (string, bool) {
	v, ok := n.get(key)
	if !ok || v.kind == kindNull {
		return "", false
	}
	s, ok := v.str()
	return strings.TrimSpace(s), ok
}

func optFloat(path, suffix string, n *node, key string) (*float64, error) {
	v, ok := n.get(key)
	if !ok || v.kind == kindNull {
		return nil, nil
	}
	f, ok := v.float()
	if !ok {
		return nil, malformed(path, "%s of account %q must be a number", key, suffix)
	}
	return &f, nil
}
