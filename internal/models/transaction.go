// Package models holds the value types passed between pipeline stages.
package models

import "strings"

// Confidence grades how much of a message was understood.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Urgency flags records that deserve attention.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyNormal Urgency = "normal"
)

// TransactionState says what kind of message a record came from.
type TransactionState string

const (
	StateMonetary TransactionState = "MONETARY"
	StatePromo    TransactionState = "PROMO"
	StateOTP      TransactionState = "OTP"
	StateDeclined TransactionState = "DECLINED"
	StateUnknown  TransactionState = "UNKNOWN"
)

// ParseState maps s onto a known state. Empty input stays empty and anything
// unrecognised becomes StateUnknown.
func ParseState(s string) TransactionState {
	switch st := TransactionState(strings.ToUpper(strings.TrimSpace(s))); st {
	case "":
		return ""
	case StateMonetary, StatePromo, StateOTP, StateDeclined, StateUnknown:
		return st
	default:
		return StateUnknown
	}
}

const (
	UnknownBank        = "unknown_bank"
	DefaultCategory    = "Uncategorized"
	DefaultSubcategory = "General"
	TagHasWarnings     = "has-warnings"
)

// Field names shared by templates, extraction results and the validator.
const (
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldDate            = "date"
	FieldPayee           = "payee"
	FieldTransactionType = "transaction_type"
	FieldCardSuffix      = "card_suffix"
	FieldState           = "transaction_state"
	FieldTextRepaired    = "text_repaired"
)

// ExtractionResult is the raw output of the template parser. Empty strings
// mean the field was not found.
type ExtractionResult struct {
	Amount          string     `json:"amount,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	Date            string     `json:"date,omitempty"`
	Payee           string     `json:"payee,omitempty"`
	TransactionType string     `json:"transaction_type,omitempty"`
	CardSuffix      string     `json:"card_suffix,omitempty"`
	MatchedBank     string     `json:"matched_bank,omitempty"`
	MatchedTemplate string     `json:"matched_template,omitempty"`
	Confidence      Confidence `json:"confidence"`
	SMSText         string     `json:"sms_text"`

	State        TransactionState `json:"transaction_state,omitempty"`
	TextRepaired bool             `json:"text_repaired"`
}

// Field returns the extracted value of a named field.
func (r ExtractionResult) Field(name string) string {
	switch name {
	case FieldAmount:
		return r.Amount
	case FieldCurrency:
		return r.Currency
	case FieldDate:
		return r.Date
	case FieldPayee:
		return r.Payee
	case FieldTransactionType:
		return r.TransactionType
	case FieldCardSuffix:
		return r.CardSuffix
	}
	return ""
}

// SetField stores a value for a known field and reports whether name is known.
func (r *ExtractionResult) SetField(name, value string) bool {
	switch name {
	case FieldAmount:
		r.Amount = value
	case FieldCurrency:
		r.Currency = value
	case FieldDate:
		r.Date = value
	case FieldPayee:
		r.Payee = value
	case FieldTransactionType:
		r.TransactionType = value
	case FieldCardSuffix:
		r.CardSuffix = value
	default:
		return false
	}
	return true
}

// Fields renders the result as the loosely typed map the validator accepts.
// Absent fields are omitted.
func (r ExtractionResult) Fields() map[string]any {
	out := map[string]any{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put(FieldAmount, r.Amount)
	put(FieldCurrency, r.Currency)
	put(FieldDate, r.Date)
	put(FieldPayee, r.Payee)
	put(FieldTransactionType, r.TransactionType)
	put(FieldCardSuffix, r.CardSuffix)
	put("matched_bank", r.MatchedBank)
	put(FieldState, string(r.State))
	if r.TextRepaired {
		out[FieldTextRepaired] = true
	}
	return out
}

// ParsedTransaction is an extraction that went through field validation.
type ParsedTransaction struct {
	Amount       string           `json:"amount,omitempty"`
	Currency     string           `json:"currency,omitempty"`
	Date         string           `json:"date,omitempty"`
	Payee        string           `json:"payee,omitempty"`
	TxnType      string           `json:"txn_type,omitempty"`
	CardSuffix   string           `json:"card_suffix,omitempty"`
	BankID       string           `json:"bank_id,omitempty"`
	State        TransactionState `json:"transaction_state,omitempty"`
	TextRepaired bool             `json:"text_repaired"`
	Confidence   Confidence       `json:"confidence"`
	Warnings     []string         `json:"warnings"`
}

// TransactionRecord is the canonical, storage-ready transaction.
type TransactionRecord struct {
	ID                 string           `json:"id"`
	Date               *string          `json:"date"`
	Amount             *float64         `json:"amount"`
	Currency           *string          `json:"currency"`
	Payee              *string          `json:"payee"`
	NormalizedMerchant *string          `json:"normalized_merchant"`
	Category           string           `json:"category"`
	Subcategory        string           `json:"subcategory"`
	Tags               []string         `json:"tags"`
	AccountID          *string          `json:"account_id"`
	AccountType        *string          `json:"account_type"`
	InterestRate       *float64         `json:"interest_rate"`
	Urgency            Urgency          `json:"urgency"`
	Confidence         Confidence       `json:"confidence"`
	State              TransactionState `json:"transaction_state"`
	TextRepaired       bool             `json:"text_repaired"`
	ExtractedDateRaw   *string          `json:"extracted_date_raw"`
}

// WithCategory returns a copy of r carrying the given category pair.
func (r TransactionRecord) WithCategory(category, subcategory string) TransactionRecord {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.Category = category
	out.Subcategory = subcategory
	return out
}

// HasTag reports whether the record carries tag.
func (r TransactionRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
