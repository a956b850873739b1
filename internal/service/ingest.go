package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jask/smsledger/internal/bank"
	"github.com/jask/smsledger/internal/card"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/message"
	"github.com/jask/smsledger/internal/models"
	"github.com/jask/smsledger/internal/normalize"
	"github.com/jask/smsledger/internal/parser"
	"github.com/jask/smsledger/internal/validate"
)

// Message is one inbound SMS. BankHint, when set, skips identification.
type Message struct {
	Text     string
	BankHint string
}

// IngestService runs messages through the parsing pipeline and stores the
// resulting records. Identifier, Classifier and Categorizer are optional.
type IngestService struct {
	Identifier  *bank.Identifier
	Parser      *parser.Engine
	Validator   *validate.Validator
	Normalizer  *normalize.Normalizer
	Classifier  *card.Classifier
	Categorizer *CategorizerService

	Transactions *repository.TransactionRepo
	Accounts     *repository.AccountRepo
	Policy       repository.DuplicatePolicy
	Log          *slog.Logger
}

type IngestResult struct {
	Imported int
	Updated  int
	Skipped  int
	Records  []models.TransactionRecord
	Errors   []error
}

// Process runs text repair, identification, parsing, state classification,
// validation and normalization without touching storage. Output order
// matches msgs.
func (s *IngestService) Process(msgs []Message) ([]models.TransactionRecord, error) {
	_, records, err := s.run(msgs)
	return records, err
}

func (s *IngestService) run(msgs []Message) ([]models.ParsedTransaction, []models.TransactionRecord, error) {
	if len(msgs) == 0 {
		return nil, nil, nil
	}
	texts := make([]string, len(msgs))
	repaired := make([]bool, len(msgs))
	hints := make([]string, len(msgs))
	var unhinted []int
	for i, m := range msgs {
		texts[i], repaired[i] = message.Repair(m.Text)
		hints[i] = strings.TrimSpace(m.BankHint)
		if hints[i] == "" {
			unhinted = append(unhinted, i)
		}
	}
	if s.Identifier != nil && len(unhinted) > 0 {
		pending := make([]string, len(unhinted))
		for j, i := range unhinted {
			pending[j] = texts[i]
		}
		for j, match := range s.Identifier.IdentifyBatch(pending) {
			hints[unhinted[j]] = match.BankID
		}
	}

	extracted, err := s.Parser.ParseBatch(texts, hints)
	if err != nil {
		return nil, nil, fmt.Errorf("parse batch: %w", err)
	}
	fields := make([]map[string]any, len(extracted))
	for i := range extracted {
		extracted[i].TextRepaired = repaired[i]
		extracted[i].State = message.Classify(texts[i], extracted[i].Amount != "")
		fields[i] = extracted[i].Fields()
	}
	parsed := s.Validator.ValidateBatch(fields)
	return parsed, s.Normalizer.NormalizeBatch(parsed), nil
}

// Ingest processes msgs, categorizes the records, records account metadata
// and stores everything in one database transaction. Categorization and
// account errors are collected in the result; storage errors abort.
func (s *IngestService) Ingest(ctx context.Context, msgs []Message) (IngestResult, error) {
	res := IngestResult{}
	parsed, records, err := s.run(msgs)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		return res, nil
	}

	if s.Categorizer != nil {
		for i, rec := range records {
			categorized, err := s.Categorizer.Categorize(ctx, rec)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Errorf("message %d categorize: %w", i, err))
				continue
			}
			records[i] = categorized
		}
	}

	res.Errors = append(res.Errors, s.recordAccounts(ctx, parsed)...)

	rows := make([]repository.Transaction, len(records))
	for i, rec := range records {
		rows[i] = toRow(rec, msgs[i].Text)
	}
	policy := s.Policy
	if policy == "" {
		policy = repository.PolicySkip
	}
	stored, err := s.Transactions.BulkInsert(ctx, rows, policy)
	if err != nil {
		return res, fmt.Errorf("store transactions: %w", err)
	}
	for i, st := range stored {
		records[i].ID = st.ID
		switch st.Status {
		case repository.StatusInserted:
			res.Imported++
		case repository.StatusUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	res.Records = records
	s.logger().Info("ingest complete",
		"messages", len(msgs), "imported", res.Imported, "updated", res.Updated,
		"skipped", res.Skipped, "errors", len(res.Errors))
	return res, nil
}

// recordAccounts upserts the configured accounts referenced by parsed cards.
func (s *IngestService) recordAccounts(ctx context.Context, parsed []models.ParsedTransaction) []error {
	if s.Classifier == nil || s.Accounts == nil {
		return nil
	}
	var errs []error
	seen := map[string]bool{}
	for i, p := range parsed {
		if p.CardSuffix == "" || seen[p.CardSuffix] {
			continue
		}
		seen[p.CardSuffix] = true
		info := s.Classifier.Lookup(p.CardSuffix)
		if !info.IsKnown {
			continue
		}
		acct := repository.Account{
			ID:           info.AccountID,
			Label:        info.Label,
			AccountType:  string(info.AccountType),
			CardSuffix:   info.CardSuffix,
			InterestRate: info.InterestRate,
			CreditLimit:  info.CreditLimit,
			BillingCycle: info.BillingCycle,
		}
		if err := s.Accounts.Upsert(ctx, acct); err != nil {
			errs = append(errs, fmt.Errorf("message %d account %s: %w", i, info.AccountID, err))
		}
	}
	return errs
}

func (s *IngestService) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func toRow(rec models.TransactionRecord, text string) repository.Transaction {
	tags := make([]repository.Tag, 0, len(rec.Tags))
	for _, name := range rec.Tags {
		tags = append(tags, repository.Tag{ID: repository.TagID(name), Name: name})
	}
	t := repository.Transaction{
		ID:                 rec.ID,
		Date:               rec.Date,
		Amount:             rec.Amount,
		Currency:           rec.Currency,
		Payee:              rec.Payee,
		NormalizedMerchant: rec.NormalizedMerchant,
		Category:           rec.Category,
		Subcategory:        rec.Subcategory,
		AccountID:          rec.AccountID,
		AccountType:        rec.AccountType,
		InterestRate:       rec.InterestRate,
		Urgency:            string(rec.Urgency),
		Confidence:         string(rec.Confidence),
		State:              string(rec.State),
		TextRepaired:       rec.TextRepaired,
		ExtractedDateRaw:   rec.ExtractedDateRaw,
		Tags:               tags,
	}
	if text != "" {
		t.SMSText = &text
	}
	t.SourceHash = repository.SourceHash(t)
	return t
}

// FromRow rebuilds a record from a stored transaction.
func FromRow(t repository.Transaction) models.TransactionRecord {
	tags := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		tags = append(tags, tag.Name)
	}
	return models.TransactionRecord{
		ID:                 t.ID,
		Date:               t.Date,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Payee:              t.Payee,
		NormalizedMerchant: t.NormalizedMerchant,
		Category:           t.Category,
		Subcategory:        t.Subcategory,
		Tags:               tags,
		AccountID:          t.AccountID,
		AccountType:        t.AccountType,
		InterestRate:       t.InterestRate,
		Urgency:            models.Urgency(t.Urgency),
		Confidence:         models.Confidence(t.Confidence),
		State:              models.TransactionState(t.State),
		TextRepaired:       t.TextRepaired,
		ExtractedDateRaw:   t.ExtractedDateRaw,
	}
}
