package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DuplicatePolicy decides what happens when a transaction with the same
// source hash is already stored.
type DuplicatePolicy string

const (
	PolicySkip   DuplicatePolicy = "skip"
	PolicyUpsert DuplicatePolicy = "upsert"
)

// ParsePolicy maps a configuration value onto a DuplicatePolicy.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySkip, PolicyUpsert:
		return p, nil
	case "":
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// InsertStatus reports what Insert did with a row.
type InsertStatus int

const (
	StatusInserted InsertStatus = iota
	StatusUpdated
	StatusSkipped
)

func (s InsertStatus) String() string {
	switch s {
	case StatusInserted:
		return "inserted"
	case StatusUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// InsertResult carries the id of the stored row. For updates and skips this
// is the id of the row that was already there.
type InsertResult struct {
	ID     string
	Status InsertStatus
}

// TransactionFilters defines list filters. Date bounds are inclusive ISO dates.
type TransactionFilters struct {
	AccountID  string
	Category   string
	Currency   string
	Confidence string
	State      string
	From       string
	To         string
	Search     string
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// SourceHash fingerprints the fields that identify a real-world transaction:
// date, amount, currency, payee and account. A row missing any of date,
// amount, payee or account is instead identified by its message text, or by
// its id when there is no text, so incomplete rows never collide with other
// messages.
func SourceHash(t Transaction) string {
	amount := ""
	if t.Amount != nil {
		amount = strconv.FormatFloat(*t.Amount, 'f', -1, 64)
	}
	parts := []string{deref(t.Date), amount, deref(t.Currency), strings.ToLower(deref(t.Payee)), deref(t.AccountID)}
	if t.Date == nil || t.Amount == nil || t.Payee == nil || t.AccountID == nil {
		if text := deref(t.SMSText); text != "" {
			parts = append(parts, "sms", text)
		} else {
			parts = append(parts, "id", t.ID)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Insert stores t under policy.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction, policy DuplicatePolicy) (InsertResult, error) {
	res, err := r.BulkInsert(ctx, []Transaction{t}, policy)
	if err != nil {
		return InsertResult{}, err
	}
	return res[0], nil
}

// BulkInsert stores all rows in one transaction. Either every row is applied
// or none is.
func (r *TransactionRepo) BulkInsert(ctx context.Context, txns []Transaction, policy DuplicatePolicy) ([]InsertResult, error) {
	if len(txns) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]InsertResult, 0, len(txns))
	for i, t := range txns {
		res, err := insertOne(ctx, tx, t, policy)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert transaction %d: %w", i, err)
		}
		out = append(out, res)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertOne(ctx context.Context, tx *sql.Tx, t Transaction, policy DuplicatePolicy) (InsertResult, error) {
	if t.SourceHash == "" {
		t.SourceHash = SourceHash(t)
	}
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT id FROM transactions WHERE source_hash = ?`, t.SourceHash).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return InsertResult{}, err
	case policy == PolicyUpsert:
		t.ID = existing
		if err := update(ctx, tx, t); err != nil {
			return InsertResult{}, err
		}
		return InsertResult{ID: existing, Status: StatusUpdated}, nil
	default:
		return InsertResult{ID: existing, Status: StatusSkipped}, nil
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, date, amount, currency, payee, normalized_merchant, category, subcategory,
	 account_id, account_type, interest_rate, urgency, confidence,
	 transaction_state, text_repaired, extracted_date_raw, sms_text, source_hash, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.Date, t.Amount, t.Currency, t.Payee, t.NormalizedMerchant, t.Category, t.Subcategory,
		t.AccountID, t.AccountType, t.InterestRate, t.Urgency, t.Confidence,
		state(t.State), t.TextRepaired, t.ExtractedDateRaw, t.SMSText, t.SourceHash)
	if err != nil {
		return InsertResult{}, err
	}
	if err := attachTags(ctx, tx, t.ID, t.Tags); err != nil {
		return InsertResult{}, err
	}
	return InsertResult{ID: t.ID, Status: StatusInserted}, nil
}

func update(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx, `
	UPDATE transactions SET
	 date=?, amount=?, currency=?, payee=?, normalized_merchant=?, category=?, subcategory=?,
	 account_id=?, account_type=?, interest_rate=?, urgency=?, confidence=?,
	 transaction_state=?, text_repaired=?, extracted_date_raw=?, sms_text=?, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`,
		t.Date, t.Amount, t.Currency, t.Payee, t.NormalizedMerchant, t.Category, t.Subcategory,
		t.AccountID, t.AccountType, t.InterestRate, t.Urgency, t.Confidence,
		state(t.State), t.TextRepaired, t.ExtractedDateRaw, t.SMSText, t.ID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_tags WHERE transaction_id = ?`, t.ID); err != nil {
		return err
	}
	return attachTags(ctx, tx, t.ID, t.Tags)
}

func state(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func attachTags(ctx context.Context, tx *sql.Tx, transactionID string, tags []Tag) error {
	tagRepo := NewTagRepo(tx)
	for _, tag := range tags {
		stored, err := tagRepo.Ensure(ctx, tag.Name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO transaction_tags(transaction_id, tag_id) VALUES(?, ?)`, transactionID, stored.ID); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, date, amount, currency, payee, normalized_merchant, category, subcategory,
 account_id, account_type, interest_rate, urgency, confidence,
 transaction_state, text_repaired, extracted_date_raw, sms_text, source_hash, created_at, updated_at`

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Currency != "" {
		where = append(where, "currency = ?")
		args = append(args, f.Currency)
	}
	if f.Confidence != "" {
		where = append(where, "confidence = ?")
		args = append(args, f.Confidence)
	}
	if f.State != "" {
		where = append(where, "transaction_state = ?")
		args = append(args, f.State)
	}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Search != "" {
		where = append(where, "(payee LIKE ? OR normalized_merchant LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		tags, err := r.fetchTags(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

// Get returns the transaction with id, or nil when there is none.
func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tags, err := r.fetchTags(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Tags = tags
	return &t, nil
}

// Count returns the number of stored transactions.
func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

func (r *TransactionRepo) fetchTags(ctx context.Context, transactionID string) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT t.id, t.name FROM tags t JOIN transaction_tags tt ON tt.tag_id = t.id WHERE tt.transaction_id = ? ORDER BY t.name`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// scanTransaction handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var date, currency, payee, merchant, account, accountType, rawDate, text sql.NullString
	var amount, rate sql.NullFloat64
	if err := row.Scan(&t.ID, &date, &amount, &currency, &payee, &merchant, &t.Category, &t.Subcategory,
		&account, &accountType, &rate, &t.Urgency, &t.Confidence,
		&t.State, &t.TextRepaired, &rawDate, &text, &t.SourceHash, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.Date = nullString(date)
	t.Currency = nullString(currency)
	t.Payee = nullString(payee)
	t.NormalizedMerchant = nullString(merchant)
	t.AccountID = nullString(account)
	t.AccountType = nullString(accountType)
	t.ExtractedDateRaw = nullString(rawDate)
	t.SMSText = nullString(text)
	if amount.Valid {
		t.Amount = &amount.Float64
	}
	if rate.Valid {
		t.InterestRate = &rate.Float64
	}
	return t, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
