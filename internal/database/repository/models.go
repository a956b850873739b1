package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Account represents an account row.
type Account struct {
	ID           string
	Label        string
	AccountType  string
	CardSuffix   string
	InterestRate *float64
	CreditLimit  *float64
	BillingCycle *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	ParentID  *string
	Name      string
	Icon      *string
	SortOrder int
}

// Tag represents a tag row.
type Tag struct {
	ID   string
	Name string
}

// Transaction represents a transaction row.
type Transaction struct {
	ID                 string
	Date               *string // YYYY-MM-DD
	Amount             *float64
	Currency           *string
	Payee              *string
	NormalizedMerchant *string
	Category           string
	Subcategory        string
	AccountID          *string
	AccountType        *string
	InterestRate       *float64
	Urgency            string
	Confidence         string
	State              string
	TextRepaired       bool
	ExtractedDateRaw   *string
	SMSText            *string
	SourceHash         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Tags               []Tag
}

// MerchantRule maps a merchant pattern to a category.
type MerchantRule struct {
	ID          string
	Pattern     string
	PatternType string // exact or contains
	CategoryID  string
	Confidence  float64
	Source      string
	CreatedAt   time.Time
}

// CategoryID derives the stable id of a category name.
func CategoryID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+name)).String()
}

// TagID derives the stable id of a tag name.
func TagID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("tag:"+name)).String()
}
