package repository

import (
	"context"
	"database/sql"
	"errors"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, label, account_type, card_suffix, interest_rate, credit_limit, billing_cycle, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 label=excluded.label,
	 account_type=excluded.account_type,
	 card_suffix=excluded.card_suffix,
	 interest_rate=excluded.interest_rate,
	 credit_limit=excluded.credit_limit,
	 billing_cycle=excluded.billing_cycle,
	 updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.Label, a.AccountType, a.CardSuffix, a.InterestRate, a.CreditLimit, a.BillingCycle)
	return err
}

const accountColumns = `id, label, account_type, card_suffix, interest_rate, credit_limit, billing_cycle, created_at, updated_at`

func (r *AccountRepo) Get(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY label`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var rate, limit sql.NullFloat64
	var cycle sql.NullInt64
	if err := row.Scan(&a.ID, &a.Label, &a.AccountType, &a.CardSuffix, &rate, &limit, &cycle, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	if rate.Valid {
		a.InterestRate = &rate.Float64
	}
	if limit.Valid {
		a.CreditLimit = &limit.Float64
	}
	if cycle.Valid {
		c := int(cycle.Int64)
		a.BillingCycle = &c
	}
	return a, nil
}
