package repository

import (
	"context"
	"database/sql"
	"errors"
)

// MerchantRuleRepo stores categorization rules.
type MerchantRuleRepo struct{ db DBTX }

func NewMerchantRuleRepo(db DBTX) *MerchantRuleRepo { return &MerchantRuleRepo{db: db} }

func (r *MerchantRuleRepo) Add(ctx context.Context, mr MerchantRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchant_rules(id, pattern, pattern_type, category_id, confidence, source, created_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, mr.ID, mr.Pattern, mr.PatternType, mr.CategoryID, mr.Confidence, mr.Source)
	return err
}

// Match returns the rule for merchant: an exact match (ignoring ASCII case)
// first, then the most confident contains rule. It returns nil when no rule applies.
func (r *MerchantRuleRepo) Match(ctx context.Context, merchant string) (*MerchantRule, error) {
	mr, err := scanRule(r.db.QueryRowContext(ctx, `
	SELECT id, pattern, pattern_type, category_id, confidence, source, created_at
	FROM merchant_rules WHERE pattern_type = 'exact' AND pattern = ? COLLATE NOCASE
	ORDER BY confidence DESC LIMIT 1
	`, merchant))
	if err == nil {
		return &mr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	mr, err = scanRule(r.db.QueryRowContext(ctx, `
	SELECT id, pattern, pattern_type, category_id, confidence, source, created_at
	FROM merchant_rules WHERE pattern_type = 'contains' AND ? LIKE '%' || pattern || '%'
	ORDER BY confidence DESC, length(pattern) DESC LIMIT 1
	`, merchant))
	if err == nil {
		return &mr, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return nil, err
}

func scanRule(row scanner) (MerchantRule, error) {
	var mr MerchantRule
	err := row.Scan(&mr.ID, &mr.Pattern, &mr.PatternType, &mr.CategoryID, &mr.Confidence, &mr.Source, &mr.CreatedAt)
	return mr, err
}
