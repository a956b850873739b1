package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/models"
)

// CategorizerService assigns categories from merchant rules.
type CategorizerService struct {
	Rules      *repository.MerchantRuleRepo
	Categories *repository.CategoryRepo
}

// Categorize returns rec with the category of the first matching merchant
// rule. Records that are already categorized or have no merchant come back
// unchanged. A leaf category yields its parent as category and itself as
// subcategory.
func (s *CategorizerService) Categorize(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	if rec.NormalizedMerchant == nil || rec.Category != models.DefaultCategory {
		return rec, nil
	}
	mr, err := s.Rules.Match(ctx, *rec.NormalizedMerchant)
	if err != nil || mr == nil {
		return rec, err
	}
	cat, err := s.Categories.Get(ctx, mr.CategoryID)
	if err != nil || cat == nil {
		return rec, err
	}
	if cat.ParentID == nil {
		return rec.WithCategory(cat.Name, models.DefaultSubcategory), nil
	}
	parent, err := s.Categories.Get(ctx, *cat.ParentID)
	if err != nil || parent == nil {
		return rec, err
	}
	return rec.WithCategory(parent.Name, cat.Name), nil
}

// AddRule stores a merchant rule pointing at an existing category, named by
// its leaf (or top-level) name.
func (s *CategorizerService) AddRule(ctx context.Context, pattern, patternType, category string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("add rule: empty pattern")
	}
	if patternType != "exact" && patternType != "contains" {
		return fmt.Errorf("add rule: unknown pattern type %q", patternType)
	}
	cat, err := s.Categories.Get(ctx, repository.CategoryID(category))
	if err != nil {
		return err
	}
	if cat == nil {
		return fmt.Errorf("add rule: unknown category %q", category)
	}
	return s.Rules.Add(ctx, repository.MerchantRule{
		ID:          uuid.NewString(),
		Pattern:     pattern,
		PatternType: patternType,
		CategoryID:  cat.ID,
		Confidence:  1,
		Source:      "user",
	})
}
