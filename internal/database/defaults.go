package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/models"
)

// DefaultCategories is the category tree seeded into new databases, written
// as "Parent > Child" paths.
var DefaultCategories = []string{
	"Food > Groceries",
	"Food > Restaurants",
	"Transport > Fuel",
	"Transport > Rides",
	"Shopping > Retail",
	"Shopping > Online",
	"Utilities > Telecom",
	"Utilities > Electricity",
	"Health > Pharmacy",
	"Cash > ATM",
	"Transfers > Bank Transfer",
	"Income > Salary",
	models.DefaultCategory + " > " + models.DefaultSubcategory,
}

// SeedDefaults ensures baseline categories exist for new databases.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB) error {
	catRepo := repository.NewCategoryRepo(db)
	existing, err := catRepo.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		repo := repository.NewCategoryRepo(tx)
		for idx, path := range DefaultCategories {
			var parentID *string
			for _, raw := range strings.Split(path, ">") {
				name := strings.TrimSpace(raw)
				id := repository.CategoryID(name)
				cat := repository.Category{ID: id, Name: name, ParentID: parentID, SortOrder: idx}
				if err := repo.Upsert(ctx, cat); err != nil {
					return err
				}
				parentID = &id
			}
		}
		return nil
	})
}
