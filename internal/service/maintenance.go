package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/smsledger/internal/database"
)

// MaintenanceService houses destructive operations.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes stored transactions, tags and accounts. Categories and merchant
// rules are kept so the ledger can be re-ingested from scratch.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, t := range []string{"transaction_tags", "transactions", "tags", "accounts"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
