package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pagent-credits/backend/internal/models"
)

// UsageRepository handles credit usage persistence
type UsageRepository struct {
	db *PostgresDB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *PostgresDB) *UsageRepository {
	return &UsageRepository{db: db}
}

const usageColumns = `id, user_id, permission_id, period_start, period_end, total_limit, used_amount, transaction_count`

func scanUsage(row pgx.Row) (*models.CreditUsage, error) {
	var u models.CreditUsage
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.PermissionID,
		&u.PeriodStart,
		&u.PeriodEnd,
		&u.TotalLimit,
		&u.UsedAmount,
		&u.TransactionCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan usage: %w", err)
	}
	return &u, nil
}

// GetByPermission retrieves the usage row paired with a permission
func (r *UsageRepository) GetByPermission(ctx context.Context, permissionID string) (*models.CreditUsage, error) {
	query := fmt.Sprintf(`SELECT %s FROM credit_usage WHERE permission_id = $1`, usageColumns)
	return scanUsage(r.db.Pool().QueryRow(ctx, query, permissionID))
}

// AddUsage increments the used amount and transaction count for a
// permission's usage row. The increment happens in the database so
// concurrent settlements do not lose updates.
func (r *UsageRepository) AddUsage(ctx context.Context, permissionID string, amount float64) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE credit_usage
		SET used_amount = used_amount + $2, transaction_count = transaction_count + 1
		WHERE permission_id = $1
	`, permissionID, amount)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
