package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pagent-credits/backend/internal/models"
)

// PermissionRepository handles spend permission persistence
type PermissionRepository struct {
	db *PostgresDB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *PostgresDB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

const permissionColumns = `id, user_id, token_address, cap_amount, period_seconds, start_timestamp, end_timestamp, spender_address, signature, status, created_at, updated_at`

func scanPermission(row pgx.Row) (*models.SpendPermission, error) {
	var p models.SpendPermission
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.TokenAddress,
		&p.CapAmount,
		&p.PeriodSeconds,
		&p.StartTimestamp,
		&p.EndTimestamp,
		&p.SpenderAddress,
		&p.Signature,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan permission: %w", err)
	}
	return &p, nil
}

// CreateWithUsage atomically revokes the user's currently active
// permissions, inserts the new permission, and inserts its paired usage row.
// A crash cannot leave the user between permissions: either the old one
// still stands or the new one is fully in place.
func (r *PermissionRepository) CreateWithUsage(ctx context.Context, permission *models.SpendPermission, usage *models.CreditUsage) error {
	if permission.ID == "" {
		permission.ID = uuid.New().String()
	}
	now := time.Now()
	permission.CreatedAt = now
	permission.UpdatedAt = now
	permission.Status = models.PermissionActive

	if usage.ID == "" {
		usage.ID = uuid.New().String()
	}
	usage.PermissionID = permission.ID
	usage.UserID = permission.UserID

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	_, err = tx.Exec(ctx, `
		UPDATE spend_permissions
		SET status = $2, updated_at = $3
		WHERE user_id = $1 AND status = $4
	`, permission.UserID, models.PermissionRevoked, now, models.PermissionActive)
	if err != nil {
		return fmt.Errorf("failed to revoke prior permissions: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO spend_permissions (id, user_id, token_address, cap_amount, period_seconds, start_timestamp, end_timestamp, spender_address, signature, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		permission.ID,
		permission.UserID,
		permission.TokenAddress,
		permission.CapAmount,
		permission.PeriodSeconds,
		permission.StartTimestamp,
		permission.EndTimestamp,
		permission.SpenderAddress,
		permission.Signature,
		permission.Status,
		permission.CreatedAt,
		permission.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert permission: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_usage (id, user_id, permission_id, period_start, period_end, total_limit, used_amount, transaction_count)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0)
	`,
		usage.ID,
		usage.UserID,
		usage.PermissionID,
		usage.PeriodStart,
		usage.PeriodEnd,
		usage.TotalLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit permission replacement: %w", err)
	}

	return nil
}

// GetByID retrieves a permission by ID
func (r *PermissionRepository) GetByID(ctx context.Context, id string) (*models.SpendPermission, error) {
	query := fmt.Sprintf(`SELECT %s FROM spend_permissions WHERE id = $1`, permissionColumns)
	return scanPermission(r.db.Pool().QueryRow(ctx, query, id))
}

// GetActive retrieves the user's active permission valid at the given time
func (r *PermissionRepository) GetActive(ctx context.Context, userID string, at time.Time) (*models.SpendPermission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM spend_permissions
		WHERE user_id = $1 AND status = $2 AND start_timestamp <= $3 AND end_timestamp > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, permissionColumns)
	return scanPermission(r.db.Pool().QueryRow(ctx, query, userID, models.PermissionActive, at))
}

// ListByUser retrieves all permissions for a user, newest first
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]*models.SpendPermission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM spend_permissions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, permissionColumns)

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*models.SpendPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permissions: %w", err)
	}

	return permissions, nil
}

// Revoke marks a permission revoked. The userID guard prevents revoking
// another user's permission through a guessed id.
func (r *PermissionRepository) Revoke(ctx context.Context, permissionID, userID string) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE spend_permissions
		SET status = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = $5
	`, permissionID, userID, models.PermissionRevoked, time.Now(), models.PermissionActive)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
