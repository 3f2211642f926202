package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pagent-credits/backend/internal/models"
)

// ReceiptRepository handles receipt persistence
type ReceiptRepository struct {
	db *PostgresDB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *PostgresDB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

const receiptColumns = `id, user_id, auth_id, amount, merchant, COALESCE(tx_hash, ''), status, COALESCE(failure_reason, ''), metadata, created_at, updated_at`

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var rec models.Receipt
	var metadataJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.AuthID,
		&rec.Amount,
		&rec.Merchant,
		&rec.TxHash,
		&rec.Status,
		&rec.FailureReason,
		&metadataJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rec, nil
}

// Create inserts a receipt. The unique constraint on auth_id is the
// idempotency barrier: a concurrent duplicate insert returns ErrDuplicate.
func (r *ReceiptRepository) Create(ctx context.Context, receipt *models.Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	now := time.Now()
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	var metadataJSON []byte
	var err error
	if receipt.Metadata != nil {
		metadataJSON, err = json.Marshal(receipt.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO receipts (id, user_id, auth_id, amount, merchant, tx_hash, status, failure_reason, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		receipt.ID,
		receipt.UserID,
		receipt.AuthID,
		receipt.Amount,
		receipt.Merchant,
		receipt.TxHash,
		receipt.Status,
		receipt.FailureReason,
		metadataJSON,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	return nil
}

// GetByAuthID retrieves a receipt by its external authorization id
func (r *ReceiptRepository) GetByAuthID(ctx context.Context, authID string) (*models.Receipt, error) {
	query := fmt.Sprintf(`SELECT %s FROM receipts WHERE auth_id = $1`, receiptColumns)
	return scanReceipt(r.db.Pool().QueryRow(ctx, query, authID))
}

// MarkCompleted transitions a pending receipt to completed with its
// transaction hash and settlement metadata.
func (r *ReceiptRepository) MarkCompleted(ctx context.Context, id, txHash string, metadata map[string]interface{}) error {
	var metadataJSON []byte
	var err error
	if metadata != nil {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	result, err := r.db.Pool().Exec(ctx, `
		UPDATE receipts
		SET status = $2, tx_hash = $3, metadata = COALESCE($4, metadata), updated_at = $5
		WHERE id = $1 AND status = $6
	`, id, models.ReceiptCompleted, txHash, metadataJSON, time.Now(), models.ReceiptPending)
	if err != nil {
		return fmt.Errorf("failed to complete receipt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed transitions a pending receipt to failed with a reason
func (r *ReceiptRepository) MarkFailed(ctx context.Context, id, reason string) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE receipts
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.ReceiptFailed, reason, time.Now(), models.ReceiptPending)
	if err != nil {
		return fmt.Errorf("failed to fail receipt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List retrieves receipts matching the filter plus the total match count
// for pagination.
func (r *ReceiptRepository) List(ctx context.Context, filter *models.ReceiptFilter) ([]*models.Receipt, int64, error) {
	where, args := buildReceiptFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM receipts ` + where
	if err := r.db.Pool().QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM receipts %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, receiptColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating receipts: %w", err)
	}

	return receipts, total, nil
}

// Summary aggregates receipts matching the filter
func (r *ReceiptRepository) Summary(ctx context.Context, filter *models.ReceiptFilter) (*models.ReceiptSummary, error) {
	where, args := buildReceiptFilter(filter)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0)
		FROM receipts ` + where

	var summary models.ReceiptSummary
	err := r.db.Pool().QueryRow(ctx, query, args...).Scan(
		&summary.TotalCount,
		&summary.CompletedCount,
		&summary.FailedCount,
		&summary.PendingCount,
		&summary.TotalAmount,
		&summary.SettledAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize receipts: %w", err)
	}

	return &summary, nil
}

// buildReceiptFilter assembles the WHERE clause shared by List and Summary
func buildReceiptFilter(filter *models.ReceiptFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Merchant != "" {
		add("merchant ILIKE $%d", "%"+filter.Merchant+"%")
	}
	if !filter.FromDate.IsZero() {
		add("created_at >= $%d", filter.FromDate)
	}
	if !filter.ToDate.IsZero() {
		add("created_at <= $%d", filter.ToDate)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
