package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pagent-credits/backend/internal/models"
)

// RecurringRepository handles recurring credit config persistence
type RecurringRepository struct {
	db *PostgresDB
}

// NewRecurringRepository creates a new recurring credit repository
func NewRecurringRepository(db *PostgresDB) *RecurringRepository {
	return &RecurringRepository{db: db}
}

const recurringColumns = `id, user_id, amount, period_seconds, next_assignment, status, COALESCE(description, ''), metadata, created_at, updated_at`

func scanRecurring(row pgx.Row) (*models.RecurringCredit, error) {
	var rc models.RecurringCredit
	var metadataJSON []byte

	err := row.Scan(
		&rc.ID,
		&rc.UserID,
		&rc.Amount,
		&rc.PeriodSeconds,
		&rc.NextAssignment,
		&rc.Status,
		&rc.Description,
		&metadataJSON,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan recurring credit: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &rc, nil
}

// Create inserts a recurring credit config
func (r *RecurringRepository) Create(ctx context.Context, credit *models.RecurringCredit) error {
	if credit.ID == "" {
		credit.ID = uuid.New().String()
	}
	now := time.Now()
	credit.CreatedAt = now
	credit.UpdatedAt = now
	if credit.Status == "" {
		credit.Status = models.RecurringActive
	}

	var metadataJSON []byte
	var err error
	if credit.Metadata != nil {
		metadataJSON, err = json.Marshal(credit.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = r.db.Pool().Exec(ctx, `
		INSERT INTO recurring_credits (id, user_id, amount, period_seconds, next_assignment, status, description, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
	`,
		credit.ID,
		credit.UserID,
		credit.Amount,
		credit.PeriodSeconds,
		credit.NextAssignment,
		credit.Status,
		credit.Description,
		metadataJSON,
		credit.CreatedAt,
		credit.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create recurring credit: %w", err)
	}

	return nil
}

// GetByID retrieves a recurring credit config by ID
func (r *RecurringRepository) GetByID(ctx context.Context, id string) (*models.RecurringCredit, error) {
	query := fmt.Sprintf(`SELECT %s FROM recurring_credits WHERE id = $1`, recurringColumns)
	return scanRecurring(r.db.Pool().QueryRow(ctx, query, id))
}

// ListDue retrieves active configs whose next assignment is at or before now
func (r *RecurringRepository) ListDue(ctx context.Context, now time.Time) ([]*models.RecurringCredit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recurring_credits
		WHERE status = $1 AND next_assignment <= $2
		ORDER BY next_assignment ASC
	`, recurringColumns)
	return r.queryRecurring(ctx, query, models.RecurringActive, now)
}

// ListUpcoming retrieves active configs ordered by next assignment time
func (r *RecurringRepository) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*models.RecurringCredit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recurring_credits
		WHERE status = $1 AND next_assignment > $2
		ORDER BY next_assignment ASC
		LIMIT $3
	`, recurringColumns)
	return r.queryRecurring(ctx, query, models.RecurringActive, now, limit)
}

// ListByUser retrieves all recurring configs for a user, newest first
func (r *RecurringRepository) ListByUser(ctx context.Context, userID string) ([]*models.RecurringCredit, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM recurring_credits
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, recurringColumns)
	return r.queryRecurring(ctx, query, userID)
}

// AdvanceNext moves a config's next assignment forward after a sweep
func (r *RecurringRepository) AdvanceNext(ctx context.Context, id string, next time.Time) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE recurring_credits
		SET next_assignment = $2, updated_at = $3
		WHERE id = $1
	`, id, next, time.Now())
	if err != nil {
		return fmt.Errorf("failed to advance recurring credit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus changes a config's lifecycle status
func (r *RecurringRepository) UpdateStatus(ctx context.Context, id string, status models.RecurringStatus) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE recurring_credits
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update recurring credit status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RecurringRepository) queryRecurring(ctx context.Context, query string, args ...interface{}) ([]*models.RecurringCredit, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring credits: %w", err)
	}
	defer rows.Close()

	var credits []*models.RecurringCredit
	for rows.Next() {
		rc, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring credits: %w", err)
	}

	return credits, nil
}
