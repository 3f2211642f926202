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

// AssignmentRepository handles the append-only credit assignment ledger
type AssignmentRepository struct {
	db *PostgresDB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *PostgresDB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, user_id, COALESCE(permission_id, ''), amount, credit_type, assigned_at, expires_at, status, COALESCE(description, ''), metadata, created_at`

func scanAssignment(row pgx.Row) (*models.CreditAssignment, error) {
	var a models.CreditAssignment
	var metadataJSON []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.PermissionID,
		&a.Amount,
		&a.CreditType,
		&a.AssignedAt,
		&a.ExpiresAt,
		&a.Status,
		&a.Description,
		&metadataJSON,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &a, nil
}

// Create appends an assignment record to the ledger
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.CreditAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.New().String()
	}
	assignment.CreatedAt = time.Now()

	var metadataJSON []byte
	var err error
	if assignment.Metadata != nil {
		metadataJSON, err = json.Marshal(assignment.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = r.db.Pool().Exec(ctx, `
		INSERT INTO credit_assignments (id, user_id, permission_id, amount, credit_type, assigned_at, expires_at, status, description, metadata, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
	`,
		assignment.ID,
		assignment.UserID,
		assignment.PermissionID,
		assignment.Amount,
		assignment.CreditType,
		assignment.AssignedAt,
		assignment.ExpiresAt,
		assignment.Status,
		assignment.Description,
		metadataJSON,
		assignment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	return nil
}

// ListByUser retrieves a user's assignment history, newest first
func (r *AssignmentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.CreditAssignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM credit_assignments
		WHERE user_id = $1
		ORDER BY assigned_at DESC
		LIMIT $2
	`, assignmentColumns)

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.CreditAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}
