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

// UserRepository handles user data persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, smart_account, COALESCE(eoa_wallet_address, ''), COALESCE(card_id, ''), active, metadata, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var metadataJSON []byte

	err := row.Scan(
		&user.ID,
		&user.SmartAccount,
		&user.EOAWalletAddress,
		&user.CardID,
		&user.Active,
		&metadataJSON,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &user.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &user, nil
}

// Create creates a new user. Addresses are normalized to lowercase before
// insert; a concurrent insert of the same address returns ErrDuplicate so
// the caller can retry as an update.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.SmartAccount = strings.ToLower(user.SmartAccount)
	user.EOAWalletAddress = strings.ToLower(user.EOAWalletAddress)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	var metadataJSON []byte
	var err error
	if user.Metadata != nil {
		metadataJSON, err = json.Marshal(user.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO users (id, smart_account, eoa_wallet_address, card_id, active, metadata, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		user.ID,
		user.SmartAccount,
		user.EOAWalletAddress,
		user.CardID,
		user.Active,
		metadataJSON,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUser(r.db.Pool().QueryRow(ctx, query, id))
}

// GetByAddress retrieves a user whose smart account or EOA address matches,
// case-insensitively.
func (r *UserRepository) GetByAddress(ctx context.Context, address string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM users
		WHERE smart_account = $1 OR eoa_wallet_address = $1
	`, userColumns)
	return scanUser(r.db.Pool().QueryRow(ctx, query, strings.ToLower(address)))
}

// GetByCardID retrieves a user by their external card identifier
func (r *UserRepository) GetByCardID(ctx context.Context, cardID string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE card_id = $1`, userColumns)
	return scanUser(r.db.Pool().QueryRow(ctx, query, cardID))
}

// Update updates an existing user's mutable fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()
	user.EOAWalletAddress = strings.ToLower(user.EOAWalletAddress)

	var metadataJSON []byte
	var err error
	if user.Metadata != nil {
		metadataJSON, err = json.Marshal(user.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		UPDATE users
		SET eoa_wallet_address = NULLIF($2, ''), card_id = NULLIF($3, ''), active = $4, metadata = $5, updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.EOAWalletAddress,
		user.CardID,
		user.Active,
		metadataJSON,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
