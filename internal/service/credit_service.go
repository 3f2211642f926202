package service

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/storage"
)

// PermissionStore is the slice of permission persistence the credit flows need
type PermissionStore interface {
	CreateWithUsage(ctx context.Context, permission *models.SpendPermission, usage *models.CreditUsage) error
	GetActive(ctx context.Context, userID string, at time.Time) (*models.SpendPermission, error)
	ListByUser(ctx context.Context, userID string) ([]*models.SpendPermission, error)
	Revoke(ctx context.Context, permissionID, userID string) error
}

// UsageStore is the slice of usage persistence the credit flows need
type UsageStore interface {
	GetByPermission(ctx context.Context, permissionID string) (*models.CreditUsage, error)
	AddUsage(ctx context.Context, permissionID string, amount float64) error
}

// UserReader resolves users by id for credit queries
type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// CreatePermissionRequest carries a client-submitted spend permission grant
type CreatePermissionRequest struct {
	TokenAddress   string  `json:"token_address"`
	CapAmount      float64 `json:"cap_amount"`
	PeriodSeconds  int64   `json:"period_seconds"`
	StartTimestamp int64   `json:"start_timestamp"`
	EndTimestamp   int64   `json:"end_timestamp"`
	SpenderAddress string  `json:"spender_address"`
	Signature      string  `json:"signature"`
}

// CreditSummary is a user's current spending position
type CreditSummary struct {
	Permission *models.SpendPermission `json:"permission"`
	Usage      *models.CreditUsage     `json:"usage"`
	Remaining  float64                 `json:"remaining"`
}

// CreditService manages spend permissions and exposes credit balances
type CreditService struct {
	users       UserReader
	permissions PermissionStore
	usage       UsageStore
	logger      *logging.Logger
	now         func() time.Time
}

// NewCreditService creates a credit service
func NewCreditService(users UserReader, permissions PermissionStore, usage UsageStore) *CreditService {
	return &CreditService{
		users:       users,
		permissions: permissions,
		usage:       usage,
		logger:      logging.WithField("service", "credit"),
		now:         time.Now,
	}
}

// CreatePermission registers a new spend permission for the user, replacing
// any currently active one atomically.
func (s *CreditService) CreatePermission(ctx context.Context, userID string, req *CreatePermissionRequest) (*models.SpendPermission, error) {
	if err := validatePermissionRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound(errors.CodeUserNotFound, "user")
		}
		return nil, errors.NewInternal("failed to look up user", err)
	}

	start := time.Unix(req.StartTimestamp, 0).UTC()
	end := time.Unix(req.EndTimestamp, 0).UTC()

	permission := &models.SpendPermission{
		UserID:         userID,
		TokenAddress:   req.TokenAddress,
		CapAmount:      req.CapAmount,
		PeriodSeconds:  req.PeriodSeconds,
		StartTimestamp: start,
		EndTimestamp:   end,
		SpenderAddress: req.SpenderAddress,
		Signature:      req.Signature,
	}
	usage := &models.CreditUsage{
		PeriodStart: start,
		PeriodEnd:   end,
		TotalLimit:  req.CapAmount,
	}

	if err := s.permissions.CreateWithUsage(ctx, permission, usage); err != nil {
		return nil, errors.NewInternal("failed to create spend permission", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":       userID,
		"permission_id": permission.ID,
		"cap_amount":    permission.CapAmount,
	}).Info("spend permission created")

	return permission, nil
}

// RevokePermission marks one of the user's permissions as revoked
func (s *CreditService) RevokePermission(ctx context.Context, userID, permissionID string) error {
	if err := s.permissions.Revoke(ctx, permissionID, userID); err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFound(errors.CodeNoActivePermission, "active spend permission")
		}
		return errors.NewInternal("failed to revoke spend permission", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":       userID,
		"permission_id": permissionID,
	}).Info("spend permission revoked")

	return nil
}

// ListPermissions returns all of a user's permissions, newest first
func (s *CreditService) ListPermissions(ctx context.Context, userID string) ([]*models.SpendPermission, error) {
	permissions, err := s.permissions.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewInternal("failed to list spend permissions", err)
	}
	return permissions, nil
}

// GetSummary returns the user's active permission, its usage and the
// remaining spendable amount.
func (s *CreditService) GetSummary(ctx context.Context, userID string) (*CreditSummary, error) {
	permission, err := s.permissions.GetActive(ctx, userID, s.now())
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNoActivePermission()
		}
		return nil, errors.NewInternal("failed to look up active permission", err)
	}

	usage, err := s.usage.GetByPermission(ctx, permission.ID)
	if err != nil {
		return nil, errors.NewInternal("failed to look up credit usage", err)
	}

	return &CreditSummary{
		Permission: permission,
		Usage:      usage,
		Remaining:  usage.Remaining(),
	}, nil
}

func validatePermissionRequest(req *CreatePermissionRequest) error {
	switch {
	case req.TokenAddress == "":
		return errors.NewInvalidInput("token_address is required")
	case req.SpenderAddress == "":
		return errors.NewInvalidInput("spender_address is required")
	case req.Signature == "":
		return errors.NewInvalidInput("signature is required")
	case req.CapAmount <= 0:
		return errors.NewInvalidInput("cap_amount must be positive")
	case req.PeriodSeconds <= 0:
		return errors.NewInvalidInput("period_seconds must be positive")
	case req.EndTimestamp <= req.StartTimestamp:
		return errors.NewInvalidInput("end_timestamp must be after start_timestamp")
	}
	return nil
}
