package service

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/pagent-credits/backend/internal/adapter"
	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/storage"
)

// Webhook event statuses reported by the card provider
const (
	EventAuthorized = "authorized"
	EventDeclined   = "declined"
)

// ReceiptStore is the slice of receipt persistence settlement needs
type ReceiptStore interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetByAuthID(ctx context.Context, authID string) (*models.Receipt, error)
	MarkCompleted(ctx context.Context, id, txHash string, metadata map[string]interface{}) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// CardUserResolver maps card identifiers to users
type CardUserResolver interface {
	GetByCardID(ctx context.Context, cardID string) (*models.User, error)
}

// WebhookEvent is one card authorization event from the provider
type WebhookEvent struct {
	AuthID    string                 `json:"auth_id"`
	CardID    string                 `json:"card_id"`
	Amount    float64                `json:"amount"`
	Merchant  string                 `json:"merchant"`
	Timestamp int64                  `json:"timestamp,omitempty"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the structural fields of an event
func (e *WebhookEvent) Validate() error {
	switch {
	case e.AuthID == "":
		return errors.NewInvalidInput("auth_id is required")
	case e.CardID == "":
		return errors.NewInvalidInput("card_id is required")
	case e.Amount <= 0:
		return errors.NewInvalidInput("amount must be positive")
	case e.Status != EventAuthorized && e.Status != EventDeclined:
		return errors.NewInvalidInput("status must be authorized or declined")
	}
	return nil
}

// SettlementOutcome is the terminal result of processing one event
type SettlementOutcome struct {
	Receipt   *models.Receipt `json:"receipt"`
	Duplicate bool            `json:"duplicate"`
}

// SettlementService turns card authorization webhooks into settled receipts.
// Each authorization id is processed at most once: the unique receipt row is
// the idempotency barrier, and a failed on-chain spend is never retried here
// because the provider redelivers the event.
type SettlementService struct {
	users       CardUserResolver
	permissions PermissionStore
	usage       UsageStore
	receipts    ReceiptStore
	executor    adapter.SpendExecutor
	logger      *logging.Logger
	now         func() time.Time
}

// NewSettlementService creates a settlement service
func NewSettlementService(users CardUserResolver, permissions PermissionStore, usage UsageStore, receipts ReceiptStore, executor adapter.SpendExecutor) *SettlementService {
	return &SettlementService{
		users:       users,
		permissions: permissions,
		usage:       usage,
		receipts:    receipts,
		executor:    executor,
		logger:      logging.WithField("service", "settlement"),
		now:         time.Now,
	}
}

// ProcessEvent runs one event through the settlement state machine. Any
// outcome with a receipt is terminal and should be acknowledged to the
// provider; only lookup and store failures propagate as errors.
func (s *SettlementService) ProcessEvent(ctx context.Context, event *WebhookEvent) (*SettlementOutcome, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{
		"auth_id": event.AuthID,
		"card_id": event.CardID,
	})

	user, err := s.users.GetByCardID(ctx, event.CardID)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound(errors.CodeUserNotFound, "user for card")
		}
		return nil, errors.NewInternal("failed to resolve card user", err)
	}

	if existing, err := s.receipts.GetByAuthID(ctx, event.AuthID); err == nil {
		log.Info("duplicate authorization event ignored")
		return &SettlementOutcome{Receipt: existing, Duplicate: true}, nil
	} else if !goerrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NewInternal("failed to look up receipt", err)
	}

	receipt := &models.Receipt{
		UserID:   user.ID,
		AuthID:   event.AuthID,
		Amount:   event.Amount,
		Merchant: event.Merchant,
		Status:   models.ReceiptPending,
		Metadata: receiptMetadata(event),
	}
	if err := s.receipts.Create(ctx, receipt); err != nil {
		if goerrors.Is(err, storage.ErrDuplicate) {
			// Lost the insert race against a concurrent delivery of the
			// same event. The winner settles it.
			existing, lookupErr := s.receipts.GetByAuthID(ctx, event.AuthID)
			if lookupErr != nil {
				return nil, errors.NewInternal("failed to resolve racing receipt", lookupErr)
			}
			log.Info("duplicate authorization event ignored")
			return &SettlementOutcome{Receipt: existing, Duplicate: true}, nil
		}
		return nil, errors.NewInternal("failed to create receipt", err)
	}

	if event.Status == EventDeclined {
		return s.fail(ctx, receipt, errors.NewAuthorizationDeclined(), log)
	}

	permission, err := s.permissions.GetActive(ctx, user.ID, s.now())
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, receipt, errors.NewNoActivePermission(), log)
		}
		return nil, errors.NewInternal("failed to look up active permission", err)
	}

	usage, err := s.usage.GetByPermission(ctx, permission.ID)
	if err != nil {
		return nil, errors.NewInternal("failed to look up credit usage", err)
	}
	if event.Amount > usage.Remaining() {
		return s.fail(ctx, receipt, errors.NewInsufficientCredit(event.Amount, usage.Remaining()), log)
	}

	result, err := s.executor.Spend(ctx, &adapter.SpendRequest{
		Permission: permission,
		Amount:     event.Amount,
		AuthID:     event.AuthID,
		Merchant:   event.Merchant,
	})
	if err != nil {
		log.WithError(err).Error("on-chain charge failed")
		return s.fail(ctx, receipt, errors.NewChargeFailed(err), log)
	}

	settled := map[string]interface{}{
		"gas_used":     result.GasUsed,
		"block_number": result.BlockNumber,
	}
	if err := s.receipts.MarkCompleted(ctx, receipt.ID, result.TxHash, settled); err != nil {
		return nil, errors.NewInternal("failed to complete receipt", err)
	}
	if err := s.usage.AddUsage(ctx, permission.ID, event.Amount); err != nil {
		return nil, errors.NewInternal("failed to record credit usage", err)
	}

	receipt.Status = models.ReceiptCompleted
	receipt.TxHash = result.TxHash
	log.WithFields(map[string]interface{}{
		"tx_hash": result.TxHash,
		"amount":  event.Amount,
	}).Info("authorization settled")

	return &SettlementOutcome{Receipt: receipt}, nil
}

// fail marks the receipt failed with the settlement error's stable message.
// The outcome is still terminal and acknowledged; the failure reason is
// queryable through the receipt.
func (s *SettlementService) fail(ctx context.Context, receipt *models.Receipt, failure *errors.Error, log *logging.Logger) (*SettlementOutcome, error) {
	if err := s.receipts.MarkFailed(ctx, receipt.ID, failure.Message); err != nil {
		return nil, errors.NewInternal("failed to record receipt failure", err)
	}
	receipt.Status = models.ReceiptFailed
	receipt.FailureReason = failure.Message
	log.WithFields(map[string]interface{}{
		"code":   failure.Code,
		"reason": failure.Message,
	}).Warn("authorization not settled")
	return &SettlementOutcome{Receipt: receipt}, nil
}

// receiptMetadata copies the event metadata, stamping the provider's
// authorization time when it was supplied.
func receiptMetadata(event *WebhookEvent) map[string]interface{} {
	if event.Timestamp == 0 {
		return event.Metadata
	}
	metadata := make(map[string]interface{}, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	metadata["authorized_at"] = event.Timestamp
	return metadata
}
