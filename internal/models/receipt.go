package models

import "time"

// ReceiptStatus is the settlement status of a receipt
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptCompleted ReceiptStatus = "completed"
	ReceiptFailed    ReceiptStatus = "failed"
)

// Receipt records one card authorization and its settlement outcome.
// AuthID is globally unique and acts as the idempotency key: a redelivered
// webhook for the same AuthID is a no-op.
type Receipt struct {
	ID            string                 `json:"id" db:"id"`
	UserID        string                 `json:"user_id" db:"user_id"`
	AuthID        string                 `json:"auth_id" db:"auth_id"`
	Amount        float64                `json:"amount" db:"amount"`
	Merchant      string                 `json:"merchant" db:"merchant"`
	TxHash        string                 `json:"tx_hash,omitempty" db:"tx_hash"`
	Status        ReceiptStatus          `json:"status" db:"status"`
	FailureReason string                 `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time              `json:"updatedAt" db:"updated_at"`
}

// ReceiptFilter narrows receipt listings
type ReceiptFilter struct {
	UserID   string
	Status   ReceiptStatus
	Merchant string
	FromDate time.Time
	ToDate   time.Time
	Limit    int
	Offset   int
}

// ReceiptSummary aggregates receipts matching a filter
type ReceiptSummary struct {
	TotalCount     int64   `json:"total_count"`
	CompletedCount int64   `json:"completed_count"`
	FailedCount    int64   `json:"failed_count"`
	PendingCount   int64   `json:"pending_count"`
	TotalAmount    float64 `json:"total_amount"`
	SettledAmount  float64 `json:"settled_amount"`
}
