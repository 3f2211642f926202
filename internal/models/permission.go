package models

import "time"

// PermissionStatus is the lifecycle status of a spend permission
type PermissionStatus string

const (
	PermissionActive  PermissionStatus = "active"
	PermissionRevoked PermissionStatus = "revoked"
	PermissionExpired PermissionStatus = "expired"
)

// SpendPermission is an on-chain-authorized, time- and amount-bounded
// delegation letting the configured spender move funds on the user's behalf.
// At most one permission per user is active at a time; replacement revokes
// prior actives in the same transaction.
type SpendPermission struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	TokenAddress   string           `json:"token_address" db:"token_address"`
	CapAmount      float64          `json:"cap_amount" db:"cap_amount"`
	PeriodSeconds  int64            `json:"period_seconds" db:"period_seconds"`
	StartTimestamp time.Time        `json:"start_timestamp" db:"start_timestamp"`
	EndTimestamp   time.Time        `json:"end_timestamp" db:"end_timestamp"`
	SpenderAddress string           `json:"spender_address" db:"spender_address"`
	Signature      string           `json:"signature" db:"signature"`
	Status         PermissionStatus `json:"status" db:"status"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

// CreditUsage tracks consumption against a spend permission's cap for the
// permission's period. Incremented only by the webhook settlement path.
type CreditUsage struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	PermissionID     string    `json:"permission_id" db:"permission_id"`
	PeriodStart      time.Time `json:"period_start" db:"period_start"`
	PeriodEnd        time.Time `json:"period_end" db:"period_end"`
	TotalLimit       float64   `json:"total_limit" db:"total_limit"`
	UsedAmount       float64   `json:"used_amount" db:"used_amount"`
	TransactionCount int       `json:"transaction_count" db:"transaction_count"`
}

// Remaining returns the unconsumed portion of the usage limit
func (u *CreditUsage) Remaining() float64 {
	remaining := u.TotalLimit - u.UsedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}
