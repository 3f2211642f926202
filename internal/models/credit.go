package models

import "time"

// RecurringStatus is the lifecycle status of a recurring credit config
type RecurringStatus string

const (
	RecurringActive    RecurringStatus = "active"
	RecurringPaused    RecurringStatus = "paused"
	RecurringCancelled RecurringStatus = "cancelled"
)

// RecurringCredit is a configuration the sweeper consumes: every
// PeriodSeconds it mints a fresh spend permission of Amount for the user.
// NextAssignment is advanced from sweep time, so a delayed sweep extends
// the next interval rather than catching up to a fixed grid.
type RecurringCredit struct {
	ID             string                 `json:"id" db:"id"`
	UserID         string                 `json:"user_id" db:"user_id"`
	Amount         float64                `json:"amount" db:"amount"`
	PeriodSeconds  int64                  `json:"period_seconds" db:"period_seconds"`
	NextAssignment time.Time              `json:"next_assignment" db:"next_assignment"`
	Status         RecurringStatus        `json:"status" db:"status"`
	Description    string                 `json:"description,omitempty" db:"description"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time              `json:"updatedAt" db:"updated_at"`
}

// CreditType classifies a credit assignment
type CreditType string

const (
	CreditRecurring CreditType = "recurring"
	CreditTopup     CreditType = "topup"
	CreditOneTime   CreditType = "one-time"
)

// CreditAssignment is an append-only ledger record of a credit grant.
type CreditAssignment struct {
	ID           string                 `json:"id" db:"id"`
	UserID       string                 `json:"user_id" db:"user_id"`
	PermissionID string                 `json:"permission_id,omitempty" db:"permission_id"`
	Amount       float64                `json:"amount" db:"amount"`
	CreditType   CreditType             `json:"credit_type" db:"credit_type"`
	AssignedAt   time.Time              `json:"assigned_at" db:"assigned_at"`
	ExpiresAt    time.Time              `json:"expires_at" db:"expires_at"`
	Status       string                 `json:"status" db:"status"`
	Description  string                 `json:"description,omitempty" db:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time              `json:"createdAt" db:"created_at"`
}
