// Package models provides data models for the Pagent Credits backend.
package models

import (
	"time"
)

// User represents a wallet-keyed user account. SmartAccount and
// EOAWalletAddress are stored lowercase; either one identifies the user.
type User struct {
	ID               string                 `json:"id" db:"id"`
	SmartAccount     string                 `json:"smart_account" db:"smart_account"`
	EOAWalletAddress string                 `json:"eoa_wallet_address,omitempty" db:"eoa_wallet_address"`
	CardID           string                 `json:"card_id,omitempty" db:"card_id"`
	Active           bool                   `json:"active" db:"active"`
	Metadata         map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time              `json:"updatedAt" db:"updated_at"`
}

// MergeMetadata shallow-merges new metadata into the user's existing
// metadata. New keys win; unrelated existing keys are preserved.
func (u *User) MergeMetadata(metadata map[string]interface{}) {
	if len(metadata) == 0 {
		return
	}
	if u.Metadata == nil {
		u.Metadata = make(map[string]interface{}, len(metadata))
	}
	for k, v := range metadata {
		u.Metadata[k] = v
	}
}
