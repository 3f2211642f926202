package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pagent-credits/backend/internal/models"
)

// SpendRequest carries everything the on-chain spend call needs
type SpendRequest struct {
	Permission *models.SpendPermission
	Amount     float64
	AuthID     string
	Merchant   string
}

// SpendResult describes a confirmed on-chain spend
type SpendResult struct {
	TxHash      string `json:"tx_hash"`
	GasUsed     uint64 `json:"gas_used"`
	BlockNumber uint64 `json:"block_number"`
}

// SpendExecutor moves funds under a spend permission. Implementations are
// external collaborators: calls block on the network and must honor ctx.
// Settlement treats each call as at-most-once per authorization id and never
// retries automatically; the webhook sender redelivers instead.
type SpendExecutor interface {
	Spend(ctx context.Context, req *SpendRequest) (*SpendResult, error)
}

// SimulatedSpendExecutor fulfills spends without touching a chain. Used in
// development and staging where the settlement contract is not deployed.
type SimulatedSpendExecutor struct {
	// Latency adds an artificial delay to mimic block inclusion time
	Latency time.Duration
}

// Spend produces a deterministic pseudo transaction hash from the
// authorization id so redelivered events map to the same "transaction".
func (e *SimulatedSpendExecutor) Spend(ctx context.Context, req *SpendRequest) (*SpendResult, error) {
	if req.Permission == nil {
		return nil, fmt.Errorf("spend requires a resolved permission")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("spend amount must be positive, got %v", req.Amount)
	}

	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("simulated-spend:%s:%s", req.Permission.ID, req.AuthID)))
	return &SpendResult{
		TxHash:      hash.Hex(),
		GasUsed:     21000,
		BlockNumber: uint64(time.Now().Unix()),
	}, nil
}
