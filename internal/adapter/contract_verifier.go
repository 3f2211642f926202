// Package adapter provides blockchain RPC adapters: the EIP-1271 contract
// signature verifier and the spend execution client.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pagent-credits/backend/internal/circuitbreaker"
)

// isValidSignatureSelector is the 4-byte selector of
// isValidSignature(bytes32,bytes). EIP-1271 contracts return the same four
// bytes as the magic value when the signature is accepted.
var isValidSignatureSelector = []byte{0x16, 0x26, 0xba, 0x7e}

// EIP1271Verifier verifies smart-contract-wallet signatures through the
// wallet's on-chain isValidSignature entry point. Calls carry a bounded
// timeout and run behind a circuit breaker so an unreachable RPC endpoint
// degrades to a verification failure instead of hanging sign-ins.
type EIP1271Verifier struct {
	client      *ethclient.Client
	breaker     *circuitbreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewEIP1271Verifier dials the RPC endpoint and returns a verifier
func NewEIP1271Verifier(rpcURL string, callTimeout time.Duration) (*EIP1271Verifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}

	return &EIP1271Verifier{
		client:      client,
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig("eip1271-verifier")),
		callTimeout: callTimeout,
	}, nil
}

// VerifySignature asks the account contract whether signature is valid for
// hash. An account without contract code cannot validate anything and yields
// false without an error; RPC failures propagate as errors so the caller can
// report the verifier as unavailable.
func (v *EIP1271Verifier) VerifySignature(ctx context.Context, account common.Address, hash common.Hash, signature []byte) (bool, error) {
	var valid bool

	err := v.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, v.callTimeout)
		defer cancel()

		code, err := v.client.CodeAt(callCtx, account, nil)
		if err != nil {
			return fmt.Errorf("failed to fetch account code: %w", err)
		}
		if len(code) == 0 {
			valid = false
			return nil
		}

		data := packIsValidSignature(hash, signature)
		result, err := v.client.CallContract(callCtx, ethereum.CallMsg{
			To:   &account,
			Data: data,
		}, nil)
		if err != nil {
			return fmt.Errorf("isValidSignature call failed: %w", err)
		}

		valid = len(result) >= 4 && bytes.Equal(result[:4], isValidSignatureSelector)
		return nil
	})
	if err != nil {
		return false, err
	}

	return valid, nil
}

// Close releases the underlying RPC connection
func (v *EIP1271Verifier) Close() {
	v.client.Close()
}

// packIsValidSignature ABI-encodes isValidSignature(bytes32 hash, bytes sig).
// Layout: selector, hash word, offset word (0x40), length word, padded bytes.
func packIsValidSignature(hash common.Hash, signature []byte) []byte {
	padded := len(signature)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}

	data := make([]byte, 0, 4+32*3+padded)
	data = append(data, isValidSignatureSelector...)
	data = append(data, hash.Bytes()...)

	var offset [32]byte
	offset[31] = 0x40
	data = append(data, offset[:]...)

	var length [32]byte
	big := uint64(len(signature))
	for i := 31; i >= 24; i-- {
		length[i] = byte(big)
		big >>= 8
	}
	data = append(data, length[:]...)

	data = append(data, signature...)
	data = append(data, make([]byte, padded-len(signature))...)

	return data
}
