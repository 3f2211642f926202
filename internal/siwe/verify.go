package siwe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Reason distinguishes why verification failed
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMalformedMessage    Reason = "MALFORMED_MESSAGE"
	ReasonMalformedSignature  Reason = "MALFORMED_SIGNATURE"
	ReasonExpired             Reason = "EXPIRED"
	ReasonNotYetValid         Reason = "NOT_YET_VALID"
	ReasonUnsupportedChain    Reason = "UNSUPPORTED_CHAIN"
	ReasonSignatureMismatch   Reason = "SIGNATURE_MISMATCH"
	ReasonVerifierUnavailable Reason = "VERIFIER_UNAVAILABLE"
)

// Result is the outcome of a verification attempt
type Result struct {
	Success bool
	Address common.Address
	Reason  Reason
	Detail  string
}

func failure(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// ContractVerifier checks a signature through a smart-contract wallet's
// on-chain validation entry point (EIP-1271). Implementations make a network
// call; errors mean the verdict is unknown, not that the signature is bad.
type ContractVerifier interface {
	VerifySignature(ctx context.Context, account common.Address, hash common.Hash, signature []byte) (bool, error)
}

// VerifierConfig configures message verification
type VerifierConfig struct {
	// SupportedChainIDs is the allow-list of chain ids accepted in messages
	SupportedChainIDs []int
	// ClockSkew is the tolerance applied to Issued At checks
	ClockSkew time.Duration
}

// Verifier validates sign-in messages and their signatures. The EOA recovery
// path is tried first; when it does not produce the claimed address the
// contract verifier, if configured, gets the final word.
type Verifier struct {
	supportedChains  map[int]bool
	clockSkew        time.Duration
	contractVerifier ContractVerifier
	now              func() time.Time
}

// NewVerifier creates a verifier. contractVerifier may be nil, in which case
// smart-contract wallet signatures are rejected as mismatches.
func NewVerifier(cfg *VerifierConfig, contractVerifier ContractVerifier) *Verifier {
	supported := make(map[int]bool, len(cfg.SupportedChainIDs))
	for _, id := range cfg.SupportedChainIDs {
		supported[id] = true
	}
	return &Verifier{
		supportedChains:  supported,
		clockSkew:        cfg.ClockSkew,
		contractVerifier: contractVerifier,
		now:              time.Now,
	}
}

// Verify checks the message's temporal and chain constraints, then
// establishes that signature was produced by the address embedded in the
// message. The returned result never panics on external failure; an
// unreachable contract verifier yields ReasonVerifierUnavailable.
func (v *Verifier) Verify(ctx context.Context, msg *Message, signature string) Result {
	now := v.now()

	issuedAt, err := msg.IssuedAtTime()
	if err != nil {
		return failure(ReasonMalformedMessage, "invalid Issued At timestamp")
	}
	if issuedAt.After(now.Add(v.clockSkew)) {
		return failure(ReasonNotYetValid, "message issued in the future")
	}

	if notBefore, err := msg.NotBeforeTime(); err != nil {
		return failure(ReasonMalformedMessage, "invalid Not Before timestamp")
	} else if !notBefore.IsZero() && now.Before(notBefore) {
		return failure(ReasonNotYetValid, "message not yet valid")
	}

	if expiration, err := msg.ExpirationTimeTime(); err != nil {
		return failure(ReasonMalformedMessage, "invalid Expiration Time timestamp")
	} else if !expiration.IsZero() && !now.Before(expiration) {
		return failure(ReasonExpired, "message has expired")
	}

	chainID, err := msg.ChainIDInt()
	if err != nil {
		return failure(ReasonMalformedMessage, "invalid chain id")
	}
	if !v.supportedChains[chainID] {
		return failure(ReasonUnsupportedChain, fmt.Sprintf("chain id %d is not supported", chainID))
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return failure(ReasonMalformedSignature, "signature is not valid hex")
	}

	claimed := common.HexToAddress(msg.Address)
	hash := personalSignHash([]byte(msg.Raw()))

	// EOA path: 65-byte r||s||v signatures can be recovered directly.
	if len(sig) == crypto.SignatureLength {
		if recovered, err := recoverAddress(hash, sig); err == nil {
			if strings.EqualFold(recovered.Hex(), claimed.Hex()) {
				return Result{Success: true, Address: claimed}
			}
		}
	}

	// Smart-contract wallet fallback: longer signature blobs, or recovery
	// that did not match, go through the on-chain validator.
	if v.contractVerifier == nil {
		if len(sig) != crypto.SignatureLength {
			return failure(ReasonMalformedSignature, "expected a 65-byte signature")
		}
		return failure(ReasonSignatureMismatch, "recovered address does not match message address")
	}

	valid, err := v.contractVerifier.VerifySignature(ctx, claimed, hash, sig)
	if err != nil {
		return failure(ReasonVerifierUnavailable, "contract signature verification unavailable")
	}
	if !valid {
		return failure(ReasonSignatureMismatch, "contract wallet rejected the signature")
	}

	return Result{Success: true, Address: claimed}
}

// personalSignHash computes the EIP-191 personal-sign hash wallets sign over
func personalSignHash(data []byte) common.Hash {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256Hash([]byte(prefixed))
}

// recoverAddress recovers the signer address from a 65-byte signature.
// Wallets emit v as 27/28; go-ethereum expects 0/1.
func recoverAddress(hash common.Hash, sig []byte) (common.Address, error) {
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
