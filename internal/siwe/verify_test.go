package siwe

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testVerifier(contractVerifier ContractVerifier) *Verifier {
	return NewVerifier(&VerifierConfig{
		SupportedChainIDs: []int{1, 8453},
		ClockSkew:         5 * time.Minute,
	}, contractVerifier)
}

func newSignedMessage(t *testing.T, mutate func(*Message)) (*Message, string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	msg := &Message{
		Domain:   "pagent.xyz",
		Address:  address.Hex(),
		URI:      "https://pagent.xyz",
		Version:  "1",
		ChainID:  "8453",
		Nonce:    "mK9dPq2w",
		IssuedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if mutate != nil {
		mutate(msg)
	}

	hash := personalSignHash([]byte(msg.String()))
	sig, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	// Wallets emit v as 27/28.
	sig[64] += 27

	return msg, hexutil.Encode(sig), key
}

func TestVerify_EOASuccess(t *testing.T) {
	msg, sig, _ := newSignedMessage(t, nil)

	result := testVerifier(nil).Verify(context.Background(), msg, sig)
	require.True(t, result.Success, "reason=%s detail=%s", result.Reason, result.Detail)
	require.Equal(t, common.HexToAddress(msg.Address), result.Address)
}

// The hash is computed over the exact parsed bytes, so a signature produced
// over a wallet-variant layout still verifies after parsing.
func TestVerify_EOASuccess_ParsedVariantLayout(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	text := "pagent.xyz wants you to sign in with your Ethereum account:\n" +
		"\n" +
		address.Hex() + "\n" +
		"\n" +
		"URI: https://pagent.xyz\n" +
		"Version: 1\n" +
		"Chain ID: 1\n" +
		"Nonce: abc123\n" +
		"Issued At: " + time.Now().UTC().Format(time.RFC3339)

	sig, err := crypto.Sign(personalSignHash([]byte(text)).Bytes(), key)
	require.NoError(t, err)
	sig[64] += 27

	msg, err := ParseMessage(text)
	require.NoError(t, err)

	result := testVerifier(nil).Verify(context.Background(), msg, hexutil.Encode(sig))
	require.True(t, result.Success, "reason=%s detail=%s", result.Reason, result.Detail)
}

func TestVerify_SignatureMismatch(t *testing.T) {
	msg, _, _ := newSignedMessage(t, nil)

	// Sign the same message with a different key.
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(personalSignHash([]byte(msg.String())).Bytes(), otherKey)
	require.NoError(t, err)
	sig[64] += 27

	result := testVerifier(nil).Verify(context.Background(), msg, hexutil.Encode(sig))
	require.False(t, result.Success)
	require.Equal(t, ReasonSignatureMismatch, result.Reason)
}

func TestVerify_Expired(t *testing.T) {
	msg, sig, _ := newSignedMessage(t, func(m *Message) {
		m.IssuedAt = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		m.ExpirationTime = time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	})

	result := testVerifier(nil).Verify(context.Background(), msg, sig)
	require.False(t, result.Success)
	require.Equal(t, ReasonExpired, result.Reason)
}

func TestVerify_NotYetValid(t *testing.T) {
	msg, sig, _ := newSignedMessage(t, func(m *Message) {
		m.IssuedAt = time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	})

	result := testVerifier(nil).Verify(context.Background(), msg, sig)
	require.False(t, result.Success)
	require.Equal(t, ReasonNotYetValid, result.Reason)
}

func TestVerify_IssuedAtWithinClockSkew(t *testing.T) {
	msg, sig, _ := newSignedMessage(t, func(m *Message) {
		m.IssuedAt = time.Now().UTC().Add(time.Minute).Format(time.RFC3339)
	})

	result := testVerifier(nil).Verify(context.Background(), msg, sig)
	require.True(t, result.Success, "small clock drift must be tolerated")
}

func TestVerify_UnsupportedChain(t *testing.T) {
	msg, sig, _ := newSignedMessage(t, func(m *Message) {
		m.ChainID = "999999"
	})

	result := testVerifier(nil).Verify(context.Background(), msg, sig)
	require.False(t, result.Success)
	require.Equal(t, ReasonUnsupportedChain, result.Reason)
}

func TestVerify_MalformedSignature(t *testing.T) {
	msg, _, _ := newSignedMessage(t, nil)

	tests := []struct {
		name string
		sig  string
		want Reason
	}{
		{name: "not hex", sig: "0xzz", want: ReasonMalformedSignature},
		{name: "too short", sig: "0x0102", want: ReasonMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := testVerifier(nil).Verify(context.Background(), msg, tt.sig)
			require.False(t, result.Success)
			require.Equal(t, tt.want, result.Reason)
		})
	}
}

// fakeContractVerifier is a test double for the EIP-1271 adapter
type fakeContractVerifier struct {
	valid bool
	err   error
	calls int
}

func (f *fakeContractVerifier) VerifySignature(ctx context.Context, account common.Address, hash common.Hash, signature []byte) (bool, error) {
	f.calls++
	return f.valid, f.err
}

func TestVerify_ContractWalletFallback(t *testing.T) {
	// A long signature blob cannot be recovered as an EOA signature; the
	// contract verifier gets the final word.
	msg, _, _ := newSignedMessage(t, nil)
	longSig := hexutil.Encode(make([]byte, 320))

	t.Run("accepted", func(t *testing.T) {
		fake := &fakeContractVerifier{valid: true}
		result := testVerifier(fake).Verify(context.Background(), msg, longSig)
		require.True(t, result.Success)
		require.Equal(t, 1, fake.calls)
	})

	t.Run("rejected", func(t *testing.T) {
		fake := &fakeContractVerifier{valid: false}
		result := testVerifier(fake).Verify(context.Background(), msg, longSig)
		require.False(t, result.Success)
		require.Equal(t, ReasonSignatureMismatch, result.Reason)
	})

	t.Run("unavailable", func(t *testing.T) {
		fake := &fakeContractVerifier{err: errors.New("rpc timeout")}
		result := testVerifier(fake).Verify(context.Background(), msg, longSig)
		require.False(t, result.Success)
		require.Equal(t, ReasonVerifierUnavailable, result.Reason)
	})
}

func TestVerify_TimestampChecksPrecedeSignature(t *testing.T) {
	// An expired message fails as expired even with a valid signature.
	msg, sig, _ := newSignedMessage(t, func(m *Message) {
		m.IssuedAt = time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
		m.ExpirationTime = time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	})

	fake := &fakeContractVerifier{valid: true}
	result := testVerifier(fake).Verify(context.Background(), msg, sig)
	require.False(t, result.Success)
	require.Equal(t, ReasonExpired, result.Reason)
	require.Zero(t, fake.calls, "verifier must not be consulted for an expired message")
}
