package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/siwe"
	"github.com/pagent-credits/backend/internal/storage"
)

const (
	testWallet = "0x1234567890abcdef1234567890abcdef12345678"
	testEOA    = "0xfeedfacefeedfacefeedfacefeedfacefeedface"
)

func testSignInMessage(nonce string) string {
	return signInMessageFor(testWallet, nonce)
}

func signInMessageFor(address, nonce string) string {
	return strings.Join([]string{
		"example.com wants you to sign in with your Ethereum account:",
		address,
		"",
		"Sign in to Pagent",
		"",
		"URI: https://example.com",
		"Version: 1",
		"Chain ID: 8453",
		"Nonce: " + nonce,
		"Issued At: 2026-08-30T12:00:00Z",
	}, "\n")
}

type fakeVerifier struct {
	result siwe.Result
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, msg *siwe.Message, _ string) siwe.Result {
	f.calls++
	result := f.result
	if result.Success && result.Address == (common.Address{}) {
		result.Address = common.HexToAddress(msg.Address)
	}
	return result
}

type fakeNonces struct {
	used map[string]bool
	err  error
}

func (f *fakeNonces) Consume(_ context.Context, nonce string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.used == nil {
		f.used = make(map[string]bool)
	}
	if f.used[nonce] {
		return false, nil
	}
	f.used[nonce] = true
	return true, nil
}

type fakeUserStore struct {
	byAddress map[string]*models.User
	createErr error
	created   []*models.User
	updated   []*models.User
}

func (f *fakeUserStore) GetByAddress(_ context.Context, address string) (*models.User, error) {
	addr := strings.ToLower(address)
	if u, ok := f.byAddress[addr]; ok {
		return u, nil
	}
	for _, u := range f.byAddress {
		if u.EOAWalletAddress == addr {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeUserStore) Create(_ context.Context, user *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = fmt.Sprintf("user-%d", len(f.created)+1)
	f.created = append(f.created, user)
	if f.byAddress == nil {
		f.byAddress = make(map[string]*models.User)
	}
	f.byAddress[strings.ToLower(user.SmartAccount)] = user
	return nil
}

func (f *fakeUserStore) Update(_ context.Context, user *models.User) error {
	f.updated = append(f.updated, user)
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(walletAddress, userID, _ string) (string, error) {
	return "token-for-" + userID, nil
}

func okVerifier() *fakeVerifier {
	return &fakeVerifier{result: siwe.Result{Success: true}}
}

func TestAuthenticate_CreatesNewUser(t *testing.T) {
	users := &fakeUserStore{}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc123"),
		Signature: "0xsig",
		Metadata:  map[string]interface{}{"plan": "pro"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "token-for-user-1", resp.Token)
	require.Len(t, users.created, 1)
	assert.Equal(t, testWallet, strings.ToLower(users.created[0].SmartAccount))
	assert.True(t, users.created[0].Active)
	assert.Equal(t, "pro", users.created[0].Metadata["plan"])
}

func TestAuthenticate_ExistingUserMergesMetadata(t *testing.T) {
	existing := &models.User{
		ID:           "user-9",
		SmartAccount: testWallet,
		Active:       true,
		Metadata:     map[string]interface{}{"plan": "free", "locale": "en"},
	}
	users := &fakeUserStore{byAddress: map[string]*models.User{testWallet: existing}}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc124"),
		Signature: "0xsig",
		Metadata:  map[string]interface{}{"plan": "pro"},
	})

	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, "user-9", resp.User.ID)
	// New keys win, unrelated keys survive.
	assert.Equal(t, "pro", resp.User.Metadata["plan"])
	assert.Equal(t, "en", resp.User.Metadata["locale"])
	require.Len(t, users.updated, 1)
}

func TestAuthenticate_NoWriteWhenNothingChanged(t *testing.T) {
	existing := &models.User{ID: "user-9", SmartAccount: testWallet, Active: true}
	users := &fakeUserStore{byAddress: map[string]*models.User{testWallet: existing}}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc125"),
		Signature: "0xsig",
	})

	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Empty(t, users.updated)
}

func TestAuthenticate_NonceReplayRejected(t *testing.T) {
	nonces := &fakeNonces{}
	svc := NewAuthService(okVerifier(), nonces, &fakeUserStore{}, fakeTokens{})

	req := &AuthRequest{Message: testSignInMessage("once"), Signature: "0xsig"}
	_, err := svc.Authenticate(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNonceReplayed))
}

func TestAuthenticate_VerificationFailurePreservesReason(t *testing.T) {
	verifier := &fakeVerifier{result: siwe.Result{Reason: siwe.ReasonExpired, Detail: "message has expired"}}
	nonces := &fakeNonces{}
	svc := NewAuthService(verifier, nonces, &fakeUserStore{}, fakeTokens{})

	_, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc126"),
		Signature: "0xsig",
	})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeExpired))
	// Failed verification must not burn the nonce.
	assert.Empty(t, nonces.used)
}

func TestAuthenticate_VerifierUnavailableIs503(t *testing.T) {
	verifier := &fakeVerifier{result: siwe.Result{Reason: siwe.ReasonVerifierUnavailable}}
	svc := NewAuthService(verifier, &fakeNonces{}, &fakeUserStore{}, fakeTokens{})

	_, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc127"),
		Signature: "0xsig",
	})

	require.Error(t, err)
	assert.Equal(t, 503, errors.StatusCode(err))
}

func TestAuthenticate_MalformedMessageRejected(t *testing.T) {
	svc := NewAuthService(okVerifier(), &fakeNonces{}, &fakeUserStore{}, fakeTokens{})

	_, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   "not a sign-in message",
		Signature: "0xsig",
	})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedMessage))
}

func TestAuthenticate_StoresEOAAddressLowercased(t *testing.T) {
	users := &fakeUserStore{}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:    testSignInMessage("abc130"),
		Signature:  "0xsig",
		EOAAddress: "0x" + strings.ToUpper(testEOA[2:]),
	})

	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, testEOA, resp.User.EOAWalletAddress)
}

func TestAuthenticate_RepeatLoginResolvesUserByEOA(t *testing.T) {
	// Register with the smart account and an EOA, then sign in again with
	// the EOA itself. Both addresses resolve to the same user row.
	users := &fakeUserStore{}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	first, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:    testSignInMessage("abc131"),
		Signature:  "0xsig",
		EOAAddress: testEOA,
	})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   signInMessageFor(testEOA, "abc132"),
		Signature: "0xsig",
	})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.User.ID, second.User.ID)
	require.Len(t, users.created, 1)
}

func TestAuthenticate_EOAUpdatedOnlyWhenSupplied(t *testing.T) {
	existing := &models.User{
		ID:               "user-9",
		SmartAccount:     testWallet,
		EOAWalletAddress: testEOA,
		Active:           true,
	}
	users := &fakeUserStore{byAddress: map[string]*models.User{testWallet: existing}}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc133"),
		Signature: "0xsig",
	})

	require.NoError(t, err)
	assert.Equal(t, testEOA, resp.User.EOAWalletAddress)
	assert.Empty(t, users.updated)
}

func TestAuthenticate_InsertRaceFallsBackToUpdate(t *testing.T) {
	// First lookup misses, insert hits the unique constraint, second lookup
	// finds the row the concurrent request inserted.
	racer := &models.User{ID: "user-7", SmartAccount: testWallet, Active: true}
	calls := 0
	users := &racingUserStore{inner: &fakeUserStore{}, racer: racer, missFirst: &calls}
	svc := NewAuthService(okVerifier(), &fakeNonces{}, users, fakeTokens{})

	resp, err := svc.Authenticate(context.Background(), &AuthRequest{
		Message:   testSignInMessage("abc128"),
		Signature: "0xsig",
	})

	require.NoError(t, err)
	assert.False(t, resp.Created)
	assert.Equal(t, "user-7", resp.User.ID)
}

// racingUserStore misses the first lookup, fails the insert with a duplicate
// error, then serves the racer row on the retry lookup.
type racingUserStore struct {
	inner     *fakeUserStore
	racer     *models.User
	missFirst *int
}

func (r *racingUserStore) GetByAddress(_ context.Context, _ string) (*models.User, error) {
	*r.missFirst++
	if *r.missFirst == 1 {
		return nil, storage.ErrNotFound
	}
	return r.racer, nil
}

func (r *racingUserStore) Create(_ context.Context, _ *models.User) error {
	return storage.ErrDuplicate
}

func (r *racingUserStore) Update(ctx context.Context, user *models.User) error {
	return r.inner.Update(ctx, user)
}
