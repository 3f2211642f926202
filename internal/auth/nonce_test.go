package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestNonceStore(t *testing.T) (*NonceStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewNonceStore(client, 10*time.Minute), mr
}

func TestNonceStore_Consume(t *testing.T) {
	store, _ := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.Consume(ctx, "mK9dPq2w")
	require.NoError(t, err)
	require.True(t, ok, "first consumption must succeed")

	ok, err = store.Consume(ctx, "mK9dPq2w")
	require.NoError(t, err)
	require.False(t, ok, "second consumption is a replay")

	ok, err = store.Consume(ctx, "different-nonce")
	require.NoError(t, err)
	require.True(t, ok, "unrelated nonce is unaffected")
}

func TestNonceStore_ConsumeEmpty(t *testing.T) {
	store, _ := newTestNonceStore(t)

	_, err := store.Consume(context.Background(), "")
	require.Error(t, err)
}

func TestNonceStore_ExpiryFreesNonce(t *testing.T) {
	store, mr := newTestNonceStore(t)
	ctx := context.Background()

	ok, err := store.Consume(ctx, "short-lived")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Minute)

	used, err := store.IsUsed(ctx, "short-lived")
	require.NoError(t, err)
	require.False(t, used, "nonce key must expire with the message validity window")
}

func TestNonceStore_IsUsed(t *testing.T) {
	store, _ := newTestNonceStore(t)
	ctx := context.Background()

	used, err := store.IsUsed(ctx, "fresh")
	require.NoError(t, err)
	require.False(t, used)

	_, err = store.Consume(ctx, "fresh")
	require.NoError(t, err)

	used, err = store.IsUsed(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, used)
}
