package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore enforces single-use sign-in nonces across server instances.
// A nonce is consumed atomically with SETNX; a second consumption within the
// TTL window is a replay.
type NonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNonceStore creates a nonce store. ttl should cover the validity window
// of sign-in messages; after that the nonce key expires on its own.
func NewNonceStore(client *redis.Client, ttl time.Duration) *NonceStore {
	return &NonceStore{client: client, ttl: ttl}
}

func nonceKey(nonce string) string {
	return fmt.Sprintf("siwe:nonce:%s", nonce)
}

// Consume marks a nonce as used. It returns false when the nonce was
// already consumed, which callers must treat as a replay attempt.
func (s *NonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, fmt.Errorf("nonce must not be empty")
	}

	ok, err := s.client.SetNX(ctx, nonceKey(nonce), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}
	return ok, nil
}

// IsUsed reports whether a nonce has been consumed without consuming it
func (s *NonceStore) IsUsed(ctx context.Context, nonce string) (bool, error) {
	count, err := s.client.Exists(ctx, nonceKey(nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return count > 0, nil
}
