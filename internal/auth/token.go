// Package auth provides session token issuance/validation and single-use
// nonce tracking for the sign-in flow.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails validation: bad
// shape, bad signature, or past expiry. Callers must not distinguish.
var ErrInvalidToken = errors.New("invalid or expired session token")

// RoleUser is the default role carried by session tokens
const RoleUser = "user"

// SessionClaims is the payload of a session token
type SessionClaims struct {
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// TokenMaker issues and validates HS256-signed session tokens. The signing
// secret is injected once at construction and never leaves this struct.
type TokenMaker struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewTokenMaker creates a token maker. The secret must be non-empty.
func NewTokenMaker(secret, issuer string, tokenTTL time.Duration) (*TokenMaker, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret must not be empty")
	}
	return &TokenMaker{
		secret:   []byte(secret),
		issuer:   issuer,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}, nil
}

// Issue creates a signed session token for the given wallet and user
func (m *TokenMaker) Issue(walletAddress, userID, role string) (string, error) {
	now := m.now()
	claims := SessionClaims{
		WalletAddress: strings.ToLower(walletAddress),
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Validate checks a presented token and returns its claims. The HMAC
// signature is always recomputed and verified before any payload field is
// trusted; expiry is enforced with no leeway.
func (m *TokenMaker) Validate(tokenString string) (*SessionClaims, error) {
	if parts := strings.Split(tokenString, "."); len(parts) != 3 ||
		parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrInvalidToken
	}

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired(), jwt.WithIssuer(m.issuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" || claims.WalletAddress == "" {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}
