// Package service implements the application logic between the HTTP layer
// and the repositories: sign-in, credit management, webhook settlement and
// the recurring credit sweeper.
package service

import (
	"context"
	goerrors "errors"
	"strings"

	"github.com/pagent-credits/backend/internal/auth"
	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/siwe"
	"github.com/pagent-credits/backend/internal/storage"
)

// MessageVerifier validates a sign-in message and its signature
type MessageVerifier interface {
	Verify(ctx context.Context, msg *siwe.Message, signature string) siwe.Result
}

// TokenIssuer mints session tokens for authenticated wallets
type TokenIssuer interface {
	Issue(walletAddress, userID, role string) (string, error)
}

// NonceConsumer marks sign-in nonces as used exactly once
type NonceConsumer interface {
	Consume(ctx context.Context, nonce string) (bool, error)
}

// UserStore is the slice of user persistence the auth flow needs
type UserStore interface {
	GetByAddress(ctx context.Context, address string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// AuthRequest is a sign-in attempt: the plaintext message the wallet
// displayed and the signature it produced, plus optional profile fields the
// client wants attached to the account.
type AuthRequest struct {
	Message    string
	Signature  string
	EOAAddress string
	CardID     string
	Metadata   map[string]interface{}
}

// AuthResponse is the outcome of a successful sign-in
type AuthResponse struct {
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

// AuthService runs the sign-in flow: verify the signature, burn the nonce,
// upsert the user record, and issue a session token.
type AuthService struct {
	verifier MessageVerifier
	nonces   NonceConsumer
	users    UserStore
	tokens   TokenIssuer
	logger   *logging.Logger
}

// NewAuthService creates an auth service
func NewAuthService(verifier MessageVerifier, nonces NonceConsumer, users UserStore, tokens TokenIssuer) *AuthService {
	return &AuthService{
		verifier: verifier,
		nonces:   nonces,
		users:    users,
		tokens:   tokens,
		logger:   logging.WithField("service", "auth"),
	}
}

// Authenticate verifies a signed message and returns a session token.
// The nonce is consumed only after the signature checks out, so an attacker
// replaying garbage cannot burn a victim's nonce.
func (s *AuthService) Authenticate(ctx context.Context, req *AuthRequest) (*AuthResponse, error) {
	msg, err := siwe.ParseMessage(req.Message)
	if err != nil {
		return nil, errors.NewMalformedMessage(err)
	}

	result := s.verifier.Verify(ctx, msg, req.Signature)
	if !result.Success {
		s.logger.WithFields(map[string]interface{}{
			"reason":  string(result.Reason),
			"address": msg.Address,
		}).Warn("sign-in verification failed")
		return nil, errors.NewVerificationFailed(string(result.Reason), result.Detail)
	}

	if msg.Nonce != "" {
		ok, err := s.nonces.Consume(ctx, msg.Nonce)
		if err != nil {
			return nil, errors.NewInternal("failed to check sign-in nonce", err)
		}
		if !ok {
			return nil, errors.NewNonceReplayed()
		}
	}

	user, created, err := s.upsertUser(ctx, result.Address.Hex(), req)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.SmartAccount, user.ID, auth.RoleUser)
	if err != nil {
		return nil, errors.NewInternal("failed to issue session token", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"created": created,
	}).Info("user authenticated")

	return &AuthResponse{Token: token, User: user, Created: created}, nil
}

// upsertUser resolves the wallet to a user record, creating one on first
// sign-in. A concurrent first sign-in loses the insert race and falls back
// to the update path.
func (s *AuthService) upsertUser(ctx context.Context, address string, req *AuthRequest) (*models.User, bool, error) {
	user, err := s.users.GetByAddress(ctx, address)
	if err == nil {
		return s.refreshUser(ctx, user, req)
	}
	if !goerrors.Is(err, storage.ErrNotFound) {
		return nil, false, errors.NewInternal("failed to look up user", err)
	}

	user = &models.User{
		SmartAccount:     address,
		EOAWalletAddress: strings.ToLower(req.EOAAddress),
		CardID:           req.CardID,
		Active:           true,
		Metadata:         req.Metadata,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if goerrors.Is(err, storage.ErrDuplicate) {
			existing, lookupErr := s.users.GetByAddress(ctx, address)
			if lookupErr != nil {
				return nil, false, errors.NewInternal("failed to resolve user after insert race", lookupErr)
			}
			user, _, refreshErr := s.refreshUser(ctx, existing, req)
			return user, false, refreshErr
		}
		return nil, false, errors.NewInternal("failed to create user", err)
	}

	return user, true, nil
}

// refreshUser applies the sign-in request's optional fields to an existing
// user. Nothing is written when the request carries no changes.
func (s *AuthService) refreshUser(ctx context.Context, user *models.User, req *AuthRequest) (*models.User, bool, error) {
	changed := false
	if req.EOAAddress != "" && !strings.EqualFold(req.EOAAddress, user.EOAWalletAddress) {
		user.EOAWalletAddress = strings.ToLower(req.EOAAddress)
		changed = true
	}
	if req.CardID != "" && req.CardID != user.CardID {
		user.CardID = req.CardID
		changed = true
	}
	if len(req.Metadata) > 0 {
		user.MergeMetadata(req.Metadata)
		changed = true
	}
	if !user.Active {
		user.Active = true
		changed = true
	}

	if changed {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, false, errors.NewInternal("failed to update user", err)
		}
	}

	return user, false, nil
}
