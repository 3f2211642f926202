package api

import (
	"net/http"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/service"
)

// authRequest is the sign-in request body
type authRequest struct {
	Message    string                 `json:"message"`
	Signature  string                 `json:"signature"`
	EOAAddress string                 `json:"eoaAddress,omitempty"`
	Timestamp  int64                  `json:"timestamp,omitempty"`
	ClientInfo map[string]interface{} `json:"clientInfo,omitempty"`
}

// handleAuth verifies a signed sign-in message and issues a session token.
// A first-time wallet gets 201, a returning one 200.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, errors.NewInvalidInput("request body must be valid JSON"))
		return
	}
	if req.Message == "" {
		respondError(w, errors.NewInvalidInput("message is required"))
		return
	}
	if req.Signature == "" {
		respondError(w, errors.NewInvalidInput("signature is required"))
		return
	}

	resp, err := s.authService.Authenticate(r.Context(), &service.AuthRequest{
		Message:    req.Message,
		Signature:  req.Signature,
		EOAAddress: req.EOAAddress,
		Metadata:   req.ClientInfo,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	respondSuccess(w, status, map[string]interface{}{
		"token": resp.Token,
		"user": map[string]interface{}{
			"id":        resp.User.ID,
			"address":   resp.User.SmartAccount,
			"isNewUser": resp.Created,
		},
	})
}
