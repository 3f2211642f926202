package api

import (
	goerrors "errors"
	"net/http"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/service"
	"github.com/pagent-credits/backend/internal/storage"
)

// createPermissionRequest is the address-keyed permission grant body
type createPermissionRequest struct {
	Permission struct {
		Token   string  `json:"token"`
		Cap     float64 `json:"cap"`
		Period  int64   `json:"period"`
		Start   int64   `json:"start"`
		End     int64   `json:"end"`
		Spender string  `json:"spender"`
	} `json:"permission"`
	Signature    string `json:"signature"`
	SmartAccount string `json:"smart_account"`
}

// handleCreatePermission registers a signed spend permission for the wallet
func (s *Server) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, errors.NewInvalidInput("request body must be valid JSON"))
		return
	}
	if req.SmartAccount == "" {
		respondError(w, errors.NewInvalidInput("smart_account is required"))
		return
	}

	user, err := s.resolveUserByAddress(r, req.SmartAccount)
	if err != nil {
		respondError(w, err)
		return
	}

	permission, err := s.creditService.CreatePermission(r.Context(), user.ID, &service.CreatePermissionRequest{
		TokenAddress:   req.Permission.Token,
		CapAmount:      req.Permission.Cap,
		PeriodSeconds:  req.Permission.Period,
		StartTimestamp: req.Permission.Start,
		EndTimestamp:   req.Permission.End,
		SpenderAddress: req.Permission.Spender,
		Signature:      req.Signature,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, http.StatusCreated, map[string]interface{}{
		"permission_id": permission.ID,
		"user_id":       user.ID,
	})
}

// revokePermissionRequest is the revoke body
type revokePermissionRequest struct {
	PermissionID string `json:"permission_id"`
	SmartAccount string `json:"smart_account"`
}

// handleRevokePermission revokes one of the wallet's permissions
func (s *Server) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	var req revokePermissionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, errors.NewInvalidInput("request body must be valid JSON"))
		return
	}
	if req.PermissionID == "" {
		respondError(w, errors.NewInvalidInput("permission_id is required"))
		return
	}
	if req.SmartAccount == "" {
		respondError(w, errors.NewInvalidInput("smart_account is required"))
		return
	}

	user, err := s.resolveUserByAddress(r, req.SmartAccount)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.creditService.RevokePermission(r.Context(), user.ID, req.PermissionID); err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"permission_id": req.PermissionID,
	})
}

// handleListPermissions lists the wallet's permission history
func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("smart_account")
	if address == "" {
		respondError(w, errors.NewInvalidInput("smart_account query parameter is required"))
		return
	}

	user, err := s.resolveUserByAddress(r, address)
	if err != nil {
		respondError(w, err)
		return
	}

	permissions, err := s.creditService.ListPermissions(r.Context(), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if permissions == nil {
		permissions = []*models.SpendPermission{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"permissions": permissions,
	})
}

// resolveUserByAddress maps a wallet address onto a user record
func (s *Server) resolveUserByAddress(r *http.Request, address string) (*models.User, error) {
	user, err := s.users.GetByAddress(r.Context(), address)
	if err != nil {
		if goerrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFound(errors.CodeUserNotFound, "user")
		}
		return nil, errors.NewInternal("failed to look up user", err)
	}
	return user, nil
}
