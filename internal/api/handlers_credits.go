package api

import (
	"net/http"
	"time"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/service"
)

// handleGetCredits returns the authenticated user's credit position
func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		respondError(w, errors.NewMissingAuthHeader())
		return
	}
	userID := claims.Subject

	permissions, err := s.creditService.ListPermissions(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	if permissions == nil {
		permissions = []*models.SpendPermission{}
	}

	payload := map[string]interface{}{
		"permissions":      permissions,
		"activePermission": nil,
		"creditLimit":      0.0,
		"usedAmount":       0.0,
		"remainingAmount":  0.0,
	}

	summary, err := s.creditService.GetSummary(r.Context(), userID)
	if err != nil {
		// A wallet without an active permission still gets its history.
		if !errors.IsCode(err, errors.CodeNoActivePermission) {
			respondError(w, err)
			return
		}
	} else {
		payload["activePermission"] = summary.Permission
		payload["creditLimit"] = summary.Usage.TotalLimit
		payload["usedAmount"] = summary.Usage.UsedAmount
		payload["remainingAmount"] = summary.Remaining
	}

	respondSuccess(w, http.StatusOK, payload)
}

// createCreditRequest is the authenticated permission grant body
type createCreditRequest struct {
	TokenAddress        string  `json:"tokenAddress"`
	CapAmount           float64 `json:"capAmount"`
	PeriodSeconds       int64   `json:"periodSeconds"`
	SpenderAddress      string  `json:"spenderAddress"`
	PermissionSignature string  `json:"permissionSignature"`
}

// handleCreateCredit registers a spend permission for the authenticated
// user. The validity window starts immediately and runs one period.
func (s *Server) handleCreateCredit(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		respondError(w, errors.NewMissingAuthHeader())
		return
	}

	var req createCreditRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, errors.NewInvalidInput("request body must be valid JSON"))
		return
	}

	now := time.Now()
	permission, err := s.creditService.CreatePermission(r.Context(), claims.Subject, &service.CreatePermissionRequest{
		TokenAddress:   req.TokenAddress,
		CapAmount:      req.CapAmount,
		PeriodSeconds:  req.PeriodSeconds,
		StartTimestamp: now.Unix(),
		EndTimestamp:   now.Unix() + req.PeriodSeconds,
		SpenderAddress: req.SpenderAddress,
		Signature:      req.PermissionSignature,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, http.StatusCreated, map[string]interface{}{
		"permission": permission,
	})
}
