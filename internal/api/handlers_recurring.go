package api

import (
	"net/http"
	"strconv"

	"github.com/pagent-credits/backend/internal/models"
	"github.com/pagent-credits/backend/internal/service"
)

// handleProcessRecurring runs one sweep over all due recurring credits
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	report, err := s.sweeperService.SweepDue(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	results := report.Results
	if results == nil {
		results = []service.SweepItemResult{}
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"processed":  report.Due,
			"successful": report.Assigned,
			"errors":     report.Failed,
			"results":    results,
			"failed_ids": report.FailedIDs,
			"swept_at":   report.SweptAt,
		},
	})
}

// handlePreviewRecurring lists upcoming assignments without performing them
func (s *Server) handlePreviewRecurring(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	upcoming, err := s.sweeperService.Preview(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if upcoming == nil {
		upcoming = []*models.RecurringCredit{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"upcoming": upcoming,
		},
	})
}
